package transport

import (
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// envelope tags a payload with the channel that published it. Buses whose
// medium fans out to every subscriber, the publisher included, use it to skip
// the sending channel while still reaching other channels on the same host.
type envelope struct {
	Sender string `msgpack:"s"`
	Data   []byte `msgpack:"d"`
}

func newSenderID() string { return uuid.NewString() }

func seal(sender string, payload []byte) ([]byte, error) {
	return msgpack.Marshal(envelope{Sender: sender, Data: payload})
}

func unseal(raw []byte) (envelope, error) {
	var env envelope
	err := msgpack.Unmarshal(raw, &env)
	return env, err
}
