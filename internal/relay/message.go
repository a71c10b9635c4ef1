package relay

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Message kinds on the wire.
const (
	KindHeartbeat = "heartbeat"
	KindMutation  = "mutation"
)

// UnknownAction replaces a missing action on a received mutation.
const UnknownAction = "unknown"

// Mutation is the most recent mutation notice received from another peer.
type Mutation struct {
	PeerID    string    `json:"peerID"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

// wireMessage matches the JSON a browser tab posts on its BroadcastChannel,
// so hub clients and native peers can share a channel.
type wireMessage struct {
	Type      string  `json:"type" msgpack:"type"`
	ID        string  `json:"id" msgpack:"id"`
	Action    *string `json:"action,omitempty" msgpack:"action,omitempty"`
	Timestamp *int64  `json:"timestamp,omitempty" msgpack:"timestamp,omitempty"` // unix ms
}

func heartbeatMessage(peerID string) wireMessage {
	return wireMessage{Type: KindHeartbeat, ID: peerID}
}

func mutationMessage(peerID, action string, at time.Time) wireMessage {
	ts := at.UnixMilli()
	return wireMessage{Type: KindMutation, ID: peerID, Action: &action, Timestamp: &ts}
}

// toMutation applies the receive-side defaults.
func (m wireMessage) toMutation(receivedAt time.Time) *Mutation {
	mut := &Mutation{PeerID: m.ID, Action: UnknownAction, Timestamp: receivedAt}
	if m.Action != nil {
		mut.Action = *m.Action
	}
	if m.Timestamp != nil {
		mut.Timestamp = time.UnixMilli(*m.Timestamp)
	}
	return mut
}

// Codec encodes relay messages for a transport.
type Codec interface {
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

type jsonCodec struct{}

func (jsonCodec) Name() string                       { return "json" }
func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

type msgpackCodec struct{}

func (msgpackCodec) Name() string                       { return "msgpack" }
func (msgpackCodec) Marshal(v any) ([]byte, error)      { return msgpack.Marshal(v) }
func (msgpackCodec) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }

// JSON is the default codec. Browser clients on the hub speak it.
var JSON Codec = jsonCodec{}

// Msgpack is a compact codec for native-only channels.
var Msgpack Codec = msgpackCodec{}

// CodecByName returns the codec called name.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSON, nil
	case "msgpack":
		return Msgpack, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}
