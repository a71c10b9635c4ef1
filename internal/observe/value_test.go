package observe_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/iggydv12/tabsync/internal/observe"
)

func TestSetNotifiesSubscribers(t *testing.T) {
	v := observe.NewValue(1, observe.Equal[int])

	var got []int
	v.Subscribe(func(n int) { got = append(got, n) })

	assert.True(t, v.Set(2))
	assert.False(t, v.Set(2)) // unchanged, no notification
	assert.True(t, v.Set(3))

	assert.Equal(t, []int{2, 3}, got)
	assert.Equal(t, 3, v.Get())
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	v := observe.NewValue("a", observe.Equal[string])

	calls := 0
	unsub := v.Subscribe(func(string) { calls++ })
	other := 0
	v.Subscribe(func(string) { other++ })

	v.Set("b")
	unsub()
	unsub()
	v.Set("c")

	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, other)
}

func TestNilEqualAlwaysNotifies(t *testing.T) {
	v := observe.NewValue[*int](nil, nil)
	calls := 0
	v.Subscribe(func(*int) { calls++ })

	v.Set(nil)
	v.Set(nil)
	assert.Equal(t, 2, calls)
}

func TestSubscribersRunInOrder(t *testing.T) {
	v := observe.NewValue(0, observe.Equal[int])
	var order []string
	v.Subscribe(func(int) { order = append(order, "first") })
	v.Subscribe(func(int) { order = append(order, "second") })

	v.Set(1)
	assert.Equal(t, []string{"first", "second"}, order)
}
