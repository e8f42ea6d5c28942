package eventbus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type treeChanged struct {
	AgentID string
}

func TestPublish_DeliversToMatchingHandler(t *testing.T) {
	bus := NewEventPublisher(nil)

	var got []string
	bus.Subscribe(func(ev treeChanged) {
		got = append(got, ev.AgentID)
	})

	bus.Publish(treeChanged{AgentID: "a-1"})
	bus.Publish("not a tree event")

	require.Equal(t, []string{"a-1"}, got)
}

func TestPublish_RecoversFromHandlerPanic(t *testing.T) {
	bus := NewEventPublisher(nil)

	bus.Subscribe(func(ev treeChanged) {
		panic("boom")
	})

	require.NotPanics(t, func() {
		bus.Publish(treeChanged{AgentID: "a-2"})
	})
}

func TestUnsubscribeAndClear(t *testing.T) {
	bus := NewEventPublisher(nil)
	handler := func(ev treeChanged) {}

	bus.Subscribe(handler)
	require.Equal(t, 1, bus.SubscribersCount())

	bus.Unsubscribe(handler)
	require.Equal(t, 0, bus.SubscribersCount())

	bus.Subscribe(handler)
	bus.Clear()
	require.Equal(t, 0, bus.SubscribersCount())
}
