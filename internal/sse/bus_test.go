package sse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nwaters/catchmail/internal/mail"
)

func startBus(t *testing.T) (*Bus, context.Context) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	bus := NewBus()
	go bus.Run(ctx)
	t.Cleanup(cancel)
	return bus, ctx
}

func TestSubscriberReceivesNewMail(t *testing.T) {
	bus, ctx := startBus(t)
	events, unsubscribe := bus.Subscribe(ctx)
	defer unsubscribe()

	m := mail.New("a@b", nil, "\r\n\r\n", time.Now())
	bus.PublishNewMail(ctx, m)

	select {
	case evt := <-events:
		require.Equal(t, EventNewMail, evt.Name)
		require.Equal(t, m.ID.String(), evt.ID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestSubscriberReceivesDelMail(t *testing.T) {
	bus, ctx := startBus(t)
	events, unsubscribe := bus.Subscribe(ctx)
	defer unsubscribe()

	m := mail.New("a@b", nil, "\r\n\r\n", time.Now())
	bus.PublishDelMail(ctx, m.ID)

	select {
	case evt := <-events:
		require.Equal(t, EventDelMail, evt.Name)
		require.Equal(t, m.ID.String(), evt.Data)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus, ctx := startBus(t)
	events, unsubscribe := bus.Subscribe(ctx)
	unsubscribe()

	select {
	case _, ok := <-events:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}

func TestHeartbeatPublishesPing(t *testing.T) {
	bus, ctx := startBus(t)
	events, unsubscribe := bus.Subscribe(ctx)
	defer unsubscribe()

	p, err := bus.StartHeartbeat(ctx)
	require.NoError(t, err)
	defer p.Stop()

	select {
	case evt := <-events:
		require.Equal(t, EventPing, evt.Name)
	case <-time.After(HeartbeatInterval + 2*time.Second):
		t.Fatal("timed out waiting for heartbeat")
	}
}
