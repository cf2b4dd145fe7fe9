package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nwaters/catchmail/internal/mail"
)

func startBroker(t *testing.T) (*Broker, context.Context, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	b := New()
	go b.Run(ctx)
	t.Cleanup(cancel)
	return b, ctx, cancel
}

func TestAddAndGet(t *testing.T) {
	b, ctx, _ := startBroker(t)
	m := mail.New("a@b", nil, "\r\n\r\n", time.Now())
	b.Add(ctx, m)

	got, err := b.Get(ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, m.ID, got.ID)
}

func TestGetMissingReturnsNil(t *testing.T) {
	b, ctx, _ := startBroker(t)
	missing := mail.New("a@b", nil, "\r\n\r\n", time.Now())

	got, err := b.Get(ctx, missing.ID)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestGetAllPreservesArrivalOrder(t *testing.T) {
	b, ctx, _ := startBroker(t)
	m1 := mail.New("a@b", nil, "\r\n\r\none", time.Now())
	m2 := mail.New("a@b", nil, "\r\n\r\ntwo", time.Now())
	b.Add(ctx, m1)
	b.Add(ctx, m2)

	all, err := b.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, m1.ID, all[0].ID)
	require.Equal(t, m2.ID, all[1].ID)
}

func TestRemove(t *testing.T) {
	b, ctx, _ := startBroker(t)
	m := mail.New("a@b", nil, "\r\n\r\n", time.Now())
	b.Add(ctx, m)

	removed, err := b.Remove(ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, removed)
	require.Equal(t, m.ID, *removed)

	got, err := b.Get(ctx, m.ID)
	require.NoError(t, err)
	require.Nil(t, got)

	again, err := b.Remove(ctx, m.ID)
	require.NoError(t, err)
	require.Nil(t, again)
}

func TestRemoveAll(t *testing.T) {
	b, ctx, _ := startBroker(t)
	m1 := mail.New("a@b", nil, "\r\n\r\n", time.Now())
	m2 := mail.New("a@b", nil, "\r\n\r\n", time.Now())
	b.Add(ctx, m1)
	b.Add(ctx, m2)

	removed, err := b.RemoveAll(ctx)
	require.NoError(t, err)
	require.Len(t, removed, 2)

	all, err := b.GetAll(ctx)
	require.NoError(t, err)
	require.Empty(t, all)
}
