package supervisor

import (
	"context"

	"github.com/nwaters/catchmail/internal/mail"
	"github.com/nwaters/catchmail/internal/sse"
	"github.com/nwaters/catchmail/internal/store"
)

// IngestionBridge consumes mails emitted by the SMTP sessions and fans each one out to the
// repository broker and the SSE bus.
type IngestionBridge struct {
	In     <-chan *mail.Mail
	Broker *store.Broker
	Bus    *sse.Bus
}

// Run drains In until it is closed or ctx is cancelled. For every mail it stores the mail first,
// then publishes NewMail, so a subscriber observing the event is guaranteed to find the mail on a
// subsequent query.
func (b *IngestionBridge) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-b.In:
			if !ok {
				return nil
			}
			b.Broker.Add(ctx, m)
			b.Bus.PublishNewMail(ctx, m)
		}
	}
}
