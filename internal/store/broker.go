// Package store implements the mail repository: a single goroutine that owns the set of captured
// messages and serves every read and write through one command channel, so the map underneath it
// never needs a lock.
package store

import (
	"context"

	"github.com/nwaters/catchmail/internal/mail"
	"github.com/nwaters/catchmail/lalog"
)

// Broker owns the collection of captured mail. All access goes through its Add, Get, GetAll, Remove
// and RemoveAll methods; the zero value is not usable, construct one with New and call Run in its
// own goroutine.
type Broker struct {
	logger lalog.Logger
	cmds   chan command
}

// command is the envelope every request to the broker's loop travels in.
type command struct {
	kind     commandKind
	mail     *mail.Mail
	id       mail.ID
	replyM   chan *mail.Mail
	replyMs  chan []*mail.Mail
	replyID  chan *mail.ID
	replyIDs chan mail.ID
}

type commandKind int

const (
	cmdAdd commandKind = iota
	cmdGet
	cmdGetAll
	cmdRemove
	cmdRemoveAll
)

// New constructs a Broker. Call Run to start serving requests.
func New() *Broker {
	return &Broker{
		logger: lalog.Logger{ComponentName: "store.Broker"},
		cmds:   make(chan command),
	}
}

// Run executes the broker's serialising loop until ctx is cancelled. It must be launched as its own
// goroutine; every exported method communicates with it over the command channel.
func (b *Broker) Run(ctx context.Context) error {
	mails := make(map[mail.ID]*mail.Mail)
	order := make([]mail.ID, 0, 64)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c := <-b.cmds:
			switch c.kind {
			case cmdAdd:
				mails[c.mail.ID] = c.mail
				order = append(order, c.mail.ID)

			case cmdGet:
				c.replyM <- mails[c.id]
				close(c.replyM)

			case cmdGetAll:
				out := make([]*mail.Mail, 0, len(order))
				for _, id := range order {
					if m, ok := mails[id]; ok {
						out = append(out, m)
					}
				}
				c.replyMs <- out
				close(c.replyMs)

			case cmdRemove:
				if _, ok := mails[c.id]; ok {
					delete(mails, c.id)
					order = removeID(order, c.id)
					id := c.id
					c.replyID <- &id
				} else {
					c.replyID <- nil
				}
				close(c.replyID)

			case cmdRemoveAll:
				for _, id := range order {
					c.replyIDs <- id
				}
				mails = make(map[mail.ID]*mail.Mail)
				order = order[:0]
				close(c.replyIDs)
			}
		}
	}
}

func removeID(order []mail.ID, id mail.ID) []mail.ID {
	for i, existing := range order {
		if existing == id {
			return append(order[:i], order[i+1:]...)
		}
	}
	return order
}

// Add stores a newly captured message. It does not block on the caller beyond handing the message
// to the broker's loop.
func (b *Broker) Add(ctx context.Context, m *mail.Mail) {
	select {
	case b.cmds <- command{kind: cmdAdd, mail: m}:
	case <-ctx.Done():
		b.logger.MaybeMinorError(ctx.Err())
	}
}

// Get returns the message with id, or nil if no such message exists.
func (b *Broker) Get(ctx context.Context, id mail.ID) (*mail.Mail, error) {
	reply := make(chan *mail.Mail, 1)
	select {
	case b.cmds <- command{kind: cmdGet, id: id, replyM: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case m := <-reply:
		return m, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GetAll returns every captured message in the order it was received.
func (b *Broker) GetAll(ctx context.Context) ([]*mail.Mail, error) {
	reply := make(chan []*mail.Mail, 1)
	select {
	case b.cmds <- command{kind: cmdGetAll, replyMs: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case ms := <-reply:
		return ms, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Remove deletes the message with id and returns its id, or nil if no such message existed.
func (b *Broker) Remove(ctx context.Context, id mail.ID) (*mail.ID, error) {
	reply := make(chan *mail.ID, 1)
	select {
	case b.cmds <- command{kind: cmdRemove, id: id, replyID: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case removed := <-reply:
		return removed, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RemoveAll deletes every captured message and returns the ids that were removed.
func (b *Broker) RemoveAll(ctx context.Context) ([]mail.ID, error) {
	reply := make(chan mail.ID, 64)
	select {
	case b.cmds <- command{kind: cmdRemoveAll, replyIDs: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	var removed []mail.ID
	for id := range reply {
		removed = append(removed, id)
	}
	return removed, nil
}
