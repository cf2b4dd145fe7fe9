// Package sse fans out mail lifecycle events to HTTP subscribers as Server-Sent Events, and emits a
// periodic heartbeat so idle connections are not silently reaped by intermediate proxies.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nwaters/catchmail/internal/mail"
	"github.com/nwaters/catchmail/lalog"
	"github.com/nwaters/catchmail/misc"
)

// HeartbeatInterval is how often a Ping event is broadcast to every subscriber.
const HeartbeatInterval = 10 * time.Second

// EventName identifies the kind of lifecycle event carried by an Event.
type EventName string

const (
	// EventNewMail announces a newly captured message.
	EventNewMail EventName = "newMail"
	// EventDelMail announces the removal of a message.
	EventDelMail EventName = "delMail"
	// EventPing is the idle-connection heartbeat.
	EventPing EventName = "ping"
	pingData            = "\U0001F493"
)

// Event is one wire-ready SSE frame: Name becomes the "event:" field and Data becomes "data:". ID
// holds the id of the mail the event concerns (empty for a ping) and is not written to the wire.
type Event struct {
	Name EventName
	ID   string
	Data string
}

// subscriberQueueDepth bounds how many unconsumed events a lagging subscriber may accumulate before
// the bus starts dropping events for it. Delivery is best-effort: a slow HTTP client must not stall
// the broadcaster.
const subscriberQueueDepth = 64

// Bus broadcasts lifecycle events to every currently subscribed HTTP client.
type Bus struct {
	logger    lalog.Logger
	subscribe chan chan Event
	unsub     chan chan Event
	publish   chan Event
}

// NewBus constructs a Bus. Call Run to start its broadcast loop.
func NewBus() *Bus {
	return &Bus{
		logger:    lalog.Logger{ComponentName: "sse.Bus"},
		subscribe: make(chan chan Event),
		unsub:     make(chan chan Event),
		publish:   make(chan Event),
	}
}

// Run executes the bus's broadcast loop until ctx is cancelled. It must run in its own goroutine.
func (bus *Bus) Run(ctx context.Context) error {
	subscribers := make(map[chan Event]bool)
	for {
		select {
		case <-ctx.Done():
			for ch := range subscribers {
				close(ch)
			}
			return ctx.Err()
		case ch := <-bus.subscribe:
			subscribers[ch] = true
		case ch := <-bus.unsub:
			if _, ok := subscribers[ch]; ok {
				delete(subscribers, ch)
				close(ch)
			}
		case evt := <-bus.publish:
			for ch := range subscribers {
				select {
				case ch <- evt:
				default:
					bus.logger.Info(nil, nil, "dropping %s event for a lagging subscriber", evt.Name)
				}
			}
		}
	}
}

// Subscribe registers a new listener and returns a channel of events for it, along with a function
// to unsubscribe. The returned channel is closed once Unsubscribe is called or the bus stops.
func (bus *Bus) Subscribe(ctx context.Context) (events <-chan Event, unsubscribe func()) {
	ch := make(chan Event, subscriberQueueDepth)
	select {
	case bus.subscribe <- ch:
	case <-ctx.Done():
	}
	return ch, func() {
		select {
		case bus.unsub <- ch:
		case <-ctx.Done():
		}
	}
}

// newMailPayload is the JSON shape carried as the data field of a newMail event.
type newMailPayload struct {
	ID      string   `json:"id"`
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Date    string   `json:"date"`
	Size    int      `json:"size"`
}

// PublishNewMail announces that m has been captured.
func (bus *Bus) PublishNewMail(ctx context.Context, m *mail.Mail) {
	payload, err := json.Marshal(newMailPayload{
		ID:      m.ID.String(),
		From:    m.From,
		To:      m.To,
		Subject: m.Subject,
		Date:    m.Date.Format(time.RFC3339),
		Size:    m.Size,
	})
	if err != nil {
		bus.logger.MaybeMinorError(err)
		return
	}
	bus.emit(ctx, Event{Name: EventNewMail, ID: m.ID.String(), Data: string(payload)})
}

// PublishDelMail announces that the message with id has been removed.
func (bus *Bus) PublishDelMail(ctx context.Context, id mail.ID) {
	bus.emit(ctx, Event{Name: EventDelMail, ID: id.String(), Data: id.String()})
}

func (bus *Bus) emit(ctx context.Context, evt Event) {
	select {
	case bus.publish <- evt:
	case <-ctx.Done():
	}
}

// StartHeartbeat launches the periodic ping task and returns the misc.Periodic driving it, so the
// caller's supervisor can own its lifecycle alongside the rest of the daemon's background tasks.
func (bus *Bus) StartHeartbeat(ctx context.Context) (*misc.Periodic, error) {
	p := &misc.Periodic{
		LogActorName: "sse.Bus.heartbeat",
		Interval:     HeartbeatInterval,
		MaxInt:       1,
		Func: func(ctx context.Context, _, _ int) error {
			bus.emit(ctx, Event{Name: EventPing, Data: pingData})
			return nil
		},
	}
	if err := p.Start(ctx); err != nil {
		return nil, fmt.Errorf("sse: starting heartbeat: %w", err)
	}
	return p, nil
}
