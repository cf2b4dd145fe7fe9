package smtp

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/nwaters/catchmail/internal/mail"
	"github.com/nwaters/catchmail/lalog"
)

// Listener binds every address family localhost resolves to for a port and spawns one Session per
// accepted connection.
type Listener struct {
	Port              int
	Banner            string
	AdvertiseSTARTTLS bool
	Out               chan<- *mail.Mail

	logger lalog.Logger
}

// Run resolves "localhost:<port>", binds all resulting addresses, and accepts connections until ctx
// is cancelled. A bind failure on any resolved address is fatal and returned immediately; the
// function otherwise blocks forever, accepting connections.
func (l *Listener) Run(ctx context.Context) error {
	l.logger = lalog.Logger{ComponentName: "smtp.Listener", ComponentID: []lalog.LoggerIDField{{Key: "Port", Value: l.Port}}}

	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, "localhost")
	if err != nil {
		return fmt.Errorf("smtp: resolving localhost: %w", err)
	}
	if len(addrs) == 0 {
		return fmt.Errorf("smtp: localhost resolved to no addresses")
	}

	var listeners []net.Listener
	for _, ipAddr := range addrs {
		addr := net.JoinHostPort(ipAddr.IP.String(), strconv.Itoa(l.Port))
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			for _, opened := range listeners {
				opened.Close()
			}
			return fmt.Errorf("smtp: binding %s: %w", addr, err)
		}
		listeners = append(listeners, ln)
	}

	done := make(chan error, len(listeners))
	for _, ln := range listeners {
		go l.acceptLoop(ctx, ln, done)
	}

	go func() {
		<-ctx.Done()
		for _, ln := range listeners {
			ln.Close()
		}
	}()

	return <-done
}

func (l *Listener) acceptLoop(ctx context.Context, ln net.Listener, done chan<- error) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				done <- ctx.Err()
			default:
				done <- fmt.Errorf("smtp: accept on %s: %w", ln.Addr(), err)
			}
			return
		}
		cfg := Config{Banner: l.Banner, AdvertiseSTARTTLS: l.AdvertiseSTARTTLS}
		sess := NewSession(conn, cfg, l.Out)
		go sess.Handle(ctx)
	}
}
