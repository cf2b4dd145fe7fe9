package smtp

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/textproto"
	"strings"
	"time"

	"github.com/nwaters/catchmail/internal/mail"
	"github.com/nwaters/catchmail/lalog"
	"github.com/nwaters/catchmail/misc"
)

// DurationStats stores statistics of duration of all SMTP conversations.
var DurationStats = misc.NewStats()

// Config carries the values a session needs from the listener that spawned it.
type Config struct {
	Banner            string
	AdvertiseSTARTTLS bool
}

// state holds the per-connection variables the guard table in §4.3.2 is defined over.
type state struct {
	remoteName string
	haveRemote bool
	from       string
	haveFrom   bool
	to         []string
	inData     bool
	data       strings.Builder
}

func (s *state) reset() {
	s.from = ""
	s.haveFrom = false
	s.to = nil
	s.inData = false
	s.data.Reset()
}

// Session drives one SMTP connection's command/state machine to completion, emitting a Mail for
// every successfully completed DATA transaction on out.
type Session struct {
	cfg    Config
	conn   net.Conn
	out    chan<- *mail.Mail
	logger lalog.Logger
}

// NewSession constructs a Session for an already-accepted connection.
func NewSession(conn net.Conn, cfg Config, out chan<- *mail.Mail) *Session {
	return &Session{
		cfg:    cfg,
		conn:   conn,
		out:    out,
		logger: lalog.Logger{ComponentName: "smtp.Session", ComponentID: []lalog.LoggerIDField{{Key: "Remote", Value: conn.RemoteAddr()}}},
	}
}

// Handle runs the session to completion: greeting, command loop, connection close. It returns once
// the connection is closed, by either peer, or by a fatal transport error.
func (sess *Session) Handle(ctx context.Context) {
	defer sess.conn.Close()

	beginTime := time.Now()
	defer func() {
		DurationStats.Trigger(float64(time.Since(beginTime).Nanoseconds()))
	}()

	reader := textproto.NewReader(bufio.NewReader(sess.conn))
	st := &state{}

	if err := sess.reply("220 %s ESMTP", sess.cfg.Banner); err != nil {
		sess.logger.MaybeMinorError(err)
		return
	}

	for {
		line, err := reader.ReadLine()
		if err != nil {
			sess.logger.MaybeMinorError(err)
			return
		}

		if st.inData {
			_, fatal := sess.handleDataLine(ctx, st, line)
			if fatal {
				return
			}
			continue
		}

		if !sess.dispatch(ctx, st, line) {
			return
		}
	}
}

// dispatch handles one non-DATA command line. It returns false when the connection must close.
func (sess *Session) dispatch(ctx context.Context, st *state, line string) bool {
	cmd := parseCommand(line)

	switch cmd.verb {
	case VerbHELO, VerbEHLO:
		if !sess.guardHELO(st) {
			return sess.replyOrClose("503 Bad sequence of commands")
		}
		st.remoteName = cmd.arg
		st.haveRemote = true
		if sess.cfg.AdvertiseSTARTTLS {
			return sess.replyOrClose("250-%s\r\n250 STARTTLS", sess.cfg.Banner)
		}
		return sess.replyOrClose("250 %s", sess.cfg.Banner)

	case VerbMAILFROM:
		if !sess.guardMAIL(st) {
			return sess.replyOrClose("503 Bad sequence of commands")
		}
		addr := parseAddress(cmd.arg)
		if len(addr) > maxAddressLen {
			return sess.replyOrClose("500 Line too long.")
		}
		st.from = addr
		st.haveFrom = true
		return sess.replyOrClose("250 OK")

	case VerbRCPTTO:
		if !sess.guardRCPT(st) {
			return sess.replyOrClose("503 Bad sequence of commands")
		}
		addr := parseAddress(cmd.arg)
		if len(addr) > maxAddressLen {
			return sess.replyOrClose("500 Line too long.")
		}
		st.to = append(st.to, addr)
		return sess.replyOrClose("250 OK")

	case VerbDATA:
		if !sess.guardDATA(st) {
			return sess.replyOrClose("503 Bad sequence of commands")
		}
		st.inData = true
		st.data.Reset()
		return sess.replyOrClose("354 Start mail input; end with <CRLF>.<CRLF>")

	case VerbSTARTTLS:
		// Advertise-capable but unimplemented: reply 502 regardless of whether it was advertised.
		return sess.replyOrClose("502 Command not implemented")

	case VerbNOOP:
		return sess.replyOrClose("250 OK")

	case VerbRSET:
		st.reset()
		return sess.replyOrClose("250 OK")

	case VerbQUIT:
		sess.reply("221 %s Service closing transmission channel", sess.cfg.Banner)
		return false

	default:
		return sess.replyOrClose("502 Command not implemented")
	}
}

// handleDataLine processes one line while inData. done indicates the DATA transaction has ended
// (success or guard failure already replied); fatal indicates the connection must be dropped.
func (sess *Session) handleDataLine(ctx context.Context, st *state, line string) (done, fatal bool) {
	if line == "." {
		raw := st.data.String()
		m := mail.New(st.from, st.to, raw, time.Now().UTC())
		if sess.out != nil {
			select {
			case sess.out <- m:
			case <-ctx.Done():
				return true, true
			}
		}
		st.reset()
		if err := sess.reply("250 OK"); err != nil {
			return true, true
		}
		return true, false
	}

	if len(line) > maxLineLen {
		if err := sess.reply("500 Line too long."); err != nil {
			return true, true
		}
		return false, false
	}

	st.data.WriteString(unstuffDataLine(line))
	st.data.WriteString("\r\n")
	return false, false
}

func (sess *Session) guardHELO(st *state) bool {
	return !st.haveFrom && len(st.to) == 0
}

func (sess *Session) guardMAIL(st *state) bool {
	return st.haveRemote && len(st.to) == 0
}

func (sess *Session) guardRCPT(st *state) bool {
	return st.haveRemote && st.haveFrom
}

func (sess *Session) guardDATA(st *state) bool {
	return st.haveRemote && st.haveFrom && len(st.to) > 0
}

func (sess *Session) reply(format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	_, err := fmt.Fprintf(sess.conn, "%s\r\n", msg)
	return err
}

// replyOrClose sends a reply and reports whether the session should continue reading commands.
func (sess *Session) replyOrClose(format string, args ...interface{}) bool {
	if err := sess.reply(format, args...); err != nil {
		sess.logger.MaybeMinorError(err)
		return false
	}
	return true
}
