package smtp

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nwaters/catchmail/internal/mail"
)

// dialSession spins up a Session against one end of an in-memory pipe and returns the client end
// plus the channel mails are delivered on.
func dialSession(t *testing.T, cfg Config) (client net.Conn, out chan *mail.Mail) {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	out = make(chan *mail.Mail, 4)
	sess := NewSession(serverConn, cfg, out)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go sess.Handle(ctx)

	return clientConn, out
}

func TestUnknownCommandReplies502(t *testing.T) {
	client, _ := dialSession(t, Config{Banner: "MailCatcher"})
	reader := bufio.NewReader(client)

	greeting, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "220 MailCatcher ESMTP\r\n", greeting)

	client.Write([]byte("INVALID\r\n"))
	resp, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "502 Command not implemented\r\n", resp)
}

func TestMailBeforeHeloRejected(t *testing.T) {
	client, _ := dialSession(t, Config{Banner: "MailCatcher"})
	reader := bufio.NewReader(client)
	reader.ReadString('\n') // greeting

	client.Write([]byte("MAIL FROM:<a@b>\r\n"))
	resp, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "503 Bad sequence of commands\r\n", resp)
}

func TestFullTransaction(t *testing.T) {
	client, out := dialSession(t, Config{Banner: "MailCatcher"})
	reader := bufio.NewReader(client)
	reader.ReadString('\n') // greeting

	exchange := func(cmd, want string) {
		client.Write([]byte(cmd))
		resp, err := reader.ReadString('\n')
		require.NoError(t, err)
		require.Equal(t, want, resp)
	}

	exchange("HELO c\r\n", "250 MailCatcher\r\n")
	exchange("MAIL FROM:<from@e.org>\r\n", "250 OK\r\n")
	exchange("RCPT TO:<to@e.net>\r\n", "250 OK\r\n")
	exchange("RCPT TO:<to@e.org>\r\n", "250 OK\r\n")
	exchange("DATA\r\n", "354 Start mail input; end with <CRLF>.<CRLF>\r\n")

	client.Write([]byte("From: x\r\nSubject: s\r\n\r\n.hello\r\n.\r\n"))
	resp, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "250 OK\r\n", resp)

	select {
	case m := <-out:
		require.Equal(t, "s", m.Subject)
		require.Equal(t, "from@e.org", m.From)
		require.Equal(t, []string{"to@e.net", "to@e.org"}, m.To)
		require.True(t, strings.HasPrefix(m.Body, "hello"))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for mail")
	}
}

func TestOverlongDataLineRejected(t *testing.T) {
	client, out := dialSession(t, Config{Banner: "MailCatcher"})
	reader := bufio.NewReader(client)
	reader.ReadString('\n')

	exchange := func(cmd, want string) {
		client.Write([]byte(cmd))
		resp, err := reader.ReadString('\n')
		require.NoError(t, err)
		require.Equal(t, want, resp)
	}

	exchange("HELO c\r\n", "250 MailCatcher\r\n")
	exchange("MAIL FROM:<from@e.org>\r\n", "250 OK\r\n")
	exchange("RCPT TO:<to@e.org>\r\n", "250 OK\r\n")
	exchange("DATA\r\n", "354 Start mail input; end with <CRLF>.<CRLF>\r\n")

	longLine := strings.Repeat("a", 1500)
	client.Write([]byte(longLine + "\r\n"))
	resp, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "500 Line too long.\r\n", resp)

	client.Write([]byte(".\r\n"))
	resp, err = reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "250 OK\r\n", resp)

	m := <-out
	require.False(t, strings.Contains(m.Raw, longLine))
}

func TestSTARTTLSAlwaysRejected(t *testing.T) {
	client, _ := dialSession(t, Config{Banner: "MailCatcher", AdvertiseSTARTTLS: true})
	reader := bufio.NewReader(client)
	reader.ReadString('\n')

	client.Write([]byte("STARTTLS\r\n"))
	resp, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "502 Command not implemented\r\n", resp)
}
