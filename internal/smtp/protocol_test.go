package smtp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseCommandVerbs(t *testing.T) {
	cases := []struct {
		line string
		verb Verb
	}{
		{"HELO client.example\r\n", VerbHELO},
		{"ehlo client.example", VerbEHLO},
		{"MAIL FROM:<a@b>", VerbMAILFROM},
		{"RCPT TO:<a@b>", VerbRCPTTO},
		{"DATA", VerbDATA},
		{"STARTTLS", VerbSTARTTLS},
		{"noop", VerbNOOP},
		{"RSET", VerbRSET},
		{"QUIT", VerbQUIT},
		{"BOGUS", VerbUnknown},
	}
	for _, c := range cases {
		got := parseCommand(c.line)
		require.Equal(t, c.verb, got.verb, c.line)
	}
}

func TestParseAddress(t *testing.T) {
	require.Equal(t, "from@e.org", parseAddress("FROM:<from@e.org>"))
	require.Equal(t, "from@e.org", parseAddress("FROM:from@e.org"))
	require.Equal(t, "to@e.net", parseAddress("TO:<to@e.net>"))
}

func TestUnstuffDataLine(t *testing.T) {
	require.Equal(t, "hello", unstuffDataLine(".hello"))
	require.Equal(t, "", unstuffDataLine(""))
	require.Equal(t, "no leading dot", unstuffDataLine("no leading dot"))
	require.Equal(t, ".", unstuffDataLine("."))
}
