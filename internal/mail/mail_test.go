package mail

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewBasic(t *testing.T) {
	received := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	raw := "From: x\r\nSubject: s\r\n\r\nhello"
	m := New("from@e.org", []string{"to@e.net", "to@e.org"}, raw, received)

	require.Equal(t, "from@e.org", m.From)
	require.Equal(t, []string{"to@e.net", "to@e.org"}, m.To)
	require.Equal(t, "s", m.Subject)
	require.Equal(t, "hello", m.Body)
	require.Equal(t, raw, m.Raw)
	require.Equal(t, len(raw), m.Size)
	require.Equal(t, received, m.Date)
}

func TestNewDefaultSubject(t *testing.T) {
	m := New("a@b", nil, "From: x\r\n\r\nbody", time.Now())
	require.Equal(t, NoSubject, m.Subject)
}

func TestNewDateHeaderParsed(t *testing.T) {
	raw := "Date: Mon, 02 Jan 2006 15:04:05 MST\r\n\r\nbody"
	m := New("a@b", nil, raw, time.Unix(0, 0))
	require.Equal(t, 2006, m.Date.Year())
}

func TestHeaderContinuationSpaceAndTab(t *testing.T) {
	raw := "Subject: hello\r\n world\r\n\tagain\r\n\r\nbody"
	m := New("a@b", nil, raw, time.Now())
	require.Equal(t, "hello\r\n world\r\n\tagain", m.Subject)
}

func TestIDsAreUnique(t *testing.T) {
	m1 := New("a@b", nil, "\r\n\r\n", time.Now())
	m2 := New("a@b", nil, "\r\n\r\n", time.Now())
	require.NotEqual(t, m1.ID, m2.ID)
}

func TestParseIDRoundTrip(t *testing.T) {
	m := New("a@b", nil, "\r\n\r\n", time.Now())
	got, err := ParseID(m.ID.String())
	require.NoError(t, err)
	require.Equal(t, m.ID, got)
}

func TestParseIDInvalid(t *testing.T) {
	_, err := ParseID("not-a-ulid")
	require.Error(t, err)
}
