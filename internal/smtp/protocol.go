package smtp

import "strings"

// Verb identifies a recognised SMTP command keyword.
type Verb int

// Recognised command verbs. VerbUnknown covers anything the receiver does not implement.
const (
	VerbUnknown Verb = iota
	VerbHELO
	VerbEHLO
	VerbMAILFROM
	VerbRCPTTO
	VerbDATA
	VerbSTARTTLS
	VerbNOOP
	VerbRSET
	VerbQUIT
)

// maxAddressLen is the maximum length in octets of a MAIL FROM / RCPT TO mailbox argument.
const maxAddressLen = 64

// maxLineLen is the maximum length in octets of one line of DATA payload. Command lines are not
// checked against it.
const maxLineLen = 1000

// verbTable maps the first whitespace-delimited token of a command line, upper-cased, to its Verb.
var verbTable = map[string]Verb{
	"HELO":     VerbHELO,
	"EHLO":     VerbEHLO,
	"MAIL":     VerbMAILFROM,
	"RCPT":     VerbRCPTTO,
	"DATA":     VerbDATA,
	"STARTTLS": VerbSTARTTLS,
	"NOOP":     VerbNOOP,
	"RSET":     VerbRSET,
	"QUIT":     VerbQUIT,
}

// parsedCommand is one line of client input split into its verb and remaining argument text.
type parsedCommand struct {
	verb Verb
	arg  string
}

// parseCommand splits a command line into its verb and argument. Command matching is
// case-insensitive on the first token; the argument keeps its original case.
func parseCommand(line string) parsedCommand {
	fields := strings.SplitN(strings.TrimSpace(line), " ", 2)
	first := strings.ToUpper(fields[0])

	// MAIL FROM: and RCPT TO: arrive as "MAIL FROM:<addr>": the verb table keys on the first token
	// only, and the "FROM:"/"TO:" prefix stays in the argument for parseAddress to strip.
	var rest string
	if len(fields) > 1 {
		rest = fields[1]
	}

	verb, ok := verbTable[first]
	if !ok {
		return parsedCommand{verb: VerbUnknown, arg: rest}
	}
	return parsedCommand{verb: verb, arg: strings.TrimSpace(rest)}
}

// parseAddress extracts the mailbox from a MAIL FROM:<addr> or RCPT TO:<addr> argument, tolerating
// the angle brackets being present or absent.
func parseAddress(arg string) string {
	arg = strings.TrimSpace(arg)
	if idx := strings.IndexByte(arg, ':'); idx >= 0 {
		arg = arg[idx+1:]
	}
	arg = strings.TrimSpace(arg)
	arg = strings.TrimPrefix(arg, "<")
	arg = strings.TrimSuffix(arg, ">")
	return arg
}

// unstuffDataLine removes leading dot-stuffing from one line of DATA payload: a leading "." is
// stripped only when the line has more than a single character (a lone "." is the terminator and
// never reaches this function).
func unstuffDataLine(line string) string {
	if len(line) > 1 && line[0] == '.' {
		return line[1:]
	}
	return line
}
