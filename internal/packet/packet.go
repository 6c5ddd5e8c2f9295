// Package packet parses and builds raw IRC protocol lines.
//
// A line has the shape
//
//	[@TAGS ][:PREFIX ]COMMAND[ PARAM]*[ :TRAIL]
//
// and is represented by a Packet value. The package is stateless; every
// function may be called from any goroutine.
package packet

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ergochat/irc-go/ircmsg"
)

var (
	// ErrMalformedPacket is returned by Parse when a line does not follow the IRC grammar.
	ErrMalformedPacket = errors.New("malformed packet")

	// ErrInvalidPrefix is returned by ParsePrefix when a prefix is not name[!user][@host].
	ErrInvalidPrefix = errors.New("invalid prefix")
)

// Packet is one IRC protocol line.
type Packet struct {
	// Tags holds IRCv3 message tags of an inbound line. Build never writes them.
	Tags map[string]string

	// Prefix is the origin of the line without the leading colon. Empty when absent.
	Prefix string

	// Command is an IRC verb or a three digit reply code.
	Command string

	// Params are the middle parameters, none of which contains a space.
	Params []string

	// Trail is the final parameter that may contain spaces. Empty when absent.
	Trail string
}

// Parse decodes a single raw line. Trailing CR and LF characters are ignored.
func Parse(line string) (Packet, error) {
	var p Packet

	rest := strings.TrimRight(line, "\r\n")
	rest = strings.TrimLeft(rest, separators)
	if rest == "" {
		return p, fmt.Errorf("%w: empty line", ErrMalformedPacket)
	}

	if rest[0] == '@' {
		end := strings.IndexAny(rest, separators)
		if end < 0 {
			return p, fmt.Errorf("%w: tags without command: %q", ErrMalformedPacket, line)
		}
		tags, err := parseTags(rest[:end])
		if err != nil {
			return p, fmt.Errorf("%w: %v: %q", ErrMalformedPacket, err, line)
		}
		p.Tags = tags
		rest = strings.TrimLeft(rest[end:], separators)
	}

	if rest != "" && rest[0] == ':' {
		end := strings.IndexAny(rest, separators)
		if end < 0 {
			return p, fmt.Errorf("%w: prefix without command: %q", ErrMalformedPacket, line)
		}
		p.Prefix = rest[1:end]
		if p.Prefix == "" {
			return p, fmt.Errorf("%w: empty prefix: %q", ErrMalformedPacket, line)
		}
		rest = strings.TrimLeft(rest[end:], separators)
	}

	command, rest := nextToken(rest)
	if !validCommand(command) {
		return p, fmt.Errorf("%w: bad command %q: %q", ErrMalformedPacket, command, line)
	}
	p.Command = strings.ToUpper(command)

	for rest != "" {
		if rest[0] == ':' {
			p.Trail = rest[1:]
			break
		}
		var param string
		param, rest = nextToken(rest)
		p.Params = append(p.Params, param)
	}

	return p, nil
}

// separators delimit the prefix, the command and the middle parameters.
// A run of them counts as one.
const separators = " \t"

// nextToken splits off the first token and drops the separator run that
// follows it.
func nextToken(s string) (token, rest string) {
	end := strings.IndexAny(s, separators)
	if end < 0 {
		return s, ""
	}
	return s[:end], strings.TrimLeft(s[end:], separators)
}

func validCommand(c string) bool {
	if c == "" {
		return false
	}
	if isNumeric(c) {
		return true
	}
	for i := 0; i < len(c); i++ {
		ch := c[i]
		if (ch < 'A' || ch > 'Z') && (ch < 'a' || ch > 'z') {
			return false
		}
	}
	return true
}

func isNumeric(c string) bool {
	if len(c) != 3 {
		return false
	}
	for i := 0; i < 3; i++ {
		if c[i] < '0' || c[i] > '9' {
			return false
		}
	}
	return true
}

// parseTags decodes an "@k=v;k2" section. ircmsg handles value unescaping,
// so the section is parsed against a placeholder command.
func parseTags(section string) (map[string]string, error) {
	msg, err := ircmsg.ParseLine(section + " TAGMSG")
	if err != nil {
		return nil, err
	}
	return msg.AllTags(), nil
}

// Build encodes p as a CRLF-terminated line.
func Build(p Packet) string {
	return p.String() + "\r\n"
}

// String returns the wire form of p without the line terminator.
func (p Packet) String() string {
	var b strings.Builder
	if p.Prefix != "" {
		b.WriteByte(':')
		b.WriteString(p.Prefix)
		b.WriteByte(' ')
	}
	b.WriteString(p.Command)
	for _, param := range p.Params {
		b.WriteByte(' ')
		b.WriteString(param)
	}
	if p.Trail != "" {
		b.WriteString(" :")
		b.WriteString(p.Trail)
	}
	return b.String()
}

// Param returns the i-th middle parameter, or "" if there is none.
func (p Packet) Param(i int) string {
	if i < 0 || i >= len(p.Params) {
		return ""
	}
	return p.Params[i]
}

// Last returns the trail if present, otherwise the last middle parameter.
// Servers are free to send the final parameter either way.
func (p Packet) Last() string {
	if p.Trail != "" {
		return p.Trail
	}
	if len(p.Params) == 0 {
		return ""
	}
	return p.Params[len(p.Params)-1]
}

// Source decomposes the packet prefix.
func (p Packet) Source() (Source, error) {
	return ParsePrefix(p.Prefix)
}

// Is reports whether the packet carries the given command.
func (p Packet) Is(c Command) bool {
	return strings.EqualFold(p.Command, string(c))
}

// IsReply reports whether the packet carries the given numeric reply.
func (p Packet) IsReply(r Reply) bool {
	return p.Command == r.Code()
}
