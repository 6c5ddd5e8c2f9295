package irc

import (
	"strings"

	"github.com/dalnet/ircore/internal/packet"
)

// Channel is a channel on one server.
type Channel struct {
	Name   string
	server *Server
}

func (c *Channel) Server() *Server { return c.server }

func (c *Channel) SendMessage(text string) error {
	return c.server.Send(packet.Privmsg(c.Name, text))
}

func (c *Channel) SendNotice(text string) error {
	return c.server.Send(packet.Notice(c.Name, text))
}

func (c *Channel) Part(reason string) error {
	return c.server.Send(packet.Part(c.Name, reason))
}

// User is someone seen on a server.
type User struct {
	packet.Source
	server *Server
}

func (u *User) Nick() string { return u.Name }

func (u *User) Server() *Server { return u.server }

func (u *User) SendMessage(text string) error {
	return u.server.Send(packet.Privmsg(u.Name, text))
}

func (u *User) SendNotice(text string) error {
	return u.server.Send(packet.Notice(u.Name, text))
}

// isChannel reports whether target starts with a channel sigil.
func isChannel(target string) bool {
	return target != "" && strings.ContainsRune("#&+!", rune(target[0]))
}

// foldNick lower-cases a nick with the rfc1459 mapping, where {}|^ are the
// lower-case forms of []\~.
func foldNick(nick string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '[':
			return '{'
		case ']':
			return '}'
		case '\\':
			return '|'
		case '~':
			return '^'
		}
		if r >= 'A' && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return r
	}, nick)
}

func sameNick(a, b string) bool {
	return foldNick(a) == foldNick(b)
}
