package irc

import (
	"github.com/dalnet/ircore/internal/event"
	"github.com/dalnet/ircore/internal/packet"
)

// PacketReceived wraps every inbound line that parsed.
type PacketReceived struct {
	event.Base
	Server *Server
	pk     packet.Packet
}

func (e *PacketReceived) Packet() packet.Packet { return e.pk }

func (e *PacketReceived) Scope() string { return e.Server.Name }

// ServerJoined is emitted once the server welcomed the client.
type ServerJoined struct {
	event.Base
	Server *Server
	Nick   string
}

type ChannelJoined struct {
	event.Base
	Server  *Server
	Channel *Channel
}

type ChannelParted struct {
	event.Base
	Server  *Server
	Channel *Channel
	Reason  string
}

// ClientKickedFromChannel is emitted when the client itself was kicked.
type ClientKickedFromChannel struct {
	event.Base
	Server  *Server
	Channel *Channel
	By      packet.Source
	Reason  string
}

type UserJoined struct {
	event.Base
	Server  *Server
	Channel *Channel
	User    *User
}

type UserParted struct {
	event.Base
	Server  *Server
	Channel *Channel
	User    *User
	Reason  string
}

type UserKicked struct {
	event.Base
	Server  *Server
	Channel *Channel
	User    *User
	By      packet.Source
	Reason  string
}

type UserQuit struct {
	event.Base
	Server *Server
	User   *User
	Reason string
}

// ModeChanged carries the raw mode string and its arguments.
type ModeChanged struct {
	event.Base
	Server *Server
	Source packet.Source
	Target string
	Modes  []string
}

// TopicChanged is emitted for TOPIC and for the topic reply sent on join.
type TopicChanged struct {
	event.Base
	Server  *Server
	Channel *Channel
	Source  packet.Source
	Topic   string
}

type NickChanged struct {
	event.Base
	Server  *Server
	User    *User
	NewNick string
	Self    bool
}

// NickRejected is emitted when the server refused a nick. Next is the nick
// tried instead, empty once registration is over.
type NickRejected struct {
	event.Base
	Server *Server
	Nick   string
	Reply  packet.Reply
	Next   string
}

type NoticeReceived struct {
	event.Base
	Server *Server
	Source packet.Source
	Target string
	Text   string
}

type PrivateMessage struct {
	event.Base
	Server *Server
	User   *User
	Text   string
}

type ChannelMessage struct {
	event.Base
	Server  *Server
	Channel *Channel
	User    *User
	Text    string
}

// ConnectionLost ends a connection that died without a goodbye: a failed
// liveness probe or a socket closed by the peer.
type ConnectionLost struct {
	event.Base
	Server *Server
	Reason string
	Err    error
}

// ClientQuitServer ends a connection the client closed itself.
type ClientQuitServer struct {
	event.Base
	Server *Server
	Reason string
}

// ClientKickedFromServer ends a connection the server closed with ERROR or
// KILL.
type ClientKickedFromServer struct {
	event.Base
	Server *Server
	By     packet.Source
	Reason string
}
