package irc

import (
	"context"
	"strings"

	"github.com/go-log/log"

	"github.com/dalnet/ircore/internal/event"
	"github.com/dalnet/ircore/internal/logging"
	"github.com/dalnet/ircore/internal/packet"
)

/*
Stock handlers, both INTERNAL on PacketReceived:

protocol (runs even on consumed packets):
- PING: answered with PONG ahead of the send queue
- 001 RPL_WELCOME: records the assigned nick, joins the configured
  channels, emits ServerJoined
- 432/433/436/437: tries the alternate nick, then nick_ up to MaxNickAttempts
  times and emits NickRejected
- NICK of the client: tracks the new nick, emits NickChanged
- QUIT of the client: ClientQuitServer
- ERROR, KILL of the client: ClientKickedFromServer
- unknown codes: warning

route (skipped once a packet is consumed):
- JOIN, PART, KICK: Channel* events for the client, User* events for others
- QUIT of others: UserQuit
- PRIVMSG: ChannelMessage or PrivateMessage by the target's sigil
- NOTICE, MODE, TOPIC and 332, NICK of others
*/

func (c *Client) stockHandlers() *event.Set {
	return event.NewSet(
		event.On("irc.protocol", c.onProtocol, event.WithPriority(event.PriorityInternal), event.Always()),
		event.On("irc.route", c.onRoute, event.WithPriority(event.PriorityInternal)),
	)
}

func (c *Client) onProtocol(ctx context.Context, ev *PacketReceived) error {
	s, p := ev.Server, ev.pk

	if packet.Classify(p.Command) == packet.KindUnknown {
		logging.Warnf("[irc] %s: unknown code %s: %s", s.Name, p.Command, p)
		return nil
	}

	switch {
	case p.Is(packet.CmdPing):
		return s.SendFirst(packet.Pong(p.Last()))

	case p.IsReply(packet.RplWelcome):
		c.onWelcome(ctx, s, p)

	case p.IsReply(packet.ErrErroneusNickname), p.IsReply(packet.ErrNicknameInUse),
		p.IsReply(packet.ErrNickCollision), p.IsReply(packet.ErrUnavailResource):
		return c.onNickRejected(ctx, s, p)

	case p.Is(packet.CmdNick):
		src, err := p.Source()
		if err != nil || !s.IsSelf(src.Name) {
			return nil
		}
		s.mu.Lock()
		s.nick = p.Last()
		s.mu.Unlock()
		c.fire(ctx, &NickChanged{Server: s, User: &User{Source: src, server: s}, NewNick: p.Last(), Self: true})

	case p.Is(packet.CmdQuit):
		src, err := p.Source()
		if err != nil || !s.IsSelf(src.Name) {
			return nil
		}
		s.mu.Lock()
		gen := s.gen
		s.mu.Unlock()
		s.terminate(gen, &ClientQuitServer{Server: s, Reason: p.Trail}, "")

	case p.Is(packet.CmdError):
		s.mu.Lock()
		gen := s.gen
		s.mu.Unlock()
		src, _ := p.Source()
		s.terminate(gen, &ClientKickedFromServer{Server: s, By: src, Reason: p.Last()}, "")

	case p.Is(packet.CmdKill):
		if !s.IsSelf(p.Param(0)) {
			return nil
		}
		s.mu.Lock()
		gen := s.gen
		s.mu.Unlock()
		src, _ := p.Source()
		s.terminate(gen, &ClientKickedFromServer{Server: s, By: src, Reason: p.Last()}, "")
	}
	return nil
}

func (c *Client) onWelcome(ctx context.Context, s *Server, p packet.Packet) {
	s.mu.Lock()
	if nick := p.Param(0); nick != "" {
		s.nick = nick
	}
	if s.state == Connected {
		s.state = Joined
	}
	nick := s.nick
	s.mu.Unlock()

	log.Logf("[irc] %s: registered as %s", s.Name, nick)

	if len(s.Channels) > 0 {
		if err := s.Send(packet.Join(s.Channels...)); err != nil {
			log.Logf("[irc] %s: auto-join: %v", s.Name, err)
		}
	}
	c.fire(ctx, &ServerJoined{Server: s, Nick: nick})
}

// onNickRejected picks the next nick while registration is still running.
// Once the server welcomed the client, or MaxNickAttempts replacements
// were refused, a rejection leaves the current nick in place.
func (c *Client) onNickRejected(ctx context.Context, s *Server, p packet.Packet) error {
	reply, _ := packet.LookupReply(p.Command)
	rejected := p.Param(1)
	if rejected == "" {
		rejected = s.CurrentNick()
	}

	var next string
	s.mu.Lock()
	if s.state == Connected && s.nickTries < MaxNickAttempts {
		next = rejected + "_"
		if sameNick(rejected, s.Nick) && s.AltNick != "" && !sameNick(s.AltNick, s.Nick) {
			next = s.AltNick
		}
		s.nickTries++
		s.nick = next
	}
	s.mu.Unlock()

	if next != "" {
		log.Logf("[irc] %s: nick %s rejected (%s), trying %s", s.Name, rejected, reply, next)
		if err := s.SendFirst(packet.Nick(next)); err != nil {
			return err
		}
	} else if s.State() == Connected {
		log.Logf("[irc] %s: nick %s rejected (%s), giving up after %d attempts", s.Name, rejected, reply, MaxNickAttempts)
	}

	c.fire(ctx, &NickRejected{Server: s, Nick: rejected, Reply: reply, Next: next})
	return nil
}

func (c *Client) onRoute(ctx context.Context, ev *PacketReceived) error {
	s, p := ev.Server, ev.pk

	src, err := p.Source()
	if err != nil && p.Prefix != "" {
		log.Logf("[irc] %s: %s from unusable prefix %q: %v", s.Name, p.Command, p.Prefix, err)
		return nil
	}
	user := &User{Source: src, server: s}
	self := src.Name != "" && s.IsSelf(src.Name)

	switch {
	case p.Is(packet.CmdJoin):
		ch := s.Channel(firstOf(p.Param(0), p.Trail))
		if self {
			c.fire(ctx, &ChannelJoined{Server: s, Channel: ch})
		} else {
			c.fire(ctx, &UserJoined{Server: s, Channel: ch, User: user})
		}

	case p.Is(packet.CmdPart):
		ch := s.Channel(p.Param(0))
		if self {
			c.fire(ctx, &ChannelParted{Server: s, Channel: ch, Reason: p.Trail})
		} else {
			c.fire(ctx, &UserParted{Server: s, Channel: ch, User: user, Reason: p.Trail})
		}

	case p.Is(packet.CmdKick):
		ch := s.Channel(p.Param(0))
		kicked := p.Param(1)
		if s.IsSelf(kicked) {
			c.fire(ctx, &ClientKickedFromChannel{Server: s, Channel: ch, By: src, Reason: p.Trail})
		} else {
			target := &User{Source: packet.Source{Name: kicked}, server: s}
			c.fire(ctx, &UserKicked{Server: s, Channel: ch, User: target, By: src, Reason: p.Trail})
		}

	case p.Is(packet.CmdQuit):
		if !self {
			c.fire(ctx, &UserQuit{Server: s, User: user, Reason: p.Trail})
		}

	case p.Is(packet.CmdPrivmsg):
		target := p.Param(0)
		if isChannel(target) {
			c.fire(ctx, &ChannelMessage{Server: s, Channel: s.Channel(target), User: user, Text: p.Trail})
		} else {
			c.fire(ctx, &PrivateMessage{Server: s, User: user, Text: p.Trail})
		}

	case p.Is(packet.CmdNotice):
		c.fire(ctx, &NoticeReceived{Server: s, Source: src, Target: p.Param(0), Text: p.Last()})

	case p.Is(packet.CmdMode):
		modes := append([]string(nil), p.Params[min(1, len(p.Params)):]...)
		if p.Trail != "" {
			modes = append(modes, p.Trail)
		}
		c.fire(ctx, &ModeChanged{Server: s, Source: src, Target: p.Param(0), Modes: modes})

	case p.Is(packet.CmdTopic):
		c.fire(ctx, &TopicChanged{Server: s, Channel: s.Channel(p.Param(0)), Source: src, Topic: p.Trail})

	case p.IsReply(packet.RplTopic):
		c.fire(ctx, &TopicChanged{Server: s, Channel: s.Channel(p.Param(1)), Source: src, Topic: p.Last()})

	case p.Is(packet.CmdNick):
		// the client's own change was handled by the protocol handler
		if !s.IsSelf(p.Last()) {
			c.fire(ctx, &NickChanged{Server: s, User: user, NewNick: p.Last()})
		}
	}
	return nil
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
