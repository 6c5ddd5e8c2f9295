package irc

import (
	"context"
	"testing"
	"time"

	"github.com/dalnet/ircore/internal/event"
)

func welcome(t *testing.T, f *fakeServer, c *Client) {
	t.Helper()
	joined := collect[*ServerJoined](t, c)
	f.expect("USER")
	f.send(":irc.test.net 001 bot :Welcome")
	wait(t, joined)
}

func TestRouteMessages(t *testing.T) {
	f := newFakeServer(t)
	c, _ := newTestServer(t, f, nil)
	chanMsgs := collect[*ChannelMessage](t, c)
	privMsgs := collect[*PrivateMessage](t, c)
	welcome(t, f, c)

	f.send(":alice!al@host.example PRIVMSG #chan :hello  world")
	f.send(":bob!b@other.example PRIVMSG bot :psst")
	f.send(":carol!c@x.example PRIVMSG &local :local channel")

	cm := wait(t, chanMsgs)
	if cm.Channel.Name != "#chan" || cm.User.Nick() != "alice" || cm.Text != "hello  world" {
		t.Errorf("Unexpected channel message %+v", cm)
	}
	if cm.User.Host != "host.example" {
		t.Errorf("Expected the user host, got %q", cm.User.Host)
	}

	pm := wait(t, privMsgs)
	if pm.User.Nick() != "bob" || pm.Text != "psst" {
		t.Errorf("Unexpected private message %+v", pm)
	}

	if cm := wait(t, chanMsgs); cm.Channel.Name != "&local" {
		t.Errorf("Expected & to be a channel sigil, got %q", cm.Channel.Name)
	}
}

func TestRouteMembership(t *testing.T) {
	f := newFakeServer(t)
	c, _ := newTestServer(t, f, nil)
	chJoined := collect[*ChannelJoined](t, c)
	usJoined := collect[*UserJoined](t, c)
	usKicked := collect[*UserKicked](t, c)
	selfKicked := collect[*ClientKickedFromChannel](t, c)
	parted := collect[*UserParted](t, c)
	quits := collect[*UserQuit](t, c)
	welcome(t, f, c)

	f.send(":BOT!bot@me.example JOIN :#chan")
	if ev := wait(t, chJoined); ev.Channel.Name != "#chan" {
		t.Errorf("Expected self join of #chan, got %q", ev.Channel.Name)
	}

	f.send(":alice!al@host.example JOIN #chan")
	if ev := wait(t, usJoined); ev.User.Nick() != "alice" {
		t.Errorf("Expected alice to join, got %q", ev.User.Nick())
	}

	f.send(":alice!al@host.example PART #chan :bye")
	if ev := wait(t, parted); ev.Reason != "bye" {
		t.Errorf("Expected part reason, got %q", ev.Reason)
	}

	f.send(":op!o@host.example KICK #chan carol :flooding")
	if ev := wait(t, usKicked); ev.User.Nick() != "carol" || ev.By.Name != "op" {
		t.Errorf("Unexpected kick %+v", ev)
	}

	f.send(":op!o@host.example KICK #chan bot :you too")
	if ev := wait(t, selfKicked); ev.Reason != "you too" {
		t.Errorf("Unexpected self kick %+v", ev)
	}

	f.send(":dave!d@host.example QUIT :Ping timeout")
	if ev := wait(t, quits); ev.User.Nick() != "dave" || ev.Reason != "Ping timeout" {
		t.Errorf("Unexpected quit %+v", ev)
	}
}

func TestRouteNickTopicMode(t *testing.T) {
	f := newFakeServer(t)
	c, s := newTestServer(t, f, nil)
	nicks := collect[*NickChanged](t, c)
	topics := collect[*TopicChanged](t, c)
	modes := collect[*ModeChanged](t, c)
	welcome(t, f, c)

	f.send(":alice!al@host.example NICK :alicia")
	if ev := wait(t, nicks); ev.Self || ev.User.Nick() != "alice" || ev.NewNick != "alicia" {
		t.Errorf("Unexpected nick change %+v", ev)
	}

	f.send(":bot!bot@me.example NICK corebot")
	if ev := wait(t, nicks); !ev.Self || ev.NewNick != "corebot" {
		t.Errorf("Unexpected self nick change %+v", ev)
	}
	if s.CurrentNick() != "corebot" {
		t.Errorf("Expected nick to be tracked, got %q", s.CurrentNick())
	}

	f.send(":irc.test.net 332 corebot #chan :Welcome to #chan")
	if ev := wait(t, topics); ev.Channel.Name != "#chan" || ev.Topic != "Welcome to #chan" {
		t.Errorf("Unexpected topic reply %+v", ev)
	}

	f.send(":alice!al@host.example TOPIC #chan :new topic")
	if ev := wait(t, topics); ev.Source.Name != "alice" || ev.Topic != "new topic" {
		t.Errorf("Unexpected topic change %+v", ev)
	}

	f.send(":op!o@host.example MODE #chan +o alice")
	ev := wait(t, modes)
	if ev.Target != "#chan" || len(ev.Modes) != 2 || ev.Modes[0] != "+o" || ev.Modes[1] != "alice" {
		t.Errorf("Unexpected mode change %+v", ev)
	}
}

func TestConsumedPacketSkipsRouting(t *testing.T) {
	f := newFakeServer(t)
	c, _ := newTestServer(t, f, nil)
	msgs := collect[*ChannelMessage](t, c)
	notices := collect[*NoticeReceived](t, c)
	welcome(t, f, c)

	c.Register(event.NewSet(event.On("swallow", func(ctx context.Context, ev *PacketReceived) error {
		if ev.Packet().Trail == "secret" {
			ev.Consume()
		}
		return nil
	}, event.WithPriority(event.PriorityHigh))))

	f.send(":alice!al@host.example PRIVMSG #chan :secret")
	f.send(":irc.test.net NOTICE bot :marker")

	wait(t, notices)
	select {
	case ev := <-msgs:
		t.Errorf("Expected the consumed message not to be routed, got %q", ev.Text)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnknownCodeIsIgnored(t *testing.T) {
	f := newFakeServer(t)
	c, _ := newTestServer(t, f, nil)
	notices := collect[*NoticeReceived](t, c)

	f.send(":irc.test.net 999 bot :something new")
	f.send(":irc.test.net FROBNICATE bot")
	f.send(":irc.test.net NOTICE bot :after")

	if ev := wait(t, notices); ev.Text != "after" {
		t.Errorf("Expected routing to continue after unknown codes, got %q", ev.Text)
	}
}

func TestFoldNick(t *testing.T) {
	tests := []struct {
		a, b string
		same bool
	}{
		{"Bot", "bot", true},
		{"bot[away]", "BOT{AWAY}", true},
		{"a\\b", "A|B", true},
		{"x~", "X^", true},
		{"bot", "bot_", false},
	}
	for _, tt := range tests {
		if got := sameNick(tt.a, tt.b); got != tt.same {
			t.Errorf("sameNick(%q, %q): expected %v, got %v", tt.a, tt.b, tt.same, got)
		}
	}
}

func TestIsChannel(t *testing.T) {
	for _, target := range []string{"#a", "&b", "+c", "!d"} {
		if !isChannel(target) {
			t.Errorf("Expected %q to be a channel", target)
		}
	}
	for _, target := range []string{"bot", "", "@x"} {
		if isChannel(target) {
			t.Errorf("Expected %q not to be a channel", target)
		}
	}
}
