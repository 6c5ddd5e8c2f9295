package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-log/log"

	"github.com/dalnet/ircore/internal/callback"
	"github.com/dalnet/ircore/internal/event"
	"github.com/dalnet/ircore/internal/irc"
	"github.com/dalnet/ircore/internal/packet"
	"github.com/dalnet/ircore/internal/routing"
	"github.com/dalnet/ircore/internal/storage"
)

const (
	defaultJournalLines = 10
	maxJournalLines     = 50
	linksTimeout        = 30 * time.Second
)

// bot journals connection events and answers a few ! commands.
type bot struct {
	journal *storage.Journal
	started time.Time

	// owners may read the journal; empty means anyone may.
	owners []string
	// ignore holds hostmasks per server name.
	ignore map[string][]string
}

func newBot(journal *storage.Journal, owners []string, ignore map[string][]string) *bot {
	return &bot{journal: journal, started: time.Now(), owners: owners, ignore: ignore}
}

func (b *bot) ignored(server string, from packet.Source) bool {
	return from.MatchesAny(b.ignore[server])
}

func (b *bot) handlers() *event.Set {
	return event.NewSet(
		event.On("ircbot.joined", b.onServerJoined),
		event.On("ircbot.lost", b.onConnectionLost),
		event.On("ircbot.quit", b.onQuit),
		event.On("ircbot.killed", b.onKicked),
		event.On("ircbot.channel", b.onChannelMessage),
		event.On("ircbot.private", b.onPrivateMessage),
	)
}

func (b *bot) record(format string, v ...interface{}) {
	if err := b.journal.Append(fmt.Sprintf(format, v...)); err != nil {
		log.Logf("[ircbot] journal: %v", err)
	}
}

func (b *bot) onServerJoined(ctx context.Context, ev *irc.ServerJoined) error {
	b.record("%s: registered as %s", ev.Server.Name, ev.Nick)
	return nil
}

func (b *bot) onConnectionLost(ctx context.Context, ev *irc.ConnectionLost) error {
	b.record("%s: connection lost (%s)", ev.Server.Name, ev.Reason)
	return nil
}

func (b *bot) onQuit(ctx context.Context, ev *irc.ClientQuitServer) error {
	b.record("%s: quit (%s)", ev.Server.Name, ev.Reason)
	return nil
}

func (b *bot) onKicked(ctx context.Context, ev *irc.ClientKickedFromServer) error {
	if ev.By.Name == "" {
		b.record("%s: disconnected (%s)", ev.Server.Name, ev.Reason)
		return nil
	}
	b.record("%s: disconnected by %s (%s)", ev.Server.Name, ev.By.Name, ev.Reason)
	return nil
}

func (b *bot) onChannelMessage(ctx context.Context, ev *irc.ChannelMessage) error {
	if b.ignored(ev.Server.Name, ev.User.Source) {
		return nil
	}
	b.record("%s: %s <%s> %s", ev.Server.Name, ev.Channel.Name, ev.User.Nick(), ev.Text)
	return b.command(ev.Server, ev.User.Source, ev.Text, ev.Channel.SendMessage)
}

func (b *bot) onPrivateMessage(ctx context.Context, ev *irc.PrivateMessage) error {
	if b.ignored(ev.Server.Name, ev.User.Source) {
		return nil
	}
	if ev.Text == "\x01VERSION\x01" {
		reply := fmt.Sprintf("ircbot %s (built %s, commit %s)", version, buildDate, gitCommit)
		return ev.User.SendNotice("\x01VERSION " + reply + "\x01")
	}
	return b.command(ev.Server, ev.User.Source, ev.Text, ev.User.SendMessage)
}

// command runs a ! command from a user and sends its output through reply.
func (b *bot) command(s *irc.Server, from packet.Source, text string, reply func(string) error) error {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "!") {
		return nil
	}

	switch strings.ToLower(fields[0]) {
	case "!version":
		return reply(fmt.Sprintf("ircbot version %s", version))
	case "!uptime":
		return reply(fmt.Sprintf("up %s", time.Since(b.started).Round(time.Second)))
	case "!journal":
		if len(b.owners) > 0 && !from.MatchesAny(b.owners) {
			return reply("!journal is restricted to bot owners")
		}
		return b.cmdJournal(fields[1:], reply)
	case "!links":
		return b.cmdLinks(s, reply)
	}
	return nil
}

func (b *bot) cmdJournal(args []string, reply func(string) error) error {
	n := defaultJournalLines
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v <= 0 {
			return reply("usage: !journal [count]")
		}
		n = min(v, maxJournalLines)
	}

	entries := b.journal.Recent(n)
	if len(entries) == 0 {
		return reply("journal is empty")
	}
	for _, e := range entries {
		if err := reply(e); err != nil {
			return err
		}
	}
	return nil
}

// cmdLinks asks the server for its links and replies with the rendered tree
// once the listing ends. Replies in between are collected by the callback
// without being consumed.
func (b *bot) cmdLinks(s *irc.Server, reply func(string) error) error {
	tree := routing.NewTree()
	send := func(line string) {
		if err := reply(line); err != nil {
			log.Logf("[ircbot] links reply: %v", err)
		}
	}
	cb := &callback.Callback{
		Codes:    []string{packet.RplLinks.Code(), packet.RplEndOfLinks.Code()},
		Priority: event.PriorityLow,
		Timeout:  linksTimeout,
		OnPacket: func(p packet.Packet) bool {
			if p.IsReply(packet.RplLinks) {
				l, err := routing.ParseLink(p)
				if err != nil {
					log.Logf("[ircbot] %v", err)
					return false
				}
				tree.Add(l)
				return false
			}
			for _, line := range tree.Render() {
				send(line)
			}
			send(fmt.Sprintf("%d servers linked", tree.Len()))
			return true
		},
		OnTimeout: func() {
			send("LINKS timed out")
		},
	}
	return s.SendWithCallback(packet.Links(), cb)
}
