package main

import (
	"bufio"
	"context"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/dalnet/ircore/internal/irc"
	"github.com/dalnet/ircore/internal/packet"
	"github.com/dalnet/ircore/internal/storage"
)

var alice = packet.Source{Name: "alice", User: "a", Host: "host.example"}

func newJournal(t *testing.T) *storage.Journal {
	t.Helper()
	dir, err := os.MkdirTemp("", "ircbot-test")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	j, err := storage.OpenJournal(dir)
	if err != nil {
		t.Fatal(err)
	}
	return j
}

type replies []string

func (r *replies) send(line string) error {
	*r = append(*r, line)
	return nil
}

func TestCommandVersion(t *testing.T) {
	var out replies
	b := newBot(newJournal(t), nil, nil)

	if err := b.command(nil, alice, "!VERSION please", out.send); err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0] != "ircbot version "+version {
		t.Errorf("Unexpected reply %q", out)
	}
}

func TestCommandIgnoresChatter(t *testing.T) {
	var out replies
	b := newBot(newJournal(t), nil, nil)

	for _, text := range []string{"", "hello there", "version!", "!unknown"} {
		if err := b.command(nil, alice, text, out.send); err != nil {
			t.Fatal(err)
		}
	}
	if len(out) != 0 {
		t.Errorf("Expected no replies, got %q", out)
	}
}

func TestCommandJournal(t *testing.T) {
	j := newJournal(t)
	b := newBot(j, nil, nil)

	var out replies
	b.command(nil, alice, "!journal", out.send)
	if len(out) != 1 || out[0] != "journal is empty" {
		t.Errorf("Unexpected reply for empty journal %q", out)
	}

	for _, e := range []string{"one", "two", "three"} {
		b.record("test: %s", e)
	}

	out = nil
	b.command(nil, alice, "!journal 2", out.send)
	if len(out) != 2 || !strings.HasSuffix(out[0], "test: three") {
		t.Errorf("Expected the two newest entries, got %q", out)
	}

	out = nil
	b.command(nil, alice, "!journal zero", out.send)
	if len(out) != 1 || !strings.HasPrefix(out[0], "usage:") {
		t.Errorf("Expected usage, got %q", out)
	}
}

func TestCommandJournalOwners(t *testing.T) {
	b := newBot(newJournal(t), []string{"*!*@staff.dal.net"}, nil)

	var out replies
	b.command(nil, alice, "!journal", out.send)
	if len(out) != 1 || !strings.Contains(out[0], "restricted") {
		t.Errorf("Expected a refusal for a non-owner, got %q", out)
	}

	out = nil
	owner := packet.Source{Name: "bob", User: "b", Host: "Staff.DAL.net"}
	b.command(nil, owner, "!journal", out.send)
	if len(out) != 1 || out[0] != "journal is empty" {
		t.Errorf("Expected the journal for an owner, got %q", out)
	}

	out = nil
	b.command(nil, alice, "!version", out.send)
	if len(out) != 1 {
		t.Errorf("Expected !version to stay open to everyone, got %q", out)
	}
}

// ircPeer is the server side of one client connection.
type ircPeer struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func (p *ircPeer) send(line string) {
	p.t.Helper()
	if _, err := p.conn.Write([]byte(line + "\r\n")); err != nil {
		p.t.Fatalf("write: %v", err)
	}
}

func (p *ircPeer) expect(prefix string) string {
	p.t.Helper()
	p.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		line, err := p.r.ReadString('\n')
		if err != nil {
			p.t.Fatalf("waiting for %q: %v", prefix, err)
		}
		line = strings.TrimRight(line, "\r\n")
		if strings.HasPrefix(line, prefix) {
			return line
		}
	}
}

func connectBot(t *testing.T, b *bot) *ircPeer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	client := irc.NewClient(irc.WithSweepInterval(10 * time.Millisecond))
	t.Cleanup(func() { client.Close(context.Background()) })
	if err := client.Register(b.handlers()); err != nil {
		t.Fatal(err)
	}
	s := &irc.Server{
		Name:      "test",
		URL:       "127.0.0.1",
		Port:      ln.Addr().(*net.TCPAddr).Port,
		Nick:      "bot",
		Channels:  []string{"#ops"},
		SendDelay: -1,
	}
	if err := client.AddServer(s); err != nil {
		t.Fatal(err)
	}
	if err := s.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	conn, err := ln.Accept()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	p := &ircPeer{t: t, conn: conn, r: bufio.NewReader(conn)}
	p.expect("USER")
	p.send(":hub.dal.net 001 bot :Welcome")
	p.expect("JOIN #ops")
	return p
}

func TestLinksCommand(t *testing.T) {
	p := connectBot(t, newBot(newJournal(t), nil, nil))

	p.send(":alice!a@host.example PRIVMSG #ops :!links")
	p.expect("LINKS")
	p.send(":hub.dal.net 364 bot hub.dal.net hub.dal.net :0 DALnet Hub")
	p.send(":hub.dal.net 364 bot leaf.dal.net hub.dal.net :1 Leaf")
	p.send(":hub.dal.net 365 bot * :End of /LINKS list.")

	want := []string{
		"PRIVMSG #ops :hub.dal.net (0) DALnet Hub",
		"PRIVMSG #ops :|_ leaf.dal.net (1) Leaf",
		"PRIVMSG #ops :2 servers linked",
	}
	for _, w := range want {
		if got := p.expect("PRIVMSG #ops"); got != w {
			t.Errorf("Expected %q, got %q", w, got)
		}
	}
}

func TestCtcpVersion(t *testing.T) {
	p := connectBot(t, newBot(newJournal(t), nil, nil))

	p.send(":alice!a@host.example PRIVMSG bot :\x01VERSION\x01")
	got := p.expect("NOTICE alice")
	if !strings.Contains(got, "\x01VERSION ircbot "+version) {
		t.Errorf("Unexpected CTCP reply %q", got)
	}
}

func TestIgnoredUsers(t *testing.T) {
	j := newJournal(t)
	b := newBot(j, nil, map[string][]string{"test": {"*!*@*.spam.example"}})
	p := connectBot(t, b)

	p.send(":spammer!s@bot.spam.example PRIVMSG #ops :!version")
	p.send(":spammer!s@bot.spam.example PRIVMSG bot :\x01VERSION\x01")
	p.send(":alice!a@host.example PRIVMSG #ops :!version")

	// replies go out in order, so the first one seen must be alice's
	if got := p.expect("PRIVMSG #ops"); got != "PRIVMSG #ops :ircbot version "+version {
		t.Errorf("Unexpected reply %q", got)
	}
	for _, e := range j.Recent(0) {
		if strings.Contains(e, "spammer") {
			t.Errorf("Ignored user was journaled: %q", e)
		}
	}
}

func TestJournalRecordsConnection(t *testing.T) {
	j := newJournal(t)
	p := connectBot(t, newBot(j, nil, nil))

	p.send(":alice!a@host.example PRIVMSG #ops :hello")
	p.send("ERROR :Closing Link: bot (K-lined)")

	deadline := time.Now().Add(2 * time.Second)
	for j.Len() < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	entries := j.Recent(0)
	if len(entries) != 3 {
		t.Fatalf("Expected 3 journal entries, got %q", entries)
	}
	if !strings.HasSuffix(entries[2], "test: registered as bot") {
		t.Errorf("Unexpected oldest entry %q", entries[2])
	}
	if !strings.HasSuffix(entries[1], "test: #ops <alice> hello") {
		t.Errorf("Unexpected message entry %q", entries[1])
	}
	if !strings.Contains(entries[0], "test: disconnected") {
		t.Errorf("Unexpected last entry %q", entries[0])
	}
}
