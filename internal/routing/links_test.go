package routing

import (
	"errors"
	"strings"
	"testing"

	"github.com/dalnet/ircore/internal/packet"
)

func mustParse(t *testing.T, line string) packet.Packet {
	t.Helper()
	p, err := packet.Parse(line)
	if err != nil {
		t.Fatalf("Parse(%q) failed: %v", line, err)
	}
	return p
}

func TestParseLink(t *testing.T) {
	l, err := ParseLink(mustParse(t, ":hub.dal.net 364 bot leaf1.dal.net hub.dal.net :2 Leaf number one"))
	if err != nil {
		t.Fatalf("ParseLink failed: %v", err)
	}
	want := Link{Server: "leaf1.dal.net", Hub: "hub.dal.net", Hops: 2, Description: "Leaf number one"}
	if l != want {
		t.Errorf("Expected %+v, got %+v", want, l)
	}
}

func TestParseLinkMalformed(t *testing.T) {
	lines := []string{
		":hub.dal.net 365 bot * :End of /LINKS list.",
		":hub.dal.net 364 bot leaf1.dal.net",
		":hub.dal.net 364 bot leaf1.dal.net hub.dal.net :many hops",
	}
	for _, line := range lines {
		if _, err := ParseLink(mustParse(t, line)); !errors.Is(err, packet.ErrMalformedPacket) {
			t.Errorf("ParseLink(%q): expected ErrMalformedPacket, got %v", line, err)
		}
	}
}

func sampleTree() *Tree {
	tree := NewTree()
	tree.Add(Link{Server: "hub.dal.net", Hub: "hub.dal.net", Hops: 0, Description: "DALnet Hub"})
	tree.Add(Link{Server: "server2.dal.net", Hub: "hub.dal.net", Hops: 1, Description: "Server 2"})
	tree.Add(Link{Server: "server1.dal.net", Hub: "hub.dal.net", Hops: 1, Description: "Server 1"})
	tree.Add(Link{Server: "leaf1.dal.net", Hub: "server1.dal.net", Hops: 2, Description: "Leaf 1"})
	return tree
}

func TestTreeRender(t *testing.T) {
	lines := sampleTree().Render()

	want := []string{
		"hub.dal.net (0) DALnet Hub",
		"|_ server1.dal.net (1) Server 1",
		"   ||_ leaf1.dal.net (2) Leaf 1",
		"|_ server2.dal.net (1) Server 2",
	}
	if len(lines) != len(want) {
		t.Fatalf("Expected %d lines, got %d: %q", len(want), len(lines), lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("Line %d: expected %q, got %q", i, want[i], lines[i])
		}
	}
}

func TestTreeRenderWithoutRoot(t *testing.T) {
	tree := NewTree()
	if lines := tree.Render(); lines != nil {
		t.Errorf("Expected no lines for an empty tree, got %q", lines)
	}

	tree.Add(Link{Server: "a.dal.net", Hub: "b.dal.net", Hops: 1})
	tree.Add(Link{Server: "b.dal.net", Hub: "a.dal.net", Hops: 1})
	lines := tree.Render()
	if len(lines) != 1 || !strings.Contains(lines[0], "no root") {
		t.Errorf("Expected a missing root notice, got %q", lines)
	}
}

func TestTreeServers(t *testing.T) {
	tree := sampleTree()
	tree.Add(Link{Server: "SERVER1.dal.net", Hub: "hub.dal.net", Hops: 1, Description: "Server 1"})

	if tree.Len() != 4 {
		t.Errorf("Expected duplicate servers to collapse, got %d", tree.Len())
	}
	servers := tree.Servers()
	if strings.Join(servers, ",") != "SERVER1,hub,leaf1,server2" {
		t.Errorf("Unexpected servers %v", servers)
	}
}
