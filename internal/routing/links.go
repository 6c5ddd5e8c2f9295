// Package routing renders the server topology reported by LINKS.
package routing

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dalnet/ircore/internal/packet"
)

// Link is one RPL_LINKS line.
type Link struct {
	Server      string
	Hub         string
	Hops        int
	Description string
}

// ParseLink decodes "364 <me> <server> <hub> :<hops> <description>".
func ParseLink(p packet.Packet) (Link, error) {
	if !p.IsReply(packet.RplLinks) || len(p.Params) < 3 {
		return Link{}, fmt.Errorf("%w: not a links reply: %s", packet.ErrMalformedPacket, p)
	}
	info := p.Trail
	if info == "" && len(p.Params) > 3 {
		info = strings.Join(p.Params[3:], " ")
	}

	l := Link{Server: p.Params[1], Hub: p.Params[2]}
	hops, desc, _ := strings.Cut(info, " ")
	n, err := strconv.Atoi(hops)
	if err != nil {
		return Link{}, fmt.Errorf("%w: bad hop count %q", packet.ErrMalformedPacket, hops)
	}
	l.Hops = n
	l.Description = desc
	return l, nil
}

// Tree collects links until the listing ends.
type Tree struct {
	links map[string]Link
}

func NewTree() *Tree {
	return &Tree{links: make(map[string]Link)}
}

// Add records l. A server seen twice keeps its last link.
func (t *Tree) Add(l Link) {
	t.links[strings.ToLower(l.Server)] = l
}

func (t *Tree) Len() int {
	return len(t.links)
}

// Servers returns the short names (up to the first dot) of every server.
func (t *Tree) Servers() []string {
	servers := make([]string, 0, len(t.links))
	for _, l := range t.links {
		short, _, _ := strings.Cut(l.Server, ".")
		servers = append(servers, short)
	}
	sort.Strings(servers)
	return servers
}

// Render draws the tree depth first, children sorted by name.
func (t *Tree) Render() []string {
	var root *Link
	for _, l := range t.links {
		if l.Hops == 0 {
			l := l
			root = &l
			break
		}
	}
	if root == nil {
		if len(t.links) == 0 {
			return nil
		}
		return []string{"no root server in links reply"}
	}

	children := make(map[string][]Link)
	for _, l := range t.links {
		if strings.EqualFold(l.Server, l.Hub) {
			continue
		}
		hub := strings.ToLower(l.Hub)
		children[hub] = append(children[hub], l)
	}
	for _, c := range children {
		sort.Slice(c, func(i, j int) bool { return c[i].Server < c[j].Server })
	}

	lines := []string{fmt.Sprintf("%s (%d) %s", root.Server, root.Hops, root.Description)}
	seen := map[string]bool{strings.ToLower(root.Server): true}
	var walk func(hub string, indent string)
	walk = func(hub string, indent string) {
		var kids []Link
		for _, l := range children[strings.ToLower(hub)] {
			if !seen[strings.ToLower(l.Server)] {
				seen[strings.ToLower(l.Server)] = true
				kids = append(kids, l)
			}
		}
		for i, l := range kids {
			last := i == len(kids)-1
			lines = append(lines, fmt.Sprintf("%s|_ %s (%d) %s", indent, l.Server, l.Hops, l.Description))
			next := indent + "   |"
			if last {
				next = indent + "    "
			}
			walk(l.Server, next)
		}
	}
	walk(root.Server, "")
	return lines
}
