package packet

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gobwas/glob"
)

var (
	// serverName matches dotted host names such as irc.example.net.
	serverName = regexp.MustCompile(`^([\w-]+\.)+[\w-]+$`)

	// userPrefix matches name[!user][@host].
	userPrefix = regexp.MustCompile(`^([^!@\s]+)(?:!([^!@\s]+))?(?:@(\S+))?$`)
)

// Source is the identity behind a packet prefix: either a server or a user.
type Source struct {
	Name     string
	User     string
	Host     string
	IsServer bool
}

// ParsePrefix decomposes a prefix. A dotted host name is classified as a
// server; anything else is parsed as name[!user][@host].
func ParsePrefix(prefix string) (Source, error) {
	if serverName.MatchString(prefix) {
		return Source{Name: prefix, Host: prefix, IsServer: true}, nil
	}
	m := userPrefix.FindStringSubmatch(prefix)
	if m == nil {
		return Source{}, fmt.Errorf("%w: %q", ErrInvalidPrefix, prefix)
	}
	return Source{Name: m[1], User: m[2], Host: m[3]}, nil
}

// String rebuilds the prefix form of s.
func (s Source) String() string {
	if s.IsServer {
		return s.Name
	}
	var b strings.Builder
	b.WriteString(s.Name)
	if s.User != "" {
		b.WriteByte('!')
		b.WriteString(s.User)
	}
	if s.Host != "" {
		b.WriteByte('@')
		b.WriteString(s.Host)
	}
	return b.String()
}

// Matches reports whether s matches a hostmask such as "*!*@*.example.net".
// Missing user or host parts of s are treated as empty strings, and the
// comparison ignores case.
func (s Source) Matches(mask string) bool {
	g, err := glob.Compile(strings.ToLower(mask))
	if err != nil {
		return false
	}
	full := strings.ToLower(s.Name + "!" + s.User + "@" + s.Host)
	if s.IsServer {
		full = strings.ToLower(s.Name)
	}
	return g.Match(full)
}

// MatchesAny reports whether s matches one of masks.
func (s Source) MatchesAny(masks []string) bool {
	for _, mask := range masks {
		if s.Matches(mask) {
			return true
		}
	}
	return false
}

// ValidMask checks that mask is a usable hostmask pattern.
func ValidMask(mask string) error {
	if strings.TrimSpace(mask) == "" {
		return fmt.Errorf("empty hostmask")
	}
	if _, err := glob.Compile(strings.ToLower(mask)); err != nil {
		return fmt.Errorf("bad hostmask %q: %w", mask, err)
	}
	return nil
}
