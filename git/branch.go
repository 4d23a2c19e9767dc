package git

import "strings"

// Naming builds ticket branch names of the form
// <Prefix>/ticket-<id>[-<title slug>].
type Naming struct {
	Prefix    string
	WithTitle bool
	// Limit truncates the whole name; zero means no limit.
	Limit int
}

// DefaultNaming yields "feature/ticket-<id>".
func DefaultNaming() Naming {
	return Naming{Prefix: "feature", Limit: 100}
}

const maxTitleSlug = 50

func (n Naming) Branch(ticketID, title string) string {
	name := "ticket-" + slug(ticketID)
	if n.WithTitle {
		if s := slug(title); s != "" {
			if len(s) > maxTitleSlug {
				s = s[:maxTitleSlug]
			}
			name += "-" + s
		}
	}
	if n.Prefix != "" {
		name = n.Prefix + "/" + name
	}
	if n.Limit > 0 && len(name) > n.Limit {
		name = name[:n.Limit]
	}
	segments := strings.Split(name, "/")
	for i, s := range segments {
		segments[i] = strings.Trim(s, "-")
	}
	return strings.Join(segments, "/")
}

// slug lowercases s, turns spaces, underscores and hyphens into single
// hyphens and drops every other non-alphanumeric rune.
func slug(s string) string {
	var b strings.Builder
	gap := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if gap && b.Len() > 0 {
				b.WriteByte('-')
			}
			gap = false
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			gap = true
		}
	}
	return b.String()
}
