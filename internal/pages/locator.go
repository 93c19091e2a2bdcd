package pages

import (
	"fmt"
	"strings"
)

// Locator selects elements on the page. Exactly one of CSS, Role or Text is
// the primary selector; the remaining fields refine it.
type Locator struct {
	CSS string

	// Role selects by ARIA role (implicit roles included). Name matches the
	// accessible name exactly; NamePattern is a case-insensitive regular
	// expression. Level narrows headings.
	Role        string
	Name        string
	NamePattern string
	Level       int

	// Text selects the innermost elements whose text matches this
	// case-insensitive regular expression.
	Text string

	// HasText keeps matches whose text contains the substring.
	HasText string

	// Nth picks a single match (0-based) when Pick is set. Last picks the
	// last match.
	Nth  int
	Pick bool
	Last bool

	Parent *Locator
}

// CSS returns a locator for a CSS selector.
func CSS(selector string) Locator { return Locator{CSS: selector} }

// Role returns a locator for an ARIA role with an exact accessible name.
// An empty name matches any.
func Role(role, name string) Locator { return Locator{Role: role, Name: name} }

// RolePattern returns a locator for an ARIA role whose accessible name
// matches pattern.
func RolePattern(role, pattern string) Locator { return Locator{Role: role, NamePattern: pattern} }

// Heading returns a locator for a heading with the given name and level.
func Heading(name string, level int) Locator { return Locator{Role: "heading", Name: name, Level: level} }

// Text returns a locator for elements whose text matches pattern.
func Text(pattern string) Locator { return Locator{Text: pattern} }

// WithText narrows l to matches containing s.
func (l Locator) WithText(s string) Locator {
	l.HasText = s
	return l
}

// At picks the nth match.
func (l Locator) At(n int) Locator {
	l.Nth, l.Pick, l.Last = n, true, false
	return l
}

// First picks the first match.
func (l Locator) First() Locator { return l.At(0) }

// LastMatch picks the last match.
func (l Locator) LastMatch() Locator {
	l.Nth, l.Pick, l.Last = 0, false, true
	return l
}

// In scopes l to descendants of parent.
func (l Locator) In(parent Locator) Locator {
	p := parent
	l.Parent = &p
	return l
}

// String renders the locator in a stable, readable form. It is used in
// logs, errors and as a lookup key.
func (l Locator) String() string {
	var b strings.Builder
	if l.Parent != nil {
		b.WriteString(l.Parent.String())
		b.WriteString(" >> ")
	}
	switch {
	case l.Role != "":
		fmt.Fprintf(&b, "role=%s", l.Role)
		if l.Name != "" {
			fmt.Fprintf(&b, "[name=%q]", l.Name)
		}
		if l.NamePattern != "" {
			fmt.Fprintf(&b, "[name=/%s/i]", l.NamePattern)
		}
		if l.Level > 0 {
			fmt.Fprintf(&b, "[level=%d]", l.Level)
		}
	case l.Text != "":
		fmt.Fprintf(&b, "text=/%s/i", l.Text)
	default:
		css := l.CSS
		if css == "" {
			css = "*"
		}
		fmt.Fprintf(&b, "css=%s", css)
	}
	if l.HasText != "" {
		fmt.Fprintf(&b, ":has-text(%q)", l.HasText)
	}
	switch {
	case l.Last:
		b.WriteString(".last()")
	case l.Pick:
		fmt.Fprintf(&b, ".nth(%d)", l.Nth)
	}
	return b.String()
}
