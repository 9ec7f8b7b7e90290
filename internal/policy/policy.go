// Package policy holds the host classification rules: look-alike brand
// patterns used for phishing detection, and blocked-site containment used
// during focus sessions.
package policy

import (
	"regexp"
	"strings"
)

// Family IDs.
const (
	// FamilyBackground is the pattern set the background pipeline uses:
	// letter/digit look-alikes such as 1 for l, 0 for o, 3 for e.
	FamilyBackground = "background"

	// FamilyPage is the pattern set the page probe uses: any digit in the
	// substituted position.
	FamilyPage = "page"
)

// Lookalike matches character-substitution variants of one brand domain.
type Lookalike struct {
	Brand   string
	Genuine string
	expr    *regexp.Regexp
}

// NewLookalike compiles a case-insensitive pattern for brand.
// genuine is the real domain; a match equal to it is not a look-alike.
func NewLookalike(brand, genuine, pattern string) Lookalike {
	return Lookalike{
		Brand:   brand,
		Genuine: genuine,
		expr:    regexp.MustCompile("(?i)" + pattern),
	}
}

// Match reports whether host contains a substituted variant of the brand.
func (l Lookalike) Match(host string) bool {
	for _, loc := range l.expr.FindAllStringIndex(host, -1) {
		if !strings.EqualFold(host[loc[0]:loc[1]], l.Genuine) {
			return true
		}
	}
	return false
}

// Family is an ordered set of look-alike patterns. Order matters: the first
// matching pattern is the one reported.
type Family struct {
	ID       string
	Name     string
	Patterns []Lookalike
}

// FirstMatch returns the first pattern matching host.
func (f Family) FirstMatch(host string) (Lookalike, bool) {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	for _, p := range f.Patterns {
		if p.Match(host) {
			return p, true
		}
	}
	return Lookalike{}, false
}

// NewBackgroundFamily returns the background pipeline's pattern set.
func NewBackgroundFamily() Family {
	return Family{
		ID:   FamilyBackground,
		Name: "Brand look-alikes",
		// Several classes also admit the genuine spelling (google.com matches
		// goog[1l]e). Match skips the genuine domain, so it is never reported.
		Patterns: []Lookalike{
			NewLookalike("Google", "google.com", `goog[1l]e\.com`),
			NewLookalike("PayPal", "paypal.com", `paypa[1l]\.com`),
			NewLookalike("Facebook", "facebook.com", `facebo[o0]k\.com`),
			NewLookalike("Twitter", "twitter.com", `twitt[e3]r\.com`),
			NewLookalike("Amazon", "amazon.com", `amaz[o0]n\.com`),
			NewLookalike("Apple", "apple.com", `app[1l]e\.com`),
			NewLookalike("Microsoft", "microsoft.com", `micr[o0]soft\.com`),
		},
	}
}

// NewPageFamily returns the page probe's pattern set.
func NewPageFamily() Family {
	return Family{
		ID:   FamilyPage,
		Name: "Digit substitutions",
		Patterns: []Lookalike{
			NewLookalike("Google", "google.com", `goog[0-9]e\.com`),
			NewLookalike("PayPal", "paypal.com", `paypa[0-9]\.com`),
			NewLookalike("Facebook", "facebook.com", `facebo[0-9]k\.com`),
			NewLookalike("Twitter", "twitter.com", `twitt[0-9]r\.com`),
			NewLookalike("Amazon", "amazon.com", `amaz[0-9]n\.com`),
		},
	}
}
