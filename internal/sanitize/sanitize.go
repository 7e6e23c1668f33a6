// Package sanitize cleans user-provided profile text before it is stored.
// Uses bluemonday to strip any markup so names render as plain text in
// every client.
package sanitize

import (
	"html"
	"strings"
	"sync"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

// policy strips every element and attribute. Initialized once via sync.Once.
var (
	policy     *bluemonday.Policy
	policyOnce sync.Once
)

func getPolicy() *bluemonday.Policy {
	policyOnce.Do(func() {
		policy = bluemonday.StrictPolicy()
	})
	return policy
}

// Text returns input with all HTML removed, control characters dropped, and
// runs of whitespace collapsed to a single space.
//
// This MUST be called on names and other free text before storing them.
func Text(input string) string {
	if input == "" {
		return ""
	}

	// StrictPolicy escapes what it keeps; the result is plain text, not HTML.
	stripped := html.UnescapeString(getPolicy().Sanitize(input))

	stripped = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, stripped)

	return strings.Join(strings.Fields(stripped), " ")
}
