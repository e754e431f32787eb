// Package sanitize cleans user-supplied text before it is stored or mailed.
// Display names end up in plain-text email and in the diary UI, so any
// markup is stripped rather than escaped.
package sanitize

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

// policy strips every element and attribute. Initialized once.
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

// PlainText removes all HTML from input and returns the remaining text with
// entities decoded, so "Tom &amp; <b>Jerry</b>" becomes "Tom & Jerry".
// Surrounding whitespace is kept; emptiness checks are the caller's job.
func PlainText(input string) string {
	if input == "" || !strings.ContainsAny(input, "<>&") {
		return input
	}
	return html.UnescapeString(getPolicy().Sanitize(input))
}
