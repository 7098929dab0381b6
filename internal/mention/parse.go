package mention

import (
	"regexp"
	"strings"
)

// namePattern accepts what can still become a one- or two-word name.
var namePattern = regexp.MustCompile(`^(\p{L}*|\p{L}+ \p{L}*)$`)

// ParseQuery finds an in-progress mention at the end of text. It returns the
// byte offset of the '@' trigger and the query typed after it.
func ParseQuery(text string) (offset int, query string, ok bool) {
	offset = strings.LastIndex(text, "@")
	if offset < 0 {
		return 0, "", false
	}
	query = text[offset+1:]
	if !namePattern.MatchString(query) {
		return 0, "", false
	}
	return offset, query, true
}
