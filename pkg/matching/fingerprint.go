package matching

import (
	"regexp"
	"strings"
)

var punctuation = regexp.MustCompile(`[\\/\-_,.;:'"!@#$%^&*()\[\]{}<>?+=|~` + "`" + `]`)

// Stringify flattens a snapshot's comparable field values into one
// normalized string: lowercase, punctuation replaced, empty values
// skipped, remaining values joined by single spaces. The output is
// stable for a given input and running it twice changes nothing, so
// fingerprints can be compared across runs.
//
// Punctuation turns into a word boundary rather than vanishing, so
// "O'Hare" fingerprints as "o hare", not "ohare". That keeps glued
// tokens apart and shifts n-gram scores accordingly.
func Stringify(values []string) string {
	parts := make([]string, 0, len(values))
	for _, value := range values {
		cleaned := punctuation.ReplaceAllString(strings.ToLower(value), " ")
		cleaned = strings.Join(strings.Fields(cleaned), " ")
		if cleaned != "" {
			parts = append(parts, cleaned)
		}
	}
	return strings.Join(parts, " ")
}
