// Package rpn implements the stack-based expression language used by
// Pairing transforms, Rule predicates, and Timer schedules.
package rpn

import "strings"

// tokenize splits a program into whitespace-separated tokens. String
// literals (":foo") and bracketed array/map constructors never contain
// whitespace in this grammar, so a simple Fields split is sufficient.
func tokenize(src string) []string {
	return strings.Fields(src)
}
