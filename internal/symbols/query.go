package symbols

import (
	"regexp"
	"strings"
)

// Query is a parsed symbol reference.
type Query struct {
	Raw string
	// Name is the reference with arguments and modifiers removed; it is what
	// the structural stages compare against index keys.
	Name string
	// Arguments is the parenthesised argument list, "(int, char)", or "".
	Arguments string
	// Modifiers is a trailing qualifier such as "const", or "".
	Modifiers string
}

var modifiersRe = regexp.MustCompile(`\s([a-zA-Z]+) ?$`)

const callOperator = "operator()"

// ParseQuery splits a reference into its name, argument list and trailing
// modifier.
func ParseQuery(raw string) Query {
	q := Query{Raw: raw}
	s := strings.TrimSpace(raw)

	// The parentheses of operator() are part of the name.
	from := 0
	if i := strings.Index(s, callOperator); i >= 0 {
		from = i + len(callOperator)
	}
	if open := strings.IndexByte(s[from:], '('); open >= 0 {
		open += from
		if end := strings.LastIndexByte(s, ')'); end > open {
			q.Arguments = s[open : end+1]
			s = s[:open] + s[end+1:]
		}
	}

	if m := modifiersRe.FindStringSubmatchIndex(s); m != nil {
		before := strings.TrimSpace(s[:m[0]])
		if !isConversionOperator(before) {
			q.Modifiers = s[m[2]:m[3]]
			s = before
		}
	}

	q.Name = strings.TrimSpace(s)
	return q
}

// isConversionOperator reports whether name ends in a bare "operator", in
// which case the following word is a type ("operator int"), not a modifier.
func isConversionOperator(name string) bool {
	if i := strings.LastIndex(name, Separator); i >= 0 {
		name = name[i+len(Separator):]
	}
	return name == "operator"
}
