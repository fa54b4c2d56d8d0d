package symbols

import (
	"sort"

	"github.com/jcdickinson/doxylink/internal/tagfile"
)

func strPtr(s string) *string { return &s }

func compound(kind, name, file string, members ...tagfile.Member) tagfile.Compound {
	return tagfile.Compound{Kind: kind, Name: strPtr(name), Filename: strPtr(file), Members: members}
}

func member(kind, name, anchor string) tagfile.Member {
	m := tagfile.Member{Kind: kind, Name: strPtr(name), Anchor: strPtr(anchor)}
	if kind == "function" {
		m.Arglist = strPtr("()")
	}
	return m
}

func function(name, anchor, arglist string) tagfile.Member {
	return tagfile.Member{Kind: "function", Name: strPtr(name), Anchor: strPtr(anchor), Arglist: strPtr(arglist)}
}

// indexOf builds an index straight from key -> kind pairs, for resolver
// tests that only care about keys and kinds.
func indexOf(kinds map[string]Kind) *Index {
	idx := &Index{entries: make(map[string]Entry, len(kinds))}
	for key, kind := range kinds {
		var loc Location = File(key + ".html")
		if kind == KindFunction {
			loc = OverloadSet{"()": key + ".html#f"}
		}
		idx.entries[key] = Entry{Kind: kind, RawKind: kind.String(), Location: loc}
		idx.keys = append(idx.keys, key)
	}
	sort.Strings(idx.keys)
	return idx
}
