package symbols

import (
	"sort"
	"strings"
)

// Location is where an entry is documented: either a File or, for
// functions, an OverloadSet.
type Location interface {
	location()
}

// File is a URL fragment: a page path with an optional #anchor.
type File string

func (File) location() {}

// OverloadSet maps a function's literal arglist to its URL fragment.
// Treat as read-only once the index is built.
type OverloadSet map[string]string

func (OverloadSet) location() {}

// Overload is one member of an OverloadSet.
type Overload struct {
	Arglist string
	File    string
}

// Sorted returns the overloads ordered by arglist.
func (o OverloadSet) Sorted() []Overload {
	out := make([]Overload, 0, len(o))
	for args, file := range o {
		out = append(out, Overload{Arglist: args, File: file})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Arglist < out[j].Arglist })
	return out
}

// Lookup finds the overload for an arglist. An exact match wins; otherwise
// arglists are compared with all whitespace removed, so "(const Foo&)"
// finds "( const Foo & )".
func (o OverloadSet) Lookup(arglist string) (string, bool) {
	if file, ok := o[arglist]; ok {
		return file, true
	}
	want := squash(arglist)
	var found string
	var ok bool
	for args, file := range o {
		if squash(args) != want {
			continue
		}
		// Several arglists can collapse to the same text; keep the smallest.
		if !ok || file < found {
			found, ok = file, true
		}
	}
	return found, ok
}

func squash(s string) string {
	return strings.Join(strings.Fields(s), "")
}

// Entry is one indexed symbol.
type Entry struct {
	Kind Kind
	// RawKind is the kind string from the tag file, kept for display when
	// Kind is KindOther.
	RawKind  string
	Location Location
}

// KindName is the display name of the entry's kind.
func (e Entry) KindName() string {
	if e.Kind == KindOther && e.RawKind != "" {
		return e.RawKind
	}
	return e.Kind.String()
}

// File returns the single location of a non-function entry.
func (e Entry) File() (string, bool) {
	f, ok := e.Location.(File)
	return string(f), ok
}

// Overloads returns the overload set of a function entry.
func (e Entry) Overloads() (OverloadSet, bool) {
	o, ok := e.Location.(OverloadSet)
	return o, ok
}
