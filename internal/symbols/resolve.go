package symbols

import "strings"

// Stage identifies which step of resolution produced a match.
type Stage int

const (
	StageNone Stage = iota
	StageExact
	StagePiecewise
	StageClass
	StageTemplate
	StageFallback
)

func (s Stage) String() string {
	switch s {
	case StageExact:
		return "exact"
	case StagePiecewise:
		return "piecewise"
	case StageClass:
		return "class"
	case StageTemplate:
		return "template"
	case StageFallback:
		return "fallback"
	default:
		return "none"
	}
}

func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Match is a resolved reference.
type Match struct {
	Key   string
	Entry Entry
	Stage Stage
	Query Query
}

// Trace records how a reference was resolved, including the size of every
// intermediate candidate set. Callers that care about ambiguity inspect it.
type Trace struct {
	Query         Query
	Match         Match
	Found         bool
	Piecewise     int
	Classes       int
	ClassReverted bool
	NoTemplates   int
}

// Ambiguous reports whether the match was picked from several candidates.
func (t Trace) Ambiguous() bool {
	return t.Found && t.Match.Stage == StageFallback
}

// Resolve finds the single best entry for a reference. The second result
// is false when nothing matches.
func (idx *Index) Resolve(query string) (Match, bool) {
	t := idx.Trace(query)
	return t.Match, t.Found
}

// Trace resolves a reference and reports every stage.
//
// Stages, each narrowing the previous set: exact key match; piecewise match
// of the innermost segments; preference for class-like kinds (reverting to
// the piecewise set when no class-like candidate exists); removal of
// templated keys; and finally the lexicographically smallest remaining key.
func (idx *Index) Trace(query string) Trace {
	q := ParseQuery(query)
	t := Trace{Query: q}

	if e, ok := idx.entries[query]; ok {
		return t.found(query, e, StageExact)
	}

	piecewise := idx.piecewise(q.Name)
	t.Piecewise = len(piecewise)
	if len(piecewise) == 1 {
		return t.found(piecewise[0], idx.entries[piecewise[0]], StagePiecewise)
	}

	classes := idx.filter(piecewise, func(key string, e Entry) bool {
		return e.Kind.IsClassLike()
	})
	t.Classes = len(classes)
	if len(classes) == 1 {
		return t.found(classes[0], idx.entries[classes[0]], StageClass)
	}
	if len(classes) == 0 {
		classes = piecewise
		t.ClassReverted = true
	}

	noTemplates := idx.filter(classes, func(key string, e Entry) bool {
		return !strings.Contains(key, "<")
	})
	t.NoTemplates = len(noTemplates)
	if len(noTemplates) == 1 {
		return t.found(noTemplates[0], idx.entries[noTemplates[0]], StageTemplate)
	}

	if len(noTemplates) > 0 {
		// Candidates keep the sorted key order, so this is the smallest key.
		return t.found(noTemplates[0], idx.entries[noTemplates[0]], StageFallback)
	}
	return t
}

func (t Trace) found(key string, e Entry, stage Stage) Trace {
	t.Found = true
	t.Match = Match{Key: key, Entry: e, Stage: stage, Query: t.Query}
	return t
}

// piecewise returns, in key order, every key whose innermost segments equal
// the query's innermost segments, compared over the shorter of the two.
func (idx *Index) piecewise(name string) []string {
	want := strings.Split(name, Separator)

	var out []string
	for _, key := range idx.keys {
		have := strings.Split(key, Separator)
		n := min(len(want), len(have))
		match := true
		for i := 1; i <= n; i++ {
			if want[len(want)-i] != have[len(have)-i] {
				match = false
				break
			}
		}
		if match {
			out = append(out, key)
		}
	}
	return out
}

func (idx *Index) filter(keys []string, keep func(string, Entry) bool) []string {
	var out []string
	for _, k := range keys {
		if keep(k, idx.entries[k]) {
			out = append(out, k)
		}
	}
	return out
}
