package symbols

import (
	"errors"
	"fmt"
	"sort"

	"github.com/jcdickinson/doxylink/internal/tagfile"
)

// Separator joins the segments of a qualified name.
const Separator = "::"

// ErrMalformedRecord is wrapped by every MalformedRecord.
var ErrMalformedRecord = errors.New("malformed record")

// MalformedRecord describes a compound or member that was skipped because a
// required field was missing.
type MalformedRecord struct {
	Compound int    // position of the compound in the input
	Member   int    // position of the member, -1 for the compound itself
	Name     string // whatever identifies the record, may be empty
	Field    string // the missing field
}

func (m *MalformedRecord) Error() string {
	if m.Member < 0 {
		return fmt.Sprintf("compound %d (%q): missing %s", m.Compound, m.Name, m.Field)
	}
	return fmt.Sprintf("compound %d member %d (%q): missing %s", m.Compound, m.Member, m.Name, m.Field)
}

func (m *MalformedRecord) Unwrap() error { return ErrMalformedRecord }

// BuildOptions controls which compounds become entries.
type BuildOptions struct {
	// ContainerKinds are the compound kinds inserted as entries of their own.
	ContainerKinds []string
}

// DefaultContainerKinds are indexed when no container kinds are configured.
var DefaultContainerKinds = []string{"namespace", "class"}

// BuildReport summarises an index build.
type BuildReport struct {
	Compounds int
	Members   int
	Skipped   []*MalformedRecord
}

// Index maps fully-qualified names to entries. It is immutable once built
// and safe for concurrent use.
type Index struct {
	entries map[string]Entry
	keys    []string // sorted
}

// Build creates an index from tag file compounds. Malformed records are
// skipped and reported; building never fails.
func Build(records []tagfile.Compound, opts BuildOptions) (*Index, *BuildReport) {
	containerKinds := opts.ContainerKinds
	if len(containerKinds) == 0 {
		containerKinds = DefaultContainerKinds
	}
	containers := make(map[string]bool, len(containerKinds))
	for _, k := range containerKinds {
		containers[k] = true
	}

	entries := make(map[string]Entry)
	report := &BuildReport{}

	for ci, compound := range records {
		if compound.Name == nil || *compound.Name == "" {
			report.Skipped = append(report.Skipped, &MalformedRecord{Compound: ci, Member: -1, Field: "name"})
			continue
		}
		name := *compound.Name
		filename := tagfile.Text(compound.Filename)

		if containers[compound.Kind] {
			if filename == "" {
				report.Skipped = append(report.Skipped, &MalformedRecord{Compound: ci, Member: -1, Name: name, Field: "filename"})
			} else {
				entries[name] = Entry{Kind: ParseKind(compound.Kind), RawKind: compound.Kind, Location: File(filename)}
				report.Compounds++
			}
		}

		if nonScopeKinds[compound.Kind] {
			continue
		}

		for mi, member := range compound.Members {
			if bad := checkMember(member, filename); bad != "" {
				report.Skipped = append(report.Skipped, &MalformedRecord{
					Compound: ci,
					Member:   mi,
					Name:     name + Separator + tagfile.Text(member.Name),
					Field:    bad,
				})
				continue
			}
			addMember(entries, name, filename, member)
			report.Members++
		}
	}

	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return &Index{entries: entries, keys: keys}, report
}

// checkMember returns the first missing required field, or "".
func checkMember(m tagfile.Member, compoundFile string) string {
	switch {
	case m.Name == nil || *m.Name == "":
		return "name"
	case m.Anchor == nil:
		return "anchor"
	case tagfile.Text(m.AnchorFile) == "" && compoundFile == "":
		return "anchorfile"
	case m.Kind == "function" && m.Arglist == nil:
		return "arglist"
	}
	return ""
}

func addMember(entries map[string]Entry, compoundName, compoundFile string, m tagfile.Member) {
	key := compoundName + Separator + *m.Name

	file := tagfile.Text(m.AnchorFile)
	if file == "" {
		file = compoundFile
	}
	loc := file + "#" + *m.Anchor

	kind := ParseKind(m.Kind)
	if kind != KindFunction {
		entries[key] = Entry{Kind: kind, RawKind: m.Kind, Location: File(loc)}
		return
	}

	if existing, ok := entries[key]; ok {
		if set, ok := existing.Overloads(); ok {
			set[*m.Arglist] = loc
			return
		}
	}
	entries[key] = Entry{
		Kind:     KindFunction,
		RawKind:  m.Kind,
		Location: OverloadSet{*m.Arglist: loc},
	}
}

// Lookup returns the entry stored under an exact qualified name.
func (idx *Index) Lookup(key string) (Entry, bool) {
	e, ok := idx.entries[key]
	return e, ok
}

// Len is the number of entries.
func (idx *Index) Len() int {
	return len(idx.keys)
}

// Keys returns all qualified names in lexicographic order.
func (idx *Index) Keys() []string {
	out := make([]string, len(idx.keys))
	copy(out, idx.keys)
	return out
}
