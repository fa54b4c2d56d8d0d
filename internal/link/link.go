package link

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/jcdickinson/doxylink/internal/symbols"
)

// Resolver finds the best index entry for a symbol reference.
// *symbols.Index and registry roles both implement it.
type Resolver interface {
	Resolve(query string) (symbols.Match, bool)
}

// Reference is the outcome of linking one piece of role text.
type Reference struct {
	Title    string        `json:"title"`
	Target   string        `json:"target"`
	URL      string        `json:"url,omitempty"`
	Kind     string        `json:"kind,omitempty"`
	Key      string        `json:"key,omitempty"`
	Stage    symbols.Stage `json:"stage,omitempty"`
	Resolved bool          `json:"resolved"`
	Warning  string        `json:"warning,omitempty"`
}

// Linker turns role text such as "PolyVox::Volume" or
// "the volume <PolyVox::Volume>" into documentation URLs.
type Linker struct {
	Role string
	// RootDir is where the Doxygen HTML lives: a URL, an absolute path, or
	// a path relative to SrcDir.
	RootDir string
	// SrcDir is the documentation source root that relative RootDirs and
	// document paths are measured from.
	SrcDir                 string
	AddFunctionParentheses bool
	Resolver               Resolver
}

// The title must be separated from "<target>" by whitespace so that
// template names like "Array<T>" are not split.
var explicitTitleRe = regexp.MustCompile(`(?s)^(.+?)\s+<(.*)>$`)

// SplitExplicitTitle splits "title <target>" into its parts. Text without
// an explicit title is both title and target.
func SplitExplicitTitle(text string) (explicit bool, title, target string) {
	text = strings.TrimSpace(text)
	m := explicitTitleRe.FindStringSubmatch(text)
	if m == nil || strings.TrimSpace(m[2]) == "" {
		return false, text, text
	}
	return true, m[1], strings.TrimSpace(m[2])
}

// Link resolves role text appearing in the document at docPath.
// docPath is only consulted when RootDir is relative.
func (l *Linker) Link(text, docPath string) Reference {
	explicit, title, target := SplitExplicitTitle(text)
	ref := Reference{Title: title, Target: target}

	if l.Resolver == nil {
		ref.Warning = fmt.Sprintf("could not find match for %q because the %q tag file is not loaded", target, l.Role)
		return ref
	}
	m, ok := l.Resolver.Resolve(target)
	if !ok {
		ref.Warning = fmt.Sprintf("could not find match for %q in %q tag file", target, l.Role)
		return ref
	}

	file, warning, ok := pickFile(m)
	if !ok {
		ref.Warning = warning
		return ref
	}

	ref.Resolved = true
	ref.Warning = warning
	ref.Key = m.Key
	ref.Kind = m.Entry.KindName()
	ref.Stage = m.Stage
	ref.URL = l.url(file, docPath)
	if m.Entry.Kind == symbols.KindFunction && l.AddFunctionParentheses && !explicit && m.Query.Arguments == "" {
		ref.Title += "()"
	}
	return ref
}

// pickFile chooses the page for a match. Functions with several overloads
// and no argument list link the overload with the smallest arglist and
// say so.
func pickFile(m symbols.Match) (file, warning string, ok bool) {
	if f, isFile := m.Entry.File(); isFile {
		return f, "", true
	}
	set, _ := m.Entry.Overloads()

	if args := m.Query.Arguments; args != "" {
		// Tag files keep trailing qualifiers in the arglist: "() const".
		if mods := m.Query.Modifiers; mods != "" {
			if f, found := set.Lookup(args + " " + mods); found {
				return f, "", true
			}
		}
		f, found := set.Lookup(args)
		if !found {
			return "", fmt.Sprintf("no overload of %q takes %s", m.Key, args), false
		}
		return f, "", true
	}

	sorted := set.Sorted()
	if len(sorted) == 0 {
		return "", fmt.Sprintf("%q has no overloads", m.Key), false
	}
	if len(sorted) > 1 {
		warning = fmt.Sprintf("%q has %d overloads, linking %s%s", m.Key, len(sorted), m.Key, sorted[0].Arglist)
	}
	return sorted[0].File, warning, true
}

func (l *Linker) url(file, docPath string) string {
	root := l.RootDir
	if root != "" && !strings.HasSuffix(root, "/") && !strings.HasSuffix(root, `\`) {
		root += "/"
	}
	if filepath.IsAbs(root) || hasScheme(root) {
		return root + file
	}

	srcDir := l.SrcDir
	if srcDir == "" {
		srcDir = "."
	}
	rel, err := relDir(filepath.Dir(docPath), srcDir)
	if err != nil {
		return path.Join(filepath.ToSlash(root), file)
	}
	return path.Join(rel, filepath.ToSlash(root), file)
}

func relDir(from, to string) (string, error) {
	from, err := filepath.Abs(from)
	if err != nil {
		return "", err
	}
	to, err = filepath.Abs(to)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(from, to)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

func hasScheme(root string) bool {
	u, err := url.Parse(root)
	// One-letter schemes are Windows drive letters.
	return err == nil && len(u.Scheme) > 1
}
