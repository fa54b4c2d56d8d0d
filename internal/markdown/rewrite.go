package markdown

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	gm "github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/ast"
	gmparser "github.com/gomarkdown/markdown/parser"
)

// RoleLink is a markdown link whose destination names a configured role,
// for example [Volume](polyvox:PolyVox::Volume).
type RoleLink struct {
	Text        string
	Destination string
	Role        string
	Target      string
}

func parse(src string) ast.Node {
	return gm.Parse([]byte(src), gmparser.NewWithExtensions(
		gmparser.CommonExtensions|gmparser.Autolink,
	))
}

// RoleLinks returns the links in src whose destination is "<role>:<target>"
// for one of roles, in document order. Role names match case-insensitively
// and RoleLink.Role is lowercased. Repeated links are returned once per
// occurrence.
func RoleLinks(src string, roles []string) []RoleLink {
	if len(roles) == 0 {
		return nil
	}
	known := make(map[string]bool, len(roles))
	for _, r := range roles {
		known[strings.ToLower(r)] = true
	}

	var links []RoleLink
	ast.WalkFunc(parse(src), func(node ast.Node, entering bool) ast.WalkStatus {
		if !entering {
			return ast.GoToNext
		}
		link, ok := node.(*ast.Link)
		if !ok {
			return ast.GoToNext
		}
		dest := string(link.Destination)
		role, target, ok := strings.Cut(dest, ":")
		role = strings.ToLower(role)
		if !ok || !known[role] || strings.TrimSpace(target) == "" {
			return ast.GoToNext
		}
		links = append(links, RoleLink{
			Text:        linkText(link),
			Destination: dest,
			Role:        role,
			Target:      strings.TrimSpace(target),
		})
		return ast.SkipChildren
	})
	return links
}

func linkText(link *ast.Link) string {
	var b strings.Builder
	ast.WalkFunc(link, func(node ast.Node, entering bool) ast.WalkStatus {
		if !entering {
			return ast.GoToNext
		}
		switch n := node.(type) {
		case *ast.Text:
			b.Write(n.Literal)
		case *ast.Code:
			b.Write(n.Literal)
		}
		return ast.GoToNext
	})
	return b.String()
}

// RewriteLinks rewrites markdown link destinations using the provided link map.
// It parses the markdown to AST to find all link destinations, then performs
// targeted string replacements to preserve original formatting.
func RewriteLinks(src string, linkMap map[string]string) string {
	if len(linkMap) == 0 {
		return src
	}

	// Collect unique destinations that need replacement
	seen := make(map[string]bool)
	type replacement struct {
		oldDest string
		newDest string
	}
	var replacements []replacement

	ast.WalkFunc(parse(src), func(node ast.Node, entering bool) ast.WalkStatus {
		if !entering {
			return ast.GoToNext
		}
		if link, ok := node.(*ast.Link); ok {
			dest := string(link.Destination)
			if newDest, ok := linkMap[dest]; ok && !seen[dest] {
				seen[dest] = true
				replacements = append(replacements, replacement{dest, newDest})
			}
		}
		return ast.GoToNext
	})

	if len(replacements) == 0 {
		return src
	}

	result := src

	// Inline links: [text](destination) and [text](<destination>)
	for _, r := range replacements {
		result = strings.ReplaceAll(result, "]("+r.oldDest+")", "]("+r.newDest+")")
		result = strings.ReplaceAll(result, "](<"+r.oldDest+">)", "](<"+r.newDest+">)")
	}

	// Reference-style definitions, [ref]: destination, in a single pass over lines.
	refMap := make(map[string]string, len(replacements))
	for _, r := range replacements {
		refMap["]: "+r.oldDest] = "]: " + r.newDest
		refMap["]: <"+r.oldDest+">"] = "]: <" + r.newDest + ">"
	}
	lines := strings.Split(result, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		for oldSuffix, newSuffix := range refMap {
			if strings.HasSuffix(trimmed, oldSuffix) {
				lines[i] = strings.Replace(line, oldSuffix, newSuffix, 1)
				break
			}
		}
	}
	result = strings.Join(lines, "\n")

	return result
}

// linkTextPattern matches link text with escaped brackets and one level of
// balanced brackets, such as "operator\[\]" or "a[0]".
const linkTextPattern = `\[((?:\\.|[^\[\]\\]|\[(?:\\.|[^\[\]\\])*\])*)\]`

func inlineLinkRe(dest string) *regexp.Regexp {
	d := regexp.QuoteMeta(dest)
	return regexp.MustCompile(linkTextPattern + `\((?:` + d + `|<` + d + `>)\)`)
}

// Unlink replaces every inline link to dest with its bare text.
func Unlink(src, dest string) string {
	return inlineLinkRe(dest).ReplaceAllString(src, "$1")
}

// FillEmptyText gives inline links to dest that have no text the
// provided title.
func FillEmptyText(src, dest, title string) string {
	re := inlineLinkRe(dest)
	return re.ReplaceAllStringFunc(src, func(m string) string {
		if !strings.HasPrefix(m, "[]") {
			return m
		}
		return "[" + escapeText(title) + "]" + m[2:]
	})
}

var textEscaper = strings.NewReplacer(`[`, `\[`, `]`, `\]`)

func escapeText(s string) string {
	return textEscaper.Replace(s)
}

// AddFrontMatter prepends a YAML front-matter block listing resolved
// references. Keys and values are double-quoted scalars.
func AddFrontMatter(src string, refs map[string]string) string {
	if len(refs) == 0 {
		return src
	}

	keys := make([]string, 0, len(refs))
	for k := range refs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("---\n")
	for _, k := range keys {
		b.WriteString(fmt.Sprintf("%q: %q\n", k, refs[k]))
	}
	b.WriteString("---\n\n")
	b.WriteString(src)
	return b.String()
}
