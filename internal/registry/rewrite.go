package registry

import (
	"github.com/jcdickinson/doxylink/internal/link"
	"github.com/jcdickinson/doxylink/internal/markdown"
)

// Link is the outcome for one distinct role link destination in a
// document.
type Link struct {
	Role        string `json:"role"`
	Destination string `json:"destination"`
	Occurrences int    `json:"occurrences"`
	link.Reference
}

type RewriteResult struct {
	Markdown string `json:"markdown"`
	Links    []Link `json:"links"`
}

// Unresolved returns the links that did not resolve.
func (r *RewriteResult) Unresolved() []Link {
	var out []Link
	for _, l := range r.Links {
		if !l.Resolved {
			out = append(out, l)
		}
	}
	return out
}

// Warnings returns every warning produced while linking, in document order.
func (r *RewriteResult) Warnings() []string {
	var out []string
	for _, l := range r.Links {
		if l.Warning != "" {
			out = append(out, l.Warning)
		}
	}
	return out
}

// Rewrite resolves every role link in a markdown document. Resolved links
// point at the documentation; unresolved ones are replaced by their text.
// With manifest set, a front-matter block lists the resolved URLs.
// document is the path of the markdown file, used for relative root dirs.
func (reg *Registry) Rewrite(document, src string, manifest bool) RewriteResult {
	roleLinks := markdown.RoleLinks(src, reg.names)

	var links []Link
	pos := make(map[string]int)
	for _, rl := range roleLinks {
		if i, ok := pos[rl.Destination]; ok {
			links[i].Occurrences++
			continue
		}
		pos[rl.Destination] = len(links)

		role := reg.roles[rl.Role]
		ref := role.Linker().Link(rl.Target, document)
		links = append(links, Link{
			Role:        rl.Role,
			Destination: rl.Destination,
			Occurrences: 1,
			Reference:   ref,
		})
	}

	out := src
	linkMap := make(map[string]string)
	for _, l := range links {
		out = markdown.FillEmptyText(out, l.Destination, l.Title)
		if l.Resolved {
			linkMap[l.Destination] = l.URL
		} else {
			out = markdown.Unlink(out, l.Destination)
		}
	}
	out = markdown.RewriteLinks(out, linkMap)
	if manifest {
		out = markdown.AddFrontMatter(out, linkMap)
	}

	return RewriteResult{Markdown: out, Links: links}
}
