package rpc

import "time"

// ResolveRequest is the request body for POST /resolve.
type ResolveRequest struct {
	Role   string `json:"role"`
	Symbol string `json:"symbol"`
	// Document is the markdown file the reference appears in; it only
	// matters for roles with a relative root_dir.
	Document string `json:"document,omitempty"`
	Trace    bool   `json:"trace,omitempty"`
}

// ResolveResponse is the response body for POST /resolve.
type ResolveResponse struct {
	Role     string     `json:"role"`
	Symbol   string     `json:"symbol"`
	Resolved bool       `json:"resolved"`
	Title    string     `json:"title"`
	URL      string     `json:"url,omitempty"`
	Kind     string     `json:"kind,omitempty"`
	Key      string     `json:"key,omitempty"`
	Stage    string     `json:"stage,omitempty"`
	Warning  string     `json:"warning,omitempty"`
	Trace    *TraceInfo `json:"trace,omitempty"`
}

// TraceInfo reports how many candidates survived each resolution stage.
type TraceInfo struct {
	Name          string `json:"name"`
	Arguments     string `json:"arguments,omitempty"`
	Modifiers     string `json:"modifiers,omitempty"`
	Piecewise     int    `json:"piecewise"`
	Classes       int    `json:"classes"`
	ClassReverted bool   `json:"class_reverted"`
	NoTemplates   int    `json:"no_templates"`
	Ambiguous     bool   `json:"ambiguous"`
}

// RewriteRequest is the request body for POST /rewrite.
type RewriteRequest struct {
	Document string `json:"document"`
	Markdown string `json:"markdown"`
	Manifest bool   `json:"manifest,omitempty"`
}

// RewriteResponse is the response body for POST /rewrite.
type RewriteResponse struct {
	Markdown string       `json:"markdown"`
	Links    []LinkResult `json:"links"`
	Warnings []string     `json:"warnings,omitempty"`
}

type LinkResult struct {
	Role        string `json:"role"`
	Destination string `json:"destination"`
	Target      string `json:"target"`
	Title       string `json:"title"`
	URL         string `json:"url,omitempty"`
	Resolved    bool   `json:"resolved"`
	Occurrences int    `json:"occurrences"`
	Warning     string `json:"warning,omitempty"`
}

// StatusResponse is the response body for GET /status.
type StatusResponse struct {
	Roles []RoleStatus `json:"roles"`
}

type RoleStatus struct {
	Role      string    `json:"role"`
	Source    string    `json:"source"`
	RootDir   string    `json:"root_dir"`
	Loaded    bool      `json:"loaded"`
	Entries   int       `json:"entries"`
	Skipped   int       `json:"skipped"`
	Hash      string    `json:"hash,omitempty"`
	LoadedAt  time.Time `json:"loaded_at,omitempty"`
	FromCache bool      `json:"from_cache,omitempty"`
}

// ReloadRequest is the request body for POST /reload. No roles reloads
// every role.
type ReloadRequest struct {
	Roles []string `json:"roles,omitempty"`
}

// ReloadResponse is the response body for POST /reload.
type ReloadResponse struct {
	Results []ReloadResult `json:"results"`
}

type ReloadResult struct {
	Role      string `json:"role"`
	Entries   int    `json:"entries"`
	Skipped   int    `json:"skipped"`
	FromCache bool   `json:"from_cache,omitempty"`
	Error     string `json:"error,omitempty"`
}

// UnresolvedRequest is the request body for POST /unresolved.
type UnresolvedRequest struct {
	Role     string `json:"role,omitempty"`
	Document string `json:"document,omitempty"`
	Clear    bool   `json:"clear,omitempty"`
}

// UnresolvedResponse is the response body for POST /unresolved.
type UnresolvedResponse struct {
	Unresolved []UnresolvedRef `json:"unresolved"`
	Cleared    int64           `json:"cleared,omitempty"`
}

type UnresolvedRef struct {
	Role        string    `json:"role"`
	Document    string    `json:"document"`
	Symbol      string    `json:"symbol"`
	Occurrences int       `json:"occurrences"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}
