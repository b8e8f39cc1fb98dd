// IncidentGuard - Incident Report Request/Persistence Security Layer
// Copyright 2026 Montfort Systems
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/montfort/incidentguard

package sanitize

// Policy is the deny-list an Engine enforces. A Policy is constructed once at
// startup and never mutated afterwards; the Engine compiles one matcher per
// entry on first use.
type Policy struct {
	// DeniedTags are HTML tag names removed from markup input, including
	// their content and closing tag, and in self-closing form.
	DeniedTags []string

	// DeniedAttributes are attribute names removed from markup input
	// regardless of quoting style.
	DeniedAttributes []string

	// DeniedSchemes are URI scheme prefixes (without the colon) stripped
	// from markup input, case-insensitively.
	DeniedSchemes []string
}

// DefaultPolicy returns the deny-lists applied to incident report input.
func DefaultPolicy() Policy {
	return Policy{
		DeniedTags: []string{
			"script",
			"iframe",
			"object",
			"embed",
			"form",
			"style",
			"link",
			"meta",
		},
		DeniedAttributes: []string{
			"onload",
			"onerror",
			"onclick",
			"onmouseover",
			"onmouseout",
			"onfocus",
			"onblur",
			"onchange",
			"onsubmit",
			"onkeydown",
			"onkeyup",
			"onkeypress",
			"formaction",
			"srcdoc",
		},
		DeniedSchemes: []string{
			"javascript",
			"vbscript",
			"data",
		},
	}
}
