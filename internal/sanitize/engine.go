// IncidentGuard - Incident Report Request/Persistence Security Layer
// Copyright 2026 Montfort Systems
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/montfort/incidentguard

// Package sanitize defangs untrusted strings before they reach business
// logic: markup and script injection, SQL meta-characters, path traversal,
// and open redirects.
//
// All transformation functions are total: nil-equivalent (empty) input yields
// a safe default and no function panics, whatever the input length. Markup is
// the one fallible operation; it returns ErrMatchTimeout when a pattern
// application exceeds the configured deadline, and callers must reject the
// input rather than fall back to the original string.
package sanitize

import (
	"html"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultMatchTimeout bounds a single pattern application. The regexp engine
// is linear-time, so in practice this only trips on pathologically large
// inputs; it exists so one such input cannot stall a request worker.
const DefaultMatchTimeout = 1 * time.Second

// PlaceholderFileName is returned by FileName when nothing safe remains.
const PlaceholderFileName = "unnamed"

// maxFileNameLength caps sanitized file names.
const maxFileNameLength = 255

// maxMarkupPasses bounds the fixpoint loop in Markup. Stripping one layer can
// expose another (nested denied tags, split scheme prefixes), so removal
// repeats until stable; real input converges in one or two passes.
const maxMarkupPasses = 10

// Engine applies a fixed Policy to untrusted input. An Engine is safe for
// concurrent use; its only shared state is the pattern cache.
type Engine struct {
	policy  Policy
	timeout time.Duration
	cache   *patternCache

	timeouts prometheus.Counter
}

// Option configures an Engine.
type Option func(*Engine)

// WithMatchTimeout overrides the per-application match deadline.
// Zero or negative disables the deadline (tests only).
func WithMatchTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.timeout = d
	}
}

// WithRegisterer registers the engine's metrics with the given registerer.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(e *Engine) {
		reg.MustRegister(e.timeouts)
	}
}

// New creates an Engine enforcing the given policy.
func New(policy Policy, opts ...Option) *Engine {
	e := &Engine{
		policy:  policy,
		timeout: DefaultMatchTimeout,
		cache:   newPatternCache(),
		timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "incidentguard_sanitize_match_timeouts_total",
			Help: "Pattern applications that exceeded the match timeout.",
		}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Plain strips NUL bytes and escapes markup-significant characters.
// The result is always safe to render as text.
func (e *Engine) Plain(s string) string {
	if s == "" {
		return ""
	}
	return html.EscapeString(strings.ReplaceAll(s, "\x00", ""))
}

// Markup removes every policy-denied tag (paired, stray, and self-closing
// forms), denied attribute (any quoting style), and denied scheme prefix from
// the input, case-insensitively. Removal repeats until the output is stable,
// which makes the operation idempotent and closes nesting tricks such as
// <scr<script>ipt>.
//
// On ErrMatchTimeout the input must be rejected; the returned string is
// always empty in that case.
func (e *Engine) Markup(s string) (string, error) {
	if s == "" {
		return "", nil
	}

	out := strings.ReplaceAll(s, "\x00", "")
	for pass := 0; pass < maxMarkupPasses; pass++ {
		prev := out

		for _, tag := range e.policy.DeniedTags {
			tag := tag
			paired := e.cache.get("tag:"+tag, func() string { return pairedTagPattern(tag) })
			stray := e.cache.get("tag-stray:"+tag, func() string { return strayTagPattern(tag) })

			var err error
			if out, err = e.apply(paired, out); err != nil {
				return "", err
			}
			if out, err = e.apply(stray, out); err != nil {
				return "", err
			}
		}

		for _, attr := range e.policy.DeniedAttributes {
			attr := attr
			re := e.cache.get("attr:"+attr, func() string { return attributePattern(attr) })

			var err error
			if out, err = e.apply(re, out); err != nil {
				return "", err
			}
		}

		for _, scheme := range e.policy.DeniedSchemes {
			scheme := scheme
			re := e.cache.get("scheme:"+scheme, func() string { return schemePattern(scheme) })

			var err error
			if out, err = e.apply(re, out); err != nil {
				return "", err
			}
		}

		if out == prev {
			break
		}
	}

	return out, nil
}

// apply runs one pattern removal under the engine's deadline.
func (e *Engine) apply(re *regexp.Regexp, s string) (string, error) {
	out, err := replaceAllTimeout(re, s, "", e.timeout)
	if err != nil {
		e.timeouts.Inc()
		return "", err
	}
	return out, nil
}

var (
	sqlCommentRe = regexp.MustCompile(`--|/\*|\*/|#`)
	sqlKeywordRe = regexp.MustCompile(`(?i)\b(union\s+(all\s+)?select|insert\s+into|delete\s+from|drop\s+(table|database|view)|truncate\s+table|update\s+\w+\s+set|exec(ute)?\s|xp_\w+|information_schema)\b`)
)

// QueryFragment defangs a string destined for a storage query. This is
// defense in depth only; parameterized queries remain the primary control.
// Comment sequences and common injection keyword patterns are stripped, then
// quote characters are escaped by doubling.
func (e *Engine) QueryFragment(s string) string {
	if s == "" {
		return ""
	}
	out := strings.ReplaceAll(s, "\x00", "")
	out = sqlCommentRe.ReplaceAllString(out, "")
	out = sqlKeywordRe.ReplaceAllString(out, "")
	out = strings.ReplaceAll(out, "'", "''")
	out = strings.ReplaceAll(out, `"`, `""`)
	return out
}

var emailRe = regexp.MustCompile(`^[a-z0-9._%+\-]+@[a-z0-9][a-z0-9.\-]*\.[a-z]{2,}$`)

// Email trims and lower-cases the input and validates it against a strict
// address pattern. Invalid input yields "", never the original string.
func (e *Engine) Email(s string) string {
	addr := strings.ToLower(strings.TrimSpace(s))
	if !emailRe.MatchString(addr) {
		return ""
	}
	return addr
}

var invalidFileNameChars = regexp.MustCompile(`[<>:"|?*\x00-\x1f]`)

// FileName strips path separators, parent-directory sequences, and
// characters invalid in file names, and caps the result at 255 characters.
// Input that sanitizes to nothing yields PlaceholderFileName.
func (e *Engine) FileName(s string) string {
	if s == "" {
		return PlaceholderFileName
	}

	out := s
	for strings.Contains(out, "..") {
		out = strings.ReplaceAll(out, "..", "")
	}
	out = strings.ReplaceAll(out, "/", "")
	out = strings.ReplaceAll(out, `\`, "")
	out = invalidFileNameChars.ReplaceAllString(out, "")
	out = strings.TrimSpace(out)
	out = strings.Trim(out, ".")

	if out == "" {
		return PlaceholderFileName
	}

	if runes := []rune(out); len(runes) > maxFileNameLength {
		out = string(runes[:maxFileNameLength])
	}
	return out
}

// URL guards outbound redirects. Root-relative paths that do not start with
// "//" pass through; absolute URLs pass only when their host equals
// allowedHost case-insensitively. Everything else yields "" (fail-closed
// against open redirects).
func (e *Engine) URL(s, allowedHost string) string {
	if s == "" {
		return ""
	}

	if strings.HasPrefix(s, "/") {
		if strings.HasPrefix(s, "//") {
			// Protocol-relative: the browser would resolve this to an
			// attacker-chosen host.
			return ""
		}
		return s
	}

	u, err := url.Parse(s)
	if err != nil || !u.IsAbs() {
		return ""
	}
	if !strings.EqualFold(u.Hostname(), allowedHost) {
		return ""
	}
	return s
}

// Truncate returns at most max characters of s.
func (e *Engine) Truncate(s string, max int) string {
	if s == "" || max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
