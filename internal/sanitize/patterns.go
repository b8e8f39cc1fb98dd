// IncidentGuard - Incident Report Request/Persistence Security Layer
// Copyright 2026 Montfort Systems
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/montfort/incidentguard

package sanitize

import (
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"
)

// ErrMatchTimeout is returned when a pattern application exceeds the engine's
// match timeout. Callers must treat this as a sanitization failure and reject
// the input; the unsanitized original is never returned alongside this error.
var ErrMatchTimeout = errors.New("sanitize: pattern match timed out")

// patternCache lazily compiles and stores one matcher per deny-list entry.
// The deny-lists are fixed for the process lifetime, so each key is compiled
// at most once; concurrent first callers for the same key serialize on the
// write lock and the loser of the race reuses the stored instance.
type patternCache struct {
	mu       sync.RWMutex
	compiled map[string]*regexp.Regexp
}

func newPatternCache() *patternCache {
	return &patternCache{
		compiled: make(map[string]*regexp.Regexp),
	}
}

// get returns the compiled matcher for key, building it with build on first
// use. A stored matcher is always fully constructed before it becomes visible
// to other callers.
func (c *patternCache) get(key string, build func() string) *regexp.Regexp {
	c.mu.RLock()
	re, ok := c.compiled[key]
	c.mu.RUnlock()
	if ok {
		return re
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if re, ok := c.compiled[key]; ok {
		return re
	}
	re = regexp.MustCompile(build())
	c.compiled[key] = re
	return re
}

// len reports the number of compiled matchers, for tests.
func (c *patternCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.compiled)
}

// pairedTagPattern matches an opening tag, its content, and the closing tag.
func pairedTagPattern(tag string) string {
	t := regexp.QuoteMeta(tag)
	return `(?is)<\s*` + t + `\b[^>]*>.*?<\s*/\s*` + t + `\s*>`
}

// strayTagPattern matches an unpaired opening or self-closing tag.
func strayTagPattern(tag string) string {
	t := regexp.QuoteMeta(tag)
	return `(?is)<\s*/?\s*` + t + `\b[^>]*/?\s*>`
}

// attributePattern matches a denied attribute with a double-quoted,
// single-quoted, or bare value.
func attributePattern(attr string) string {
	a := regexp.QuoteMeta(attr)
	return `(?i)\s*` + a + `\s*=\s*("[^"]*"|'[^']*'|[^\s>]*)`
}

// schemePattern matches a denied URI scheme prefix, tolerating whitespace
// around the colon.
func schemePattern(scheme string) string {
	s := regexp.QuoteMeta(scheme)
	return `(?i)` + s + `\s*:`
}

// replaceAllTimeout applies re to s under the given timeout. Go's regexp
// engine runs in time linear in the input, so the worker goroutine always
// terminates; the buffered channel lets it finish after the deadline fires
// without blocking.
func replaceAllTimeout(re *regexp.Regexp, s, repl string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		return re.ReplaceAllString(s, repl), nil
	}

	done := make(chan string, 1)
	go func() {
		done <- re.ReplaceAllString(s, repl)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case out := <-done:
		return out, nil
	case <-timer.C:
		return "", fmt.Errorf("pattern %q on %d bytes: %w", re.String(), len(s), ErrMatchTimeout)
	}
}
