// Package redact masks credentials in text before it reaches logs, error
// envelopes or audit rows.
package redact

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Mask replaces every redacted span.
const Mask = "[REDACTED]"

// minSecretLen keeps short values ("1", "eu") from masking ordinary text.
const minSecretLen = 6

// Detection represents a detected secret in text.
type Detection struct {
	PatternName string
	Start       int // byte offset
	End         int // byte offset
}

// Redactor masks known credential values and secret-shaped substrings. It is
// safe for concurrent use; SetSecrets swaps the known values after a reload.
type Redactor struct {
	patterns []Pattern

	mu       sync.RWMutex
	replacer *strings.Replacer
}

// New creates a redactor for the given known secret values.
func New(secrets []string) *Redactor {
	r := &Redactor{patterns: DefaultPatterns()}
	r.SetSecrets(secrets)
	return r
}

// SetSecrets replaces the set of known values.
func (r *Redactor) SetSecrets(secrets []string) {
	uniq := make(map[string]struct{}, len(secrets))
	for _, s := range secrets {
		if len(s) >= minSecretLen {
			uniq[s] = struct{}{}
		}
	}
	vals := make([]string, 0, len(uniq))
	for s := range uniq {
		vals = append(vals, s)
	}
	// Longest first so a secret containing another is masked whole.
	sort.Slice(vals, func(i, j int) bool {
		if len(vals[i]) != len(vals[j]) {
			return len(vals[i]) > len(vals[j])
		}
		return vals[i] < vals[j]
	})

	var replacer *strings.Replacer
	if len(vals) > 0 {
		pairs := make([]string, 0, 2*len(vals))
		for _, v := range vals {
			pairs = append(pairs, v, Mask)
		}
		replacer = strings.NewReplacer(pairs...)
	}

	r.mu.Lock()
	r.replacer = replacer
	r.mu.Unlock()
}

// Scan returns pattern detections in text. Known values are not reported.
func (r *Redactor) Scan(text string) []Detection {
	var detections []Detection
	for _, p := range r.patterns {
		for _, loc := range p.Regex.FindAllStringIndex(text, -1) {
			detections = append(detections, Detection{
				PatternName: p.Name,
				Start:       loc[0],
				End:         loc[1],
			})
		}
	}
	return detections
}

// String masks known values first, then pattern matches.
func (r *Redactor) String(text string) string {
	if r == nil || text == "" {
		return text
	}
	r.mu.RLock()
	replacer := r.replacer
	r.mu.RUnlock()
	if replacer != nil {
		text = replacer.Replace(text)
	}
	for _, p := range r.patterns {
		text = p.Regex.ReplaceAllString(text, Mask)
	}
	return text
}

// Error returns the masked text of err, or "" for nil.
func (r *Redactor) Error(err error) string {
	if err == nil {
		return ""
	}
	return r.String(err.Error())
}

// ReplaceAttr is a slog.HandlerOptions.ReplaceAttr hook that masks string
// and error attribute values.
func (r *Redactor) ReplaceAttr(_ []string, a slog.Attr) slog.Attr {
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindString:
		if s := v.String(); s != "" {
			if masked := r.String(s); masked != s {
				return slog.String(a.Key, masked)
			}
		}
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return slog.String(a.Key, r.Error(err))
		}
	}
	return a
}
