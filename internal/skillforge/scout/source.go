package scout

import (
	"context"
	"fmt"
	"strings"
)

// Scout is implemented by every discovery source.
type Scout interface {
	Discover(ctx context.Context) ([]Candidate, error)
}

// ScoutFunc adapts a function to the Scout interface.
type ScoutFunc func(ctx context.Context) ([]Candidate, error)

// Discover calls f(ctx).
func (f ScoutFunc) Discover(ctx context.Context) ([]Candidate, error) {
	return f(ctx)
}

// Source identifies a known discovery source.
type Source int

const (
	SourceUnknown Source = iota
	SourceGitHub
	SourceClawHub
	SourceHuggingFace
)

var sourceNames = map[Source]string{
	SourceUnknown:     "unknown",
	SourceGitHub:      "github",
	SourceClawHub:     "clawhub",
	SourceHuggingFace: "huggingface",
}

func (s Source) String() string {
	if name, ok := sourceNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseSource maps a configured identifier onto the closed set of sources.
// It never fails: unrecognized identifiers map to SourceUnknown.
func ParseSource(name string) Source {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "github":
		return SourceGitHub
	case "clawhub":
		return SourceClawHub
	case "huggingface", "hf":
		return SourceHuggingFace
	default:
		return SourceUnknown
	}
}

// Registry maps known sources to their adapters. A known source without an
// adapter is treated as not yet implemented.
type Registry map[Source]Scout

// Lookup returns the adapter registered for s.
func (r Registry) Lookup(s Source) (Scout, bool) {
	if s == SourceUnknown {
		return nil, false
	}
	sc, ok := r[s]
	return sc, ok && sc != nil
}

// SourceError reports that one adapter failed as a whole.
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("scout %s failed: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}
