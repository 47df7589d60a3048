package provider

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrLanguageUnavailable means the episode offers no stream in the
	// requested language on any hoster.
	ErrLanguageUnavailable = errors.New("language not available")

	// ErrNoSupportedProvider means the episode's hosters are all unknown
	// to the extractor registry.
	ErrNoSupportedProvider = errors.New("no supported provider")

	// ErrNotFound means the hoster reports the video as deleted or missing.
	ErrNotFound = errors.New("video not found")

	// ErrNoDirectLink means the embed page did not yield a media URL.
	ErrNoDirectLink = errors.New("no direct media link in embed page")
)

// ExhaustedError reports that every candidate provider was tried and
// failed, with the per-provider cause preserved for the job record.
type ExhaustedError struct {
	Language string
	Attempts map[string]error
}

func (e *ExhaustedError) Error() string {
	names := make([]string, 0, len(e.Attempts))
	for name := range e.Attempts {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %v", name, e.Attempts[name]))
	}
	return fmt.Sprintf("all providers failed for language %q: %s", e.Language, strings.Join(parts, "; "))
}
