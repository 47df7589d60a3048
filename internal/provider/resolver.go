package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/fetcharr/fetcharr/internal/sites"
)

// DefaultAttemptTimeout bounds one provider's embed fetch and extraction.
const DefaultAttemptTimeout = 15 * time.Second

// Resolved is the outcome of a successful resolution.
type Resolved struct {
	Provider  string
	Language  string
	DirectURL string
	EmbedURL  string
}

// Resolver picks a hoster for an episode and extracts its direct media
// URL, walking the fallback order until one succeeds.
type Resolver struct {
	client         *http.Client
	extractors     map[string]Extractor
	order          []string
	attemptTimeout time.Duration
	log            *slog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithHTTPClient overrides the HTTP client used for embed fetches.
func WithHTTPClient(c *http.Client) ResolverOption {
	return func(r *Resolver) { r.client = c }
}

// WithAttemptTimeout overrides the per-provider timeout.
func WithAttemptTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) { r.attemptTimeout = d }
}

// WithExtractors replaces the extractor registry, used by tests.
func WithExtractors(order []string, extractors map[string]Extractor) ResolverOption {
	return func(r *Resolver) {
		r.order = order
		r.extractors = extractors
	}
}

// NewResolver creates a resolver with the default extractor registry.
func NewResolver(log *slog.Logger, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		client:         &http.Client{Timeout: 30 * time.Second},
		extractors:     defaultExtractors(),
		order:          DefaultOrder,
		attemptTimeout: DefaultAttemptTimeout,
		log:            log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve finds a direct media URL for the episode's streams in the
// requested language. preferred, when set and available, is tried first;
// the rest follow the default order. exclude names providers already
// tried and failed for this job.
func (r *Resolver) Resolve(ctx context.Context, streams []sites.Stream, language, preferred string, exclude map[string]bool, referer string) (*Resolved, error) {
	byProvider := make(map[string][]sites.Stream)
	languageSeen := false
	for _, s := range streams {
		if s.Language != language {
			continue
		}
		languageSeen = true
		byProvider[s.Provider] = append(byProvider[s.Provider], s)
	}
	if !languageSeen {
		return nil, fmt.Errorf("%q: %w", language, ErrLanguageUnavailable)
	}

	candidates := r.candidateOrder(byProvider, preferred, exclude)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%q: %w", language, ErrNoSupportedProvider)
	}

	attempts := make(map[string]error, len(candidates))
	for _, name := range candidates {
		extractor := r.extractors[name]
		embed := byProvider[name][0]

		attemptCtx, cancel := context.WithTimeout(ctx, r.attemptTimeout)
		start := time.Now()
		direct, err := extractor.Extract(attemptCtx, r.client, embed.EmbedURL, referer)
		cancel()

		if err != nil {
			r.log.Warn("provider extraction failed", "provider", name,
				"error", err, "duration_ms", time.Since(start).Milliseconds())
			attempts[name] = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}

		r.log.Debug("provider resolved", "provider", name, "language", language,
			"duration_ms", time.Since(start).Milliseconds())
		return &Resolved{
			Provider:  name,
			Language:  language,
			DirectURL: direct,
			EmbedURL:  embed.EmbedURL,
		}, nil
	}

	return nil, &ExhaustedError{Language: language, Attempts: attempts}
}

// candidateOrder lists the providers worth trying: preferred first, then
// the fallback order, skipping excluded and unregistered ones.
func (r *Resolver) candidateOrder(byProvider map[string][]sites.Stream, preferred string, exclude map[string]bool) []string {
	var out []string
	add := func(name string) {
		if exclude[name] {
			return
		}
		if _, known := r.extractors[name]; !known {
			return
		}
		if _, available := byProvider[name]; !available {
			return
		}
		for _, existing := range out {
			if existing == name {
				return
			}
		}
		out = append(out, name)
	}

	if preferred != "" {
		add(preferred)
	}
	for _, name := range r.order {
		add(name)
	}
	return out
}
