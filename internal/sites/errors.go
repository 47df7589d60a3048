package sites

import "errors"

// Sentinel errors for the sites package.
var (
	// ErrSiteUnavailable is returned when a site cannot be reached or its
	// page shape no longer matches the adapter's expectations.
	ErrSiteUnavailable = errors.New("site unavailable")

	// ErrNoResults is returned by ResolveDirect when a URL points at
	// nothing resolvable. Plain searches return an empty slice instead.
	ErrNoResults = errors.New("no results")

	// ErrUnknownSite is returned when no adapter is registered for a URL
	// or site identifier.
	ErrUnknownSite = errors.New("unknown site")
)
