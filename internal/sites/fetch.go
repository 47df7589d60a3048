package sites

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/PuerkitoBio/goquery"
)

// UserAgent is sent on every adapter request. Some hosters reject requests
// without a browser-looking agent.
const UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// FetchDocument fetches a page and parses it into a goquery document.
// Transport and non-2xx failures are wrapped in ErrSiteUnavailable.
func FetchDocument(ctx context.Context, client *http.Client, pageURL string) (*goquery.Document, error) {
	resp, err := get(ctx, client, pageURL, "text/html")
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", pageURL, ErrSiteUnavailable)
	}
	return doc, nil
}

// FetchJSON fetches a JSON endpoint and decodes it into v.
func FetchJSON(ctx context.Context, client *http.Client, apiURL string, v any) error {
	resp, err := get(ctx, client, apiURL, "application/json")
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", apiURL, ErrSiteUnavailable)
	}
	return nil
}

func get(ctx context.Context, client *http.Client, rawURL, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", accept)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", rawURL, ErrSiteUnavailable)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("get %s: status %d: %w", rawURL, resp.StatusCode, ErrSiteUnavailable)
	}
	return resp, nil
}
