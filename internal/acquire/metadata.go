// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/pdiddy/arxiv-epub/internal/httputil"
	"github.com/pdiddy/arxiv-epub/pkg/types"
)

// Resolver looks up the catalog record for an identifier.
type Resolver interface {
	Resolve(ctx context.Context, id types.Identifier) (*types.PaperMetadata, error)
}

// arXiv Atom feed XML structures.
type arxivFeed struct {
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID        string        `xml:"id"`
	Title     string        `xml:"title"`
	Summary   string        `xml:"summary"`
	Published string        `xml:"published"`
	Updated   string        `xml:"updated"`
	Authors   []arxivAuthor `xml:"author"`
}

type arxivAuthor struct {
	Name string `xml:"name"`
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// ArxivResolver queries the arXiv Atom API. Requests are spaced by the
// configured API delay, shared across goroutines.
type ArxivResolver struct {
	client  *http.Client
	http    types.HTTPConfig
	apiBase string
	limiter *rate.Limiter
}

// NewArxivResolver creates a resolver for the API at src.APIBase (or the
// public endpoint when empty).
func NewArxivResolver(client *http.Client, httpCfg types.HTTPConfig, src types.SourceConfig) *ArxivResolver {
	apiBase := src.APIBase
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	limit := rate.Inf
	if src.APIDelay > 0 {
		limit = rate.Every(src.APIDelay)
	}
	return &ArxivResolver{
		client:  client,
		http:    httpCfg,
		apiBase: apiBase,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Resolve fetches exactly one record for id. It returns an error wrapping
// types.ErrMetadataNotFound when the catalog has no usable entry, and a
// *httputil.FetchError for transport or HTTP failures.
func (r *ArxivResolver) Resolve(ctx context.Context, id types.Identifier) (*types.PaperMetadata, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	apiURL := fmt.Sprintf("%s?id_list=%s&max_results=1", r.apiBase, url.QueryEscape(id.String()))
	resp, err := httputil.Get(ctx, r.client, apiURL, httputil.OptionsFrom(r.http, "application/atom+xml"))
	if err != nil {
		return nil, fmt.Errorf("arXiv API request: %w", err)
	}
	defer resp.Body.Close()

	var feed arxivFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("parsing arXiv response: %w", err)
	}
	return metadataFromFeed(id, feed)
}

func metadataFromFeed(id types.Identifier, feed arxivFeed) (*types.PaperMetadata, error) {
	if len(feed.Entries) == 0 {
		return nil, fmt.Errorf("%w: no entries for arXiv ID %s", types.ErrMetadataNotFound, id)
	}

	entry := feed.Entries[0]
	// The API reports bad IDs as a single entry under /api/errors.
	if strings.Contains(entry.ID, "/api/errors") {
		return nil, fmt.Errorf("%w: arXiv ID %s: %s", types.ErrMetadataNotFound, id, strings.TrimSpace(entry.Summary))
	}
	title := collapseSpace(entry.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: empty entry for arXiv ID %s", types.ErrMetadataNotFound, id)
	}

	published, err := time.Parse(time.RFC3339, strings.TrimSpace(entry.Published))
	if err != nil {
		published, err = time.Parse(time.RFC3339, strings.TrimSpace(entry.Updated))
		if err != nil {
			return nil, fmt.Errorf("%w: arXiv ID %s has no publication date", types.ErrMetadataNotFound, id)
		}
	}

	meta := &types.PaperMetadata{
		ID:        id,
		Title:     title,
		Year:      fmt.Sprintf("%04d", published.Year()),
		Published: published,
		Abstract:  collapseSpace(entry.Summary),
	}
	for _, a := range entry.Authors {
		if name := collapseSpace(a.Name); name != "" {
			meta.Authors = append(meta.Authors, name)
		}
	}
	if len(meta.Authors) > 0 {
		meta.Surname = Surname(meta.Authors[0])
	}
	return meta, nil
}

// Surname returns the last whitespace-separated token of a full name.
func Surname(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

func collapseSpace(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}
