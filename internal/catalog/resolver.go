// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/pdiddy/arxiv-epub/internal/acquire"
	"github.com/pdiddy/arxiv-epub/pkg/types"
)

// CachedResolver answers from the catalog and falls back to another Resolver
// on a miss, caching what it returns.
type CachedResolver struct {
	store *Store
	next  acquire.Resolver
	w     io.Writer
}

// NewCachedResolver wraps next with the catalog cache. Cache write failures
// are reported to w and do not fail resolution.
func NewCachedResolver(store *Store, next acquire.Resolver, w io.Writer) *CachedResolver {
	if w == nil {
		w = io.Discard
	}
	return &CachedResolver{store: store, next: next, w: w}
}

// Resolve implements acquire.Resolver.
func (r *CachedResolver) Resolve(ctx context.Context, id types.Identifier) (*types.PaperMetadata, error) {
	meta, err := r.store.Paper(ctx, id)
	if err == nil {
		return meta, nil
	}
	if !errors.Is(err, ErrNotCached) {
		fmt.Fprintf(r.w, "  warning: catalog lookup %s: %v\n", id, err)
	}

	meta, err = r.next.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := r.store.PutPaper(ctx, *meta); err != nil {
		fmt.Fprintf(r.w, "  warning: %v\n", err)
	}
	return meta, nil
}
