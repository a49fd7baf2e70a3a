package source

import (
	"context"
	"errors"
	"time"
)

// ErrDownloadFailed marks any transport or parse failure while fetching a
// media file. The pipeline treats it as retryable.
var ErrDownloadFailed = errors.New("media download failed")

// MediaItem is one normalized entry from a source account listing.
type MediaItem struct {
	SourceID    string     `json:"source_id"`
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
}

// Source lists available media on a source account and retrieves playable
// files. List re-derives the listing from the live source on every call;
// callers must tolerate it growing, shrinking, or reordering between calls.
type Source interface {
	// List returns the account's media ascending by creation time. Items
	// with unknown creation time sort after all dated items, tie-broken by
	// SourceID, so a positional cursor stays stable across calls as long as
	// the platform preserves set membership.
	List(ctx context.Context, sourceURL string) ([]MediaItem, error)

	// Download fetches one item into the adapter's temp directory and
	// returns the local file path.
	Download(ctx context.Context, url, baseName string) (string, error)
}
