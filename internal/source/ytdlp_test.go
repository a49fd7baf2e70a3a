package source

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func datedItem(id string, createdAt time.Time) MediaItem {
	return MediaItem{SourceID: id, URL: "https://example.com/" + id, CreatedAt: &createdAt}
}

func TestSortMediaItems_OldestFirstUndatedLast(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	items := []MediaItem{
		{SourceID: "undated-b", URL: "https://example.com/undated-b"},
		datedItem("newest", base.Add(48*time.Hour)),
		{SourceID: "undated-a", URL: "https://example.com/undated-a"},
		datedItem("oldest", base),
		datedItem("middle", base.Add(24*time.Hour)),
	}

	sortMediaItems(items)

	got := make([]string, 0, len(items))
	for _, item := range items {
		got = append(got, item.SourceID)
	}
	require.Equal(t, []string{"oldest", "middle", "newest", "undated-a", "undated-b"}, got)
}

func TestSortMediaItems_TiesBreakOnSourceID(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	items := []MediaItem{
		datedItem("zzz", at),
		datedItem("aaa", at),
		datedItem("mmm", at),
	}

	sortMediaItems(items)

	require.Equal(t, "aaa", items[0].SourceID)
	require.Equal(t, "mmm", items[1].SourceID)
	require.Equal(t, "zzz", items[2].SourceID)
}

func TestNormalizeEntry_Fallbacks(t *testing.T) {
	item := normalizeEntry(rawEntry{URL: "https://example.com/direct"}, 7)

	require.Equal(t, "7", item.SourceID)
	require.Equal(t, "https://example.com/direct", item.URL)
	require.Equal(t, "Untitled video", item.Title)
	require.Nil(t, item.CreatedAt)
}

func TestNormalizeEntry_PrefersWebpageURL(t *testing.T) {
	item := normalizeEntry(rawEntry{
		ID:         "abc123",
		Title:      "A real title",
		WebpageURL: "https://example.com/watch/abc123",
		URL:        "https://cdn.example.com/abc123.mp4",
	}, 0)

	require.Equal(t, "abc123", item.SourceID)
	require.Equal(t, "https://example.com/watch/abc123", item.URL)
	require.Equal(t, "A real title", item.Title)
}

func TestEntryCreatedAt(t *testing.T) {
	at := entryCreatedAt(rawEntry{Timestamp: 1735689600})
	require.NotNil(t, at)
	require.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), at.UTC())

	// upload_date is only a day, used when no timestamp is present.
	at = entryCreatedAt(rawEntry{UploadDate: "20250301"})
	require.NotNil(t, at)
	require.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), at.UTC())

	require.Nil(t, entryCreatedAt(rawEntry{UploadDate: "not-a-date"}))
	require.Nil(t, entryCreatedAt(rawEntry{}))
}

func TestSafeFileBase(t *testing.T) {
	require.Equal(t, "job_1_0_abc", safeFileBase("job_1_0_abc"))
	require.Equal(t, "a_b_c", safeFileBase("a/b c"))

	long := safeFileBase(string(make([]byte, 200)))
	require.Len(t, long, 70)
}
