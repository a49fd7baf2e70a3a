package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// YtDlp lists and downloads media by shelling out to a yt-dlp binary. It
// covers every supported source platform since yt-dlp resolves Instagram,
// TikTok and YouTube URLs uniformly.
type YtDlp struct {
	Binary      string
	TempDir     string
	CookiesPath string
	logger      zerolog.Logger
}

func NewYtDlp(binary, tempDir, cookiesPath string, logger zerolog.Logger) *YtDlp {
	return &YtDlp{
		Binary:      binary,
		TempDir:     tempDir,
		CookiesPath: cookiesPath,
		logger:      logger.With().Str("component", "ytdlp").Logger(),
	}
}

// rawEntry mirrors the subset of yt-dlp's JSON dump we consume.
type rawEntry struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	WebpageURL  string     `json:"webpage_url"`
	URL         string     `json:"url"`
	Timestamp   int64      `json:"timestamp"`
	UploadDate  string     `json:"upload_date"`
	Entries     []rawEntry `json:"entries"`
}

func (y *YtDlp) List(ctx context.Context, sourceURL string) ([]MediaItem, error) {
	args := []string{
		"--dump-single-json",
		"--skip-download",
		"--no-warnings",
		"--quiet",
		"--ignore-errors",
		"--no-check-certificates",
	}
	if y.CookiesPath != "" {
		args = append(args, "--cookies", y.CookiesPath)
	}
	args = append(args, sourceURL)

	out, err := y.run(ctx, args)
	if err != nil {
		return nil, errors.Wrap(err, "list source media")
	}

	var payload rawEntry
	if err := json.Unmarshal(out, &payload); err != nil {
		return nil, errors.Wrap(err, "parse source metadata")
	}

	// A single video dumps as one object, a channel/profile as a playlist
	// with entries.
	raw := payload.Entries
	if raw == nil {
		raw = []rawEntry{payload}
	}

	items := make([]MediaItem, 0, len(raw))
	for i, entry := range raw {
		if entry.WebpageURL == "" && entry.URL == "" && entry.ID == "" {
			continue
		}
		items = append(items, normalizeEntry(entry, i))
	}
	sortMediaItems(items)
	return items, nil
}

func normalizeEntry(entry rawEntry, fallbackIndex int) MediaItem {
	url := entry.WebpageURL
	if url == "" {
		url = entry.URL
	}
	id := entry.ID
	if id == "" {
		id = fmt.Sprintf("%d", fallbackIndex)
	}
	title := entry.Title
	if title == "" {
		title = "Untitled video"
	}
	return MediaItem{
		SourceID:    id,
		URL:         url,
		Title:       title,
		Description: entry.Description,
		CreatedAt:   entryCreatedAt(entry),
	}
}

var uploadDatePattern = regexp.MustCompile(`^\d{8}$`)

func entryCreatedAt(entry rawEntry) *time.Time {
	if entry.Timestamp > 0 {
		t := time.Unix(entry.Timestamp, 0).UTC()
		return &t
	}
	if uploadDatePattern.MatchString(entry.UploadDate) {
		if t, err := time.Parse("20060102", entry.UploadDate); err == nil {
			return &t
		}
	}
	return nil
}

// sortMediaItems orders ascending by creation time; undated items sort after
// all dated ones so the positional cursor never jumps backwards when the
// platform omits a date.
func sortMediaItems(items []MediaItem) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		switch {
		case a.CreatedAt != nil && b.CreatedAt != nil:
			if !a.CreatedAt.Equal(*b.CreatedAt) {
				return a.CreatedAt.Before(*b.CreatedAt)
			}
			return a.SourceID < b.SourceID
		case a.CreatedAt != nil:
			return true
		case b.CreatedAt != nil:
			return false
		default:
			return a.SourceID < b.SourceID
		}
	})
}

var unsafeBaseChars = regexp.MustCompile(`[^a-zA-Z0-9-_]`)

func safeFileBase(input string) string {
	base := unsafeBaseChars.ReplaceAllString(input, "_")
	if len(base) > 70 {
		base = base[:70]
	}
	return base
}

func (y *YtDlp) Download(ctx context.Context, url, baseName string) (string, error) {
	if err := os.MkdirAll(y.TempDir, 0o755); err != nil {
		return "", errors.Wrapf(ErrDownloadFailed, "create temp dir: %v", err)
	}

	base := safeFileBase(baseName)
	template := filepath.Join(y.TempDir, base+".%(ext)s")

	args := []string{
		"--no-warnings",
		"--quiet",
		"--no-check-certificates",
		"--no-playlist",
		"--format", "bv*+ba/b",
		"--merge-output-format", "mp4",
		"--output", template,
	}
	if y.CookiesPath != "" {
		args = append(args, "--cookies", y.CookiesPath)
	}
	args = append(args, url)

	if _, err := y.run(ctx, args); err != nil {
		return "", errors.Wrapf(ErrDownloadFailed, "%v", err)
	}

	path, err := y.findDownloaded(base)
	if err != nil {
		return "", err
	}
	return path, nil
}

// findDownloaded resolves the output template to the actual file yt-dlp
// wrote, since the extension is only known after the merge step.
func (y *YtDlp) findDownloaded(base string) (string, error) {
	entries, err := os.ReadDir(y.TempDir)
	if err != nil {
		return "", errors.Wrapf(ErrDownloadFailed, "read temp dir: %v", err)
	}

	var (
		newest     string
		newestTime time.Time
	)
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, base+".") || strings.HasSuffix(name, ".part") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestTime) {
			newest = filepath.Join(y.TempDir, name)
			newestTime = info.ModTime()
		}
	}
	if newest == "" {
		return "", errors.Wrap(ErrDownloadFailed, "download completed but output file was not found")
	}
	return newest, nil
}

func (y *YtDlp) run(ctx context.Context, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, y.Binary, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	y.logger.Debug().Strs("args", args).Msg("running yt-dlp")
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return nil, fmt.Errorf("yt-dlp: %s", detail)
	}
	return stdout.Bytes(), nil
}

// Cleanup removes a downloaded temp file. A blank path or an already-removed
// file is a no-op.
func Cleanup(path string) {
	if path == "" {
		return
	}
	_ = os.Remove(path)
}
