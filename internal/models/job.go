package models

import (
	"encoding/json"
	"time"
)

type JobStatus string

const (
	JobStatusActive   JobStatus = "active"
	JobStatusPaused   JobStatus = "paused"
	JobStatusArchived JobStatus = "archived"
)

type SourcePlatform string

const (
	PlatformInstagram SourcePlatform = "instagram"
	PlatformTikTok    SourcePlatform = "tiktok"
	PlatformYouTube   SourcePlatform = "youtube"
)

func IsValidPlatform(platform SourcePlatform) bool {
	switch platform {
	case PlatformInstagram, PlatformTikTok, PlatformYouTube:
		return true
	}
	return false
}

// AutomationJob is one configured republishing pipeline. NextMediaIndex is a
// positional cursor into the source listing and only ever increases.
type AutomationJob struct {
	ID                string         `json:"id" db:"id"`
	UserID            string         `json:"user_id" db:"user_id"`
	Name              string         `json:"name" db:"name"`
	SourcePlatform    SourcePlatform `json:"source_platform" db:"source_platform"`
	SourceURL         string         `json:"source_url" db:"source_url"`
	FacebookUserToken string         `json:"-" db:"facebook_user_token"`
	FacebookPageID    string         `json:"facebook_page_id" db:"facebook_page_id"`
	FacebookPageName  string         `json:"facebook_page_name" db:"facebook_page_name"`
	FacebookPageToken string         `json:"-" db:"facebook_page_token"`
	NextMediaIndex    int            `json:"next_media_index" db:"next_media_index"`
	LastPostedURL     *string        `json:"last_posted_url,omitempty" db:"last_posted_url"`
	LastPostedAt      *time.Time     `json:"last_posted_at,omitempty" db:"last_posted_at"`
	NextRunAt         *time.Time     `json:"next_run_at,omitempty" db:"next_run_at"`
	Status            JobStatus      `json:"status" db:"status"`
	CreatedAt         time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at" db:"updated_at"`
}

type LogLevel string

const (
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// AutomationLogEntry is an append-only audit record of one pipeline event.
type AutomationLogEntry struct {
	ID        string          `json:"id" db:"id"`
	JobID     string          `json:"job_id" db:"job_id"`
	Level     LogLevel        `json:"level" db:"level"`
	Message   string          `json:"message" db:"message"`
	Metadata  json.RawMessage `json:"metadata,omitempty" db:"metadata"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}
