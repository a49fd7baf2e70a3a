package publisher

import "context"

type UploadParams struct {
	PageID      string
	PageToken   string
	VideoPath   string
	Title       string
	Description string
}

// Publisher pushes a downloaded media file to the managed destination page
// and returns the platform-assigned identifier.
type Publisher interface {
	UploadVideo(ctx context.Context, params UploadParams) (string, error)
}
