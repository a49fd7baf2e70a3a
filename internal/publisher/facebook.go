package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const defaultGraphBaseURL = "https://graph.facebook.com"

// Facebook uploads videos to a page through the Graph API video publishing
// endpoint.
type Facebook struct {
	GraphVersion string
	BaseURL      string
	Client       *http.Client
	logger       zerolog.Logger
}

func NewFacebook(graphVersion string, logger zerolog.Logger) *Facebook {
	return &Facebook{
		GraphVersion: graphVersion,
		BaseURL:      defaultGraphBaseURL,
		Client:       http.DefaultClient,
		logger:       logger.With().Str("component", "facebook").Logger(),
	}
}

type graphError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func (f *Facebook) UploadVideo(ctx context.Context, params UploadParams) (string, error) {
	file, err := os.Open(params.VideoPath)
	if err != nil {
		return "", errors.Wrap(err, "open video file")
	}
	defer file.Close()

	description := params.Description
	if description == "" {
		description = params.Title
	}

	// Stream the multipart body so large videos never land in memory.
	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		err := writeUploadForm(form, file, params, description)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(form.Close())
	}()

	url := fmt.Sprintf("%s/%s/%s/videos", f.BaseURL, f.GraphVersion, params.PageID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, pr)
	if err != nil {
		return "", errors.Wrap(err, "build upload request")
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := f.Client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "upload video to page")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", errors.Wrap(err, "read upload response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var ge graphError
		if json.Unmarshal(body, &ge) == nil && ge.Error.Message != "" {
			return "", fmt.Errorf("graph api: %s (code %d)", ge.Error.Message, ge.Error.Code)
		}
		return "", fmt.Errorf("graph api: unexpected status %d", resp.StatusCode)
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", errors.Wrap(err, "decode upload response")
	}

	f.logger.Info().Str("page_id", params.PageID).Str("video_id", result.ID).Msg("video uploaded to page")
	return result.ID, nil
}

// ManagedPage is one page the user token can publish to.
type ManagedPage struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AccessToken string `json:"access_token"`
	Category    string `json:"category"`
}

// ListManagedPages resolves the pages a user access token administers, used
// during job creation to pick the destination page and its page token.
func (f *Facebook) ListManagedPages(ctx context.Context, userToken string) ([]ManagedPage, error) {
	url := fmt.Sprintf("%s/%s/me/accounts?fields=id,name,access_token,category&limit=200&access_token=%s",
		f.BaseURL, f.GraphVersion, userToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "list managed pages")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "read pages response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var ge graphError
		if json.Unmarshal(body, &ge) == nil && ge.Error.Message != "" {
			return nil, fmt.Errorf("graph api: %s (code %d)", ge.Error.Message, ge.Error.Code)
		}
		return nil, fmt.Errorf("graph api: unexpected status %d", resp.StatusCode)
	}

	var result struct {
		Data []ManagedPage `json:"data"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, errors.Wrap(err, "decode pages response")
	}
	return result.Data, nil
}

func writeUploadForm(form *multipart.Writer, file *os.File, params UploadParams, description string) error {
	if err := form.WriteField("access_token", params.PageToken); err != nil {
		return err
	}
	if err := form.WriteField("title", params.Title); err != nil {
		return err
	}
	if err := form.WriteField("description", description); err != nil {
		return err
	}
	if err := form.WriteField("published", "true"); err != nil {
		return err
	}
	part, err := form.CreateFormFile("source", filepath.Base(file.Name()))
	if err != nil {
		return err
	}
	_, err = io.Copy(part, file)
	return err
}
