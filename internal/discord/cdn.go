package discord

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
)

// MaxImageSize is the largest size the CDN serves.
const MaxImageSize = 4096

const maxImageBytes = 10 << 20

// CoverURL returns the CDN address of a scheduled event cover image.
func CoverURL(cdnURL, eventID, imageHash string, size int) string {
	return fmt.Sprintf("%s/guild-events/%s/%s.png?size=%d", strings.TrimRight(cdnURL, "/"), eventID, imageHash, size)
}

// CoverImage downloads an event's cover from the CDN and returns it as a
// data URI, the form the REST API accepts for image uploads.
func (c *Client) CoverImage(ctx context.Context, eventID, imageHash string, size int) (string, error) {
	url := CoverURL(c.cfg.CDNURL, eventID, imageHash, size)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch cover: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &APIError{Status: resp.StatusCode, Method: http.MethodGet, Path: "/guild-events/" + eventID}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return "", fmt.Errorf("read cover: %w", err)
	}
	if len(data) > maxImageBytes {
		return "", fmt.Errorf("cover for event %s: %w", eventID, ErrImageTooLarge)
	}

	return DataURI(resp.Header.Get("Content-Type"), data), nil
}

// DataURI encodes image bytes as a base64 data URI. The content type is
// sniffed when contentType is empty or not an image type.
func DataURI(contentType string, data []byte) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "image/") {
		mediaType = http.DetectContentType(data)
	}
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
