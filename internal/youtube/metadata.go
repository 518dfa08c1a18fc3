package youtube

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/api/option"
	ytapi "google.golang.org/api/youtube/v3"
)

// ErrVideoNotFound is returned when the Data API has no such video
var ErrVideoNotFound = errors.New("video not found")

// Metadata is descriptive data about a video
type Metadata struct {
	Title        string
	Thumbnail    string
	ChannelTitle string
}

// MetadataClient looks up video titles and thumbnails through the YouTube Data API.
// Without an API key every lookup returns the static thumbnail only.
type MetadataClient struct {
	service *ytapi.Service
	timeout time.Duration
	logger  *slog.Logger
}

// NewMetadataClient creates a client. Extra options are passed to the API client.
func NewMetadataClient(ctx context.Context, apiKey string, logger *slog.Logger, opts ...option.ClientOption) (*MetadataClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &MetadataClient{
		timeout: 10 * time.Second,
		logger:  logger.With("component", "youtube"),
	}
	if apiKey == "" {
		c.logger.Info("No YouTube API key configured, metadata lookups disabled")
		return c, nil
	}

	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	service, err := ytapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create youtube service: %w", err)
	}
	c.service = service
	return c, nil
}

// Lookup returns metadata for a video. Errors still come with a usable fallback.
func (c *MetadataClient) Lookup(ctx context.Context, videoID string) (*Metadata, error) {
	fallback := &Metadata{Thumbnail: ThumbnailURL(videoID)}
	if c.service == nil {
		return fallback, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.service.Videos.List([]string{"snippet"}).Id(videoID).Context(ctx).Do()
	if err != nil {
		c.logger.Warn("Video lookup failed", "video_id", videoID, "error", err)
		return fallback, fmt.Errorf("videos.list: %w", err)
	}
	if len(resp.Items) == 0 || resp.Items[0].Snippet == nil {
		return fallback, ErrVideoNotFound
	}

	snippet := resp.Items[0].Snippet
	meta := &Metadata{
		Title:        snippet.Title,
		ChannelTitle: snippet.ChannelTitle,
		Thumbnail:    pickThumbnail(snippet.Thumbnails),
	}
	if meta.Thumbnail == "" {
		meta.Thumbnail = fallback.Thumbnail
	}
	return meta, nil
}

func pickThumbnail(t *ytapi.ThumbnailDetails) string {
	if t == nil {
		return ""
	}
	if t.Maxres != nil && t.Maxres.Url != "" {
		return t.Maxres.Url
	}
	if t.High != nil && t.High.Url != "" {
		return t.High.Url
	}
	return ""
}
