package core

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"choicetube/internal/youtube"
)

// DefaultVideos is shown to users whose list is empty and seeds new lists
var DefaultVideos = []VideoItem{
	{ID: "FknTw9bJsXM", Type: VariantVideo},
	{ID: "5JN7SZ6NETQ", Type: VariantShorts},
	{ID: "3Kn7bkpA1-c", Type: VariantShorts},
}

// VideoListService manages curated per-user video lists
type VideoListService struct {
	store    VideoListStore
	metadata MetadataProvider
	logger   *slog.Logger
	now      func() time.Time
}

// NewVideoListService creates a new video list service.
// metadata may be nil, in which case items get only the static thumbnail.
func NewVideoListService(store VideoListStore, metadata MetadataProvider, logger *slog.Logger) *VideoListService {
	if logger == nil {
		logger = slog.Default()
	}
	return &VideoListService{
		store:    store,
		metadata: metadata,
		logger:   logger.With("component", "videolist"),
		now:      time.Now,
	}
}

// List returns the user's videos sorted by order, optionally filtered by variant.
// The default list is returned when the user has none.
func (s *VideoListService) List(ctx context.Context, userID string, variant VideoVariant) ([]*VideoItem, error) {
	list, err := s.store.GetVideoList(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get video list: %w", err)
	}

	videos := list.Videos
	if len(videos) == 0 {
		videos = defaultItems(time.Time{})
	}

	sorted := make([]*VideoItem, len(videos))
	copy(sorted, videos)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Order < sorted[j].Order
	})

	if variant == "" {
		return sorted, nil
	}
	filtered := make([]*VideoItem, 0, len(sorted))
	for _, v := range sorted {
		if v.Type == variant {
			filtered = append(filtered, v)
		}
	}
	return filtered, nil
}

// Add extracts a video identifier from text and appends it to the user's list.
// When variant is empty it is derived from the link.
func (s *VideoListService) Add(ctx context.Context, userID, text string, variant VideoVariant) (*VideoItem, error) {
	id, ok := youtube.ExtractVideoID(text)
	if !ok {
		return nil, ErrInvalidVideoURL
	}
	if variant == "" {
		variant = DetectVariant(text)
	}
	if err := variant.Validate(); err != nil {
		return nil, err
	}

	item := &VideoItem{
		ID:        id,
		Type:      variant,
		Thumbnail: youtube.ThumbnailURL(id),
		AddedAt:   s.now(),
	}
	if s.metadata != nil {
		meta, err := s.metadata.Lookup(ctx, id)
		if err != nil {
			s.logger.Warn("Metadata lookup failed, using fallback", "video_id", id, "error", err)
		}
		if meta != nil {
			item.Title = meta.Title
			if meta.Thumbnail != "" {
				item.Thumbnail = meta.Thumbnail
			}
		}
	}

	if err := s.store.AppendVideo(ctx, userID, item); err != nil {
		return nil, fmt.Errorf("failed to append video: %w", err)
	}

	s.logger.Info("Video added",
		"user_id", userID,
		"video_id", item.ID,
		"type", item.Type,
		"order", item.Order)
	return item, nil
}

// AddShared handles content shared from another app: title, text and url are
// joined and searched together.
func (s *VideoListService) AddShared(ctx context.Context, userID, title, text, url string) (*VideoItem, error) {
	joined := strings.TrimSpace(strings.Join([]string{title, text, url}, " "))
	return s.Add(ctx, userID, joined, "")
}

// SeedDefaults creates the default list for a user that has none
func (s *VideoListService) SeedDefaults(ctx context.Context, userID string) error {
	created, err := s.store.CreateVideoList(ctx, userID, defaultItems(s.now()))
	if err != nil {
		return fmt.Errorf("failed to seed video list: %w", err)
	}
	if created {
		s.logger.Info("Seeded default video list", "user_id", userID)
	}
	return nil
}

// DetectVariant classifies shared text as a short or a standard video
func DetectVariant(text string) VideoVariant {
	if youtube.IsShortsLink(text) {
		return VariantShorts
	}
	return VariantVideo
}

func defaultItems(addedAt time.Time) []*VideoItem {
	items := make([]*VideoItem, len(DefaultVideos))
	for i, v := range DefaultVideos {
		item := v
		item.Order = i
		item.AddedAt = addedAt
		item.Thumbnail = youtube.ThumbnailURL(v.ID)
		items[i] = &item
	}
	return items
}
