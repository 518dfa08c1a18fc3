package core

import (
	"context"
	"fmt"
	"sort"
	"time"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 100
	DefaultTopVideos    = 10
)

// WatchStats summarizes viewing for a user
type WatchStats struct {
	Date              string        `json:"date"`
	TodayWatchSeconds int           `json:"todayWatchSeconds"`
	MostWatched       []*VideoStats `json:"mostWatched"`
}

// HistoryService answers watch-history queries
type HistoryService struct {
	store    WatchStore
	timezone *time.Location
}

// NewHistoryService creates a new history service
func NewHistoryService(store WatchStore, timezone *time.Location) *HistoryService {
	if timezone == nil {
		timezone = time.Local
	}
	return &HistoryService{store: store, timezone: timezone}
}

// Recent returns the most recently updated sessions
func (h *HistoryService) Recent(ctx context.Context, userID string, limit int) ([]*WatchSession, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	return h.store.ListWatchSessions(ctx, userID, limit)
}

// TodayWatchSeconds sums watch time recorded for the current day
func (h *HistoryService) TodayWatchSeconds(ctx context.Context, userID string, now time.Time) (int, error) {
	sessions, err := h.store.ListWatchSessionsByDate(ctx, userID, DayKey(now, h.timezone))
	if err != nil {
		return 0, fmt.Errorf("failed to list today's sessions: %w", err)
	}
	total := 0
	for _, s := range sessions {
		total += s.WatchDuration
	}
	return total, nil
}

// MostWatched aggregates all sessions per video, ordered by total watch time
func (h *HistoryService) MostWatched(ctx context.Context, userID string, n int) ([]*VideoStats, error) {
	sessions, err := h.store.ListWatchSessions(ctx, userID, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	stats := AggregateByVideo(sessions)
	if n <= 0 {
		n = DefaultTopVideos
	}
	if len(stats) > n {
		stats = stats[:n]
	}
	return stats, nil
}

// Stats combines today's total with the most watched videos
func (h *HistoryService) Stats(ctx context.Context, userID string, now time.Time) (*WatchStats, error) {
	today, err := h.TodayWatchSeconds(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	top, err := h.MostWatched(ctx, userID, DefaultTopVideos)
	if err != nil {
		return nil, err
	}
	return &WatchStats{
		Date:              DayKey(now, h.timezone),
		TodayWatchSeconds: today,
		MostWatched:       top,
	}, nil
}

// AggregateByVideo groups sessions by video ID
func AggregateByVideo(sessions []*WatchSession) []*VideoStats {
	byID := make(map[string]*VideoStats)
	for _, s := range sessions {
		st, ok := byID[s.VideoID]
		if !ok {
			st = &VideoStats{VideoID: s.VideoID, Type: s.Type}
			byID[s.VideoID] = st
		}
		st.TotalWatch += s.WatchDuration
		st.Sessions++
		if s.LastUpdated.After(st.LastWatch) {
			st.LastWatch = s.LastUpdated
		}
	}

	result := make([]*VideoStats, 0, len(byID))
	for _, st := range byID {
		result = append(result, st)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].TotalWatch != result[j].TotalWatch {
			return result[i].TotalWatch > result[j].TotalWatch
		}
		return result[i].LastWatch.After(result[j].LastWatch)
	})
	return result
}
