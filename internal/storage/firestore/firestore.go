// Package firestore implements storage.Storage on Cloud Firestore.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	fs "cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"choicetube/internal/core"
	"choicetube/internal/storage"
)

// Store implements storage.Storage using Firestore
type Store struct {
	client *fs.Client
	logger *slog.Logger
	now    func() time.Time
}

var _ storage.Storage = (*Store)(nil)

// New wraps an existing Firestore client
func New(client *fs.Client, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		client: client,
		logger: logger.With("component", "firestore"),
		now:    time.Now,
	}
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// GetVideoList returns the user's list; a missing document yields an empty list
func (s *Store) GetVideoList(ctx context.Context, userID string) (*core.VideoList, error) {
	snap, err := s.client.Collection(colVideoLists).Doc(userID).Get(ctx)
	if isNotFound(err) {
		return &core.VideoList{UserID: userID, Videos: []*core.VideoItem{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get video list: %w", err)
	}

	var doc videoListDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode video list: %w", err)
	}
	return doc.toCore(userID), nil
}

// AppendVideo appends item in a transaction so concurrent appends get distinct orders
func (s *Store) AppendVideo(ctx context.Context, userID string, item *core.VideoItem) error {
	ref := s.client.Collection(colVideoLists).Doc(userID)

	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *fs.Transaction) error {
		now := s.now()
		doc := videoListDoc{UserID: userID, CreatedAt: now}

		snap, err := tx.Get(ref)
		switch {
		case isNotFound(err):
		case err != nil:
			return err
		default:
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("failed to decode video list: %w", err)
			}
		}

		item.Order = len(doc.Videos)
		doc.Videos = append(doc.Videos, toVideoItemDoc(item))
		doc.UpdatedAt = now
		return tx.Set(ref, doc)
	})
}

// CreateVideoList creates the list document unless it already exists
func (s *Store) CreateVideoList(ctx context.Context, userID string, items []*core.VideoItem) (bool, error) {
	now := s.now()
	doc := videoListDoc{
		UserID:    userID,
		Videos:    make([]videoItemDoc, 0, len(items)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	for i, item := range items {
		item.Order = i
		doc.Videos = append(doc.Videos, toVideoItemDoc(item))
	}

	_, err := s.client.Collection(colVideoLists).Doc(userID).Create(ctx, doc)
	if status.Code(err) == codes.AlreadyExists {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to create video list: %w", err)
	}
	return true, nil
}

// GetScreenTimeLimits retrieves a user's limits
func (s *Store) GetScreenTimeLimits(ctx context.Context, userID string) (*core.ScreenTimeLimit, error) {
	snap, err := s.client.Collection(colLimits).Doc(userID).Get(ctx)
	if isNotFound(err) {
		return nil, core.ErrLimitsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get limits: %w", err)
	}
	return decodeLimits(snap, userID)
}

func decodeLimits(snap *fs.DocumentSnapshot, userID string) (*core.ScreenTimeLimit, error) {
	var doc limitsDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode limits: %w", err)
	}
	return doc.toCore(userID), nil
}

// SaveScreenTimeLimits replaces a user's limits
func (s *Store) SaveScreenTimeLimits(ctx context.Context, limits *core.ScreenTimeLimit) error {
	if limits.UpdatedAt.IsZero() {
		limits.UpdatedAt = s.now()
	}
	_, err := s.client.Collection(colLimits).Doc(limits.UserID).Set(ctx, toLimitsDoc(limits))
	if err != nil {
		return fmt.Errorf("failed to save limits: %w", err)
	}
	return nil
}

// SubscribeLimits listens to the limits document. fn receives nil while the
// document does not exist. Delivery stops on unsubscribe, ctx cancellation,
// or a listener error.
func (s *Store) SubscribeLimits(ctx context.Context, userID string, fn func(*core.ScreenTimeLimit)) (func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	it := s.client.Collection(colLimits).Doc(userID).Snapshots(ctx)

	go func() {
		defer it.Stop()
		for {
			snap, err := it.Next()
			if err != nil {
				if ctx.Err() == nil && status.Code(err) != codes.Canceled {
					s.logger.Error("Limits listener failed", "user_id", userID, "error", err)
				}
				return
			}
			if !snap.Exists() {
				fn(nil)
				continue
			}
			limits, err := decodeLimits(snap, userID)
			if err != nil {
				s.logger.Warn("Skipping undecodable limits snapshot", "user_id", userID, "error", err)
				continue
			}
			fn(limits)
		}
	}()

	return cancel, nil
}

func (s *Store) usageRef(userID, day string) *fs.DocumentRef {
	return s.client.Collection(colUsage).Doc(userID).Collection(colUsageDaily).Doc(day)
}

// GetUsage retrieves usage for a day; a missing document yields zero minutes
func (s *Store) GetUsage(ctx context.Context, userID, day string) (*core.ScreenTimeUsage, error) {
	snap, err := s.usageRef(userID, day).Get(ctx)
	if isNotFound(err) {
		return &core.ScreenTimeUsage{UserID: userID, Date: day}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get usage: %w", err)
	}

	var doc usageDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode usage: %w", err)
	}
	return &core.ScreenTimeUsage{
		UserID:       userID,
		Date:         day,
		TotalMinutes: doc.TotalMinutes,
		LastUpdated:  doc.LastUpdated,
	}, nil
}

// AddUsage atomically increments the day's total
func (s *Store) AddUsage(ctx context.Context, userID, day string, minutes int) error {
	if minutes <= 0 {
		return nil
	}
	_, err := s.usageRef(userID, day).Set(ctx, map[string]interface{}{
		"userId":       userID,
		"date":         day,
		"totalMinutes": fs.Increment(minutes),
		"lastUpdated":  fs.ServerTimestamp,
	}, fs.MergeAll)
	if err != nil {
		return fmt.Errorf("failed to add usage: %w", err)
	}
	return nil
}

func (s *Store) sessionsCol(userID string) *fs.CollectionRef {
	return s.client.Collection(colWatchHistory).Doc(userID).Collection(colWatchSessions)
}

// UpsertWatchSession merges a session under {videoId}_{date}, keeping the first StartedAt
func (s *Store) UpsertWatchSession(ctx context.Context, session *core.WatchSession) error {
	ref := s.sessionsCol(session.UserID).Doc(session.Key())

	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *fs.Transaction) error {
		doc := toWatchDoc(session)

		snap, err := tx.Get(ref)
		switch {
		case isNotFound(err):
		case err != nil:
			return err
		default:
			var existing watchDoc
			if err := snap.DataTo(&existing); err == nil && !existing.StartedAt.IsZero() {
				doc.StartedAt = existing.StartedAt
			}
		}
		return tx.Set(ref, doc)
	})
}

// ListWatchSessions returns sessions by most recent update; limit <= 0 means all
func (s *Store) ListWatchSessions(ctx context.Context, userID string, limit int) ([]*core.WatchSession, error) {
	q := s.sessionsCol(userID).OrderBy("lastUpdated", fs.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}
	return collectSessions(q.Documents(ctx))
}

// ListWatchSessionsByDate returns all sessions of one day
func (s *Store) ListWatchSessionsByDate(ctx context.Context, userID, day string) ([]*core.WatchSession, error) {
	q := s.sessionsCol(userID).Where("date", "==", day)
	return collectSessions(q.Documents(ctx))
}

func collectSessions(it *fs.DocumentIterator) ([]*core.WatchSession, error) {
	defer it.Stop()

	sessions := []*core.WatchSession{}
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list watch sessions: %w", err)
		}
		var doc watchDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode watch session: %w", err)
		}
		sessions = append(sessions, doc.toCore())
	}
	return sessions, nil
}

// GetPrayerSettings retrieves a user's prayer settings
func (s *Store) GetPrayerSettings(ctx context.Context, userID string) (*core.PrayerTimeSettings, error) {
	snap, err := s.client.Collection(colPrayerSettings).Doc(userID).Get(ctx)
	if isNotFound(err) {
		return nil, core.ErrPrayerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prayer settings: %w", err)
	}

	var doc prayerDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode prayer settings: %w", err)
	}
	return doc.toCore(userID), nil
}

// SavePrayerSettings replaces a user's prayer settings
func (s *Store) SavePrayerSettings(ctx context.Context, settings *core.PrayerTimeSettings) error {
	if settings.UpdatedAt.IsZero() {
		settings.UpdatedAt = s.now()
	}
	_, err := s.client.Collection(colPrayerSettings).Doc(settings.UserID).Set(ctx, toPrayerDoc(settings))
	if err != nil {
		return fmt.Errorf("failed to save prayer settings: %w", err)
	}
	return nil
}

// Close closes the Firestore client
func (s *Store) Close() error {
	return s.client.Close()
}
