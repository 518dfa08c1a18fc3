package core

import (
	"context"
	"sort"
	"sync"
)

// memStore is an in-memory implementation of the store interfaces
type memStore struct {
	mu       sync.Mutex
	lists    map[string]*VideoList
	limits   map[string]*ScreenTimeLimit
	usage    map[string]int
	sessions map[string]*WatchSession
	prayer   map[string]*PrayerTimeSettings

	appendErr error
	addCalls  []int
}

func newMemStore() *memStore {
	return &memStore{
		lists:    make(map[string]*VideoList),
		limits:   make(map[string]*ScreenTimeLimit),
		usage:    make(map[string]int),
		sessions: make(map[string]*WatchSession),
		prayer:   make(map[string]*PrayerTimeSettings),
	}
}

func (m *memStore) GetVideoList(ctx context.Context, userID string) (*VideoList, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.lists[userID]; ok {
		return l, nil
	}
	return &VideoList{UserID: userID}, nil
}

func (m *memStore) AppendVideo(ctx context.Context, userID string, item *VideoItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	l, ok := m.lists[userID]
	if !ok {
		l = &VideoList{UserID: userID}
		m.lists[userID] = l
	}
	item.Order = len(l.Videos)
	l.Videos = append(l.Videos, item)
	return nil
}

func (m *memStore) CreateVideoList(ctx context.Context, userID string, items []*VideoItem) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.lists[userID]; ok {
		return false, nil
	}
	m.lists[userID] = &VideoList{UserID: userID, Videos: items}
	return true, nil
}

func (m *memStore) GetScreenTimeLimits(ctx context.Context, userID string) (*ScreenTimeLimit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.limits[userID]
	if !ok {
		return nil, ErrLimitsNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *memStore) SaveScreenTimeLimits(ctx context.Context, limits *ScreenTimeLimit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *limits
	m.limits[limits.UserID] = &cp
	return nil
}

func (m *memStore) SubscribeLimits(ctx context.Context, userID string, fn func(*ScreenTimeLimit)) (func(), error) {
	l, err := m.GetScreenTimeLimits(ctx, userID)
	if err != nil {
		l = nil
	}
	fn(l)
	return func() {}, nil
}

func (m *memStore) GetUsage(ctx context.Context, userID, day string) (*ScreenTimeUsage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &ScreenTimeUsage{UserID: userID, Date: day, TotalMinutes: m.usage[userID+"/"+day]}, nil
}

func (m *memStore) AddUsage(ctx context.Context, userID, day string, minutes int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage[userID+"/"+day] += minutes
	m.addCalls = append(m.addCalls, minutes)
	return nil
}

func (m *memStore) UpsertWatchSession(ctx context.Context, session *WatchSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := session.UserID + "/" + session.Key()
	cp := *session
	if existing, ok := m.sessions[key]; ok {
		cp.StartedAt = existing.StartedAt
	}
	m.sessions[key] = &cp
	return nil
}

func (m *memStore) ListWatchSessions(ctx context.Context, userID string, limit int) ([]*WatchSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*WatchSession
	for _, s := range m.sessions {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastUpdated.After(out[j].LastUpdated) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) ListWatchSessionsByDate(ctx context.Context, userID, day string) ([]*WatchSession, error) {
	all, _ := m.ListWatchSessions(ctx, userID, 0)
	var out []*WatchSession
	for _, s := range all {
		if s.Date == day {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) GetPrayerSettings(ctx context.Context, userID string) (*PrayerTimeSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prayer[userID]
	if !ok {
		return nil, ErrPrayerNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) SavePrayerSettings(ctx context.Context, settings *PrayerTimeSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *settings
	m.prayer[settings.UserID] = &cp
	return nil
}

type stubMetadata struct {
	meta *VideoMetadata
	err  error
}

func (s *stubMetadata) Lookup(ctx context.Context, videoID string) (*VideoMetadata, error) {
	return s.meta, s.err
}
