package firestore

import (
	"time"

	"choicetube/internal/core"
)

// Collection names
const (
	colVideoLists     = "videoLists"
	colLimits         = "screenTimeLimits"
	colUsage          = "screenTimeUsage"
	colUsageDaily     = "daily"
	colPrayerSettings = "prayerSettings"
	colWatchHistory   = "watchHistory"
	colWatchSessions  = "sessions"
)

type videoItemDoc struct {
	ID        string    `firestore:"id"`
	Type      string    `firestore:"type"`
	Title     string    `firestore:"title,omitempty"`
	Thumbnail string    `firestore:"thumbnail,omitempty"`
	Order     int       `firestore:"order"`
	AddedAt   time.Time `firestore:"addedAt"`
}

type videoListDoc struct {
	UserID    string         `firestore:"userId"`
	Videos    []videoItemDoc `firestore:"videos"`
	CreatedAt time.Time      `firestore:"createdAt"`
	UpdatedAt time.Time      `firestore:"updatedAt"`
}

type scheduleDoc struct {
	ID         string `firestore:"id"`
	Name       string `firestore:"name"`
	StartTime  string `firestore:"startTime"`
	EndTime    string `firestore:"endTime"`
	DaysOfWeek []int  `firestore:"daysOfWeek"`
	Action     string `firestore:"action"`
}

type limitsDoc struct {
	UserID                 string        `firestore:"userId"`
	DailyLimitMinutes      int           `firestore:"dailyLimitMinutes"`
	Enabled                bool          `firestore:"enabled"`
	Schedules              []scheduleDoc `firestore:"schedules"`
	LockMessage            string        `firestore:"lockMessage"`
	RequirePassword        bool          `firestore:"requirePassword"`
	ParentPasswordHash     string        `firestore:"parentPasswordHash"`
	ConsecutiveShortsLimit int           `firestore:"consecutiveShortsLimit"`
	UpdatedAt              time.Time     `firestore:"updatedAt"`
}

type usageDoc struct {
	UserID       string    `firestore:"userId"`
	Date         string    `firestore:"date"`
	TotalMinutes int       `firestore:"totalMinutes"`
	LastUpdated  time.Time `firestore:"lastUpdated"`
}

type watchDoc struct {
	UserID        string    `firestore:"userId"`
	VideoID       string    `firestore:"videoId"`
	Type          string    `firestore:"type"`
	Date          string    `firestore:"date"`
	StartedAt     time.Time `firestore:"startedAt"`
	LastUpdated   time.Time `firestore:"lastUpdated"`
	WatchDuration int       `firestore:"watchDuration"`
	Completed     bool      `firestore:"completed"`
}

type prayerDoc struct {
	UserID      string    `firestore:"userId"`
	Latitude    float64   `firestore:"latitude"`
	Longitude   float64   `firestore:"longitude"`
	Method      int       `firestore:"method"`
	School      int       `firestore:"school"`
	Enabled     bool      `firestore:"enabled"`
	PauseVideos bool      `firestore:"pauseVideos"`
	PlayAdhan   bool      `firestore:"playAdhan"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

func toVideoItemDoc(item *core.VideoItem) videoItemDoc {
	return videoItemDoc{
		ID:        item.ID,
		Type:      string(item.Type),
		Title:     item.Title,
		Thumbnail: item.Thumbnail,
		Order:     item.Order,
		AddedAt:   item.AddedAt,
	}
}

func (d videoListDoc) toCore(userID string) *core.VideoList {
	list := &core.VideoList{
		UserID:    userID,
		Videos:    make([]*core.VideoItem, 0, len(d.Videos)),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	for _, v := range d.Videos {
		list.Videos = append(list.Videos, &core.VideoItem{
			ID:        v.ID,
			Type:      core.VideoVariant(v.Type),
			Title:     v.Title,
			Thumbnail: v.Thumbnail,
			Order:     v.Order,
			AddedAt:   v.AddedAt,
		})
	}
	return list
}

func toLimitsDoc(l *core.ScreenTimeLimit) limitsDoc {
	doc := limitsDoc{
		UserID:                 l.UserID,
		DailyLimitMinutes:      l.DailyLimitMinutes,
		Enabled:                l.Enabled,
		Schedules:              make([]scheduleDoc, 0, len(l.Schedules)),
		LockMessage:            l.LockMessage,
		RequirePassword:        l.RequirePassword,
		ParentPasswordHash:     l.ParentPasswordHash,
		ConsecutiveShortsLimit: l.ConsecutiveShortsLimit,
		UpdatedAt:              l.UpdatedAt,
	}
	for _, s := range l.Schedules {
		doc.Schedules = append(doc.Schedules, scheduleDoc{
			ID:         s.ID,
			Name:       s.Name,
			StartTime:  s.StartTime,
			EndTime:    s.EndTime,
			DaysOfWeek: s.DaysOfWeek,
			Action:     string(s.Action),
		})
	}
	return doc
}

func (d limitsDoc) toCore(userID string) *core.ScreenTimeLimit {
	limits := &core.ScreenTimeLimit{
		UserID:                 userID,
		DailyLimitMinutes:      d.DailyLimitMinutes,
		Enabled:                d.Enabled,
		Schedules:              make([]*core.Schedule, 0, len(d.Schedules)),
		LockMessage:            d.LockMessage,
		RequirePassword:        d.RequirePassword,
		ParentPasswordHash:     d.ParentPasswordHash,
		ConsecutiveShortsLimit: d.ConsecutiveShortsLimit,
		UpdatedAt:              d.UpdatedAt,
	}
	for _, s := range d.Schedules {
		limits.Schedules = append(limits.Schedules, &core.Schedule{
			ID:         s.ID,
			Name:       s.Name,
			StartTime:  s.StartTime,
			EndTime:    s.EndTime,
			DaysOfWeek: s.DaysOfWeek,
			Action:     core.ScheduleAction(s.Action),
		})
	}
	return limits
}

func toWatchDoc(ws *core.WatchSession) watchDoc {
	return watchDoc{
		UserID:        ws.UserID,
		VideoID:       ws.VideoID,
		Type:          string(ws.Type),
		Date:          ws.Date,
		StartedAt:     ws.StartedAt,
		LastUpdated:   ws.LastUpdated,
		WatchDuration: ws.WatchDuration,
		Completed:     ws.Completed,
	}
}

func (d watchDoc) toCore() *core.WatchSession {
	return &core.WatchSession{
		UserID:        d.UserID,
		VideoID:       d.VideoID,
		Type:          core.VideoVariant(d.Type),
		Date:          d.Date,
		StartedAt:     d.StartedAt,
		LastUpdated:   d.LastUpdated,
		WatchDuration: d.WatchDuration,
		Completed:     d.Completed,
	}
}

func toPrayerDoc(p *core.PrayerTimeSettings) prayerDoc {
	return prayerDoc{
		UserID:      p.UserID,
		Latitude:    p.Latitude,
		Longitude:   p.Longitude,
		Method:      p.Method,
		School:      p.School,
		Enabled:     p.Enabled,
		PauseVideos: p.PauseVideos,
		PlayAdhan:   p.PlayAdhan,
		UpdatedAt:   p.UpdatedAt,
	}
}

func (d prayerDoc) toCore(userID string) *core.PrayerTimeSettings {
	return &core.PrayerTimeSettings{
		UserID:      userID,
		Latitude:    d.Latitude,
		Longitude:   d.Longitude,
		Method:      d.Method,
		School:      d.School,
		Enabled:     d.Enabled,
		PauseVideos: d.PauseVideos,
		PlayAdhan:   d.PlayAdhan,
		UpdatedAt:   d.UpdatedAt,
	}
}
