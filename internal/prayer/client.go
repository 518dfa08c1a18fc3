// Package prayer fetches daily prayer times and detects active prayer windows.
package prayer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"choicetube/internal/core"
)

// DefaultBaseURL is the public Aladhan API
const DefaultBaseURL = "https://api.aladhan.com"

var (
	ErrUnavailable       = errors.New("prayer times unavailable")
	ErrMalformedResponse = errors.New("malformed prayer times response")
)

// Client fetches prayer times from the Aladhan API
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new Aladhan client
func NewClient(baseURL string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger.With("component", "prayer-client"),
	}
}

type timingsResponse struct {
	Code   int    `json:"code"`
	Status string `json:"status"`
	Data   struct {
		Timings map[string]string `json:"timings"`
		Date    struct {
			Readable string `json:"readable"`
		} `json:"date"`
		Meta struct {
			Timezone string `json:"timezone"`
		} `json:"meta"`
	} `json:"data"`
}

// Timings returns the prayer schedule for the day containing at
func (c *Client) Timings(ctx context.Context, at time.Time, settings *core.PrayerTimeSettings) (*core.PrayerTimes, error) {
	query := url.Values{}
	query.Set("latitude", strconv.FormatFloat(settings.Latitude, 'f', -1, 64))
	query.Set("longitude", strconv.FormatFloat(settings.Longitude, 'f', -1, 64))
	query.Set("method", strconv.Itoa(settings.Method))
	query.Set("school", strconv.Itoa(settings.School))
	endpoint := fmt.Sprintf("%s/v1/timings/%d?%s", c.baseURL, at.Unix(), query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("Prayer times request failed",
			"status", resp.StatusCode,
			"body", truncate(string(body), 200))
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var parsed timingsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if parsed.Code != http.StatusOK {
		return nil, fmt.Errorf("%w: api code %d", ErrUnavailable, parsed.Code)
	}

	times := &core.PrayerTimes{
		Fajr:    clockPart(parsed.Data.Timings["Fajr"]),
		Sunrise: clockPart(parsed.Data.Timings["Sunrise"]),
		Dhuhr:   clockPart(parsed.Data.Timings["Dhuhr"]),
		Asr:     clockPart(parsed.Data.Timings["Asr"]),
		Maghrib: clockPart(parsed.Data.Timings["Maghrib"]),
		Isha:    clockPart(parsed.Data.Timings["Isha"]),
		Date:    parsed.Data.Date.Readable,
	}
	if tz := parsed.Data.Meta.Timezone; tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			c.logger.Warn("Unknown prayer times timezone", "timezone", tz, "error", err)
		} else {
			times.Timezone = tz
		}
	}
	for _, v := range []string{times.Fajr, times.Sunrise, times.Dhuhr, times.Asr, times.Maghrib, times.Isha} {
		if _, err := core.ParseClock(v); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
	}
	return times, nil
}

// clockPart keeps "HH:MM" from values like "05:12 (EET)"
func clockPart(v string) string {
	v = strings.TrimSpace(v)
	if len(v) > 5 {
		return v[:5]
	}
	return v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
