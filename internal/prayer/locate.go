package prayer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"choicetube/internal/core"
)

// DefaultGeoBaseURL is the IP geolocation service
const DefaultGeoBaseURL = "http://ip-api.com"

// Locator resolves a client address to coordinates
type Locator struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewLocator creates a new IP geolocation client
func NewLocator(baseURL string, logger *slog.Logger) *Locator {
	if baseURL == "" {
		baseURL = DefaultGeoBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Locator{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		logger: logger.With("component", "locator"),
	}
}

type geoResponse struct {
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// Locate returns coordinates for ip. Private and loopback addresses are
// resolved as the server's own public address.
// Any failure yields core.ErrLocationUnavailable.
func (l *Locator) Locate(ctx context.Context, ip string) (core.Coordinates, error) {
	target := ""
	if parsed := net.ParseIP(ip); parsed != nil && !parsed.IsLoopback() && !parsed.IsPrivate() {
		target = parsed.String()
	}
	endpoint := fmt.Sprintf("%s/json/%s?fields=status,message,lat,lon", l.baseURL, target)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return core.Coordinates{}, fmt.Errorf("%w: %v", core.ErrLocationUnavailable, err)
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		l.logger.Warn("Geolocation request failed", "error", err)
		return core.Coordinates{}, fmt.Errorf("%w: %v", core.ErrLocationUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return core.Coordinates{}, fmt.Errorf("%w: status %d", core.ErrLocationUnavailable, resp.StatusCode)
	}

	var geo geoResponse
	if err := json.NewDecoder(resp.Body).Decode(&geo); err != nil {
		return core.Coordinates{}, fmt.Errorf("%w: %v", core.ErrLocationUnavailable, err)
	}
	if geo.Status != "success" {
		return core.Coordinates{}, fmt.Errorf("%w: %s", core.ErrLocationUnavailable, geo.Message)
	}

	return core.Coordinates{Latitude: geo.Lat, Longitude: geo.Lon}, nil
}
