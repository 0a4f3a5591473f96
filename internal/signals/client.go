// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

package signals

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/stallcast/internal/models"
)

// maxErrorBodySize limits how much of an error response is kept for diagnostics.
const maxErrorBodySize = 4 * 1024

// maxResponseSize bounds a provider response.
const maxResponseSize = 1 << 20

// ClientConfig configures an HTTP provider client.
type ClientConfig struct {
	BaseURL            string
	APIKey             string
	RateLimitPerSecond float64
	RateLimitBurst     int
	BreakerMaxFailures uint32
	BreakerTimeout     time.Duration
	HTTPClient         *http.Client
}

// httpProvider is the shared transport for the weather and event clients: a
// rate-limited GET guarded by a circuit breaker.
type httpProvider struct {
	base    *url.URL
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
	breaker *Breaker
}

func newHTTPProvider(name string, cfg ClientConfig) (*httpProvider, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%s: invalid base URL %q", name, cfg.BaseURL)
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	limit := rate.Inf
	if cfg.RateLimitPerSecond > 0 {
		limit = rate.Limit(cfg.RateLimitPerSecond)
	}
	burst := max(cfg.RateLimitBurst, 1)
	return &httpProvider{
		base:    base,
		apiKey:  cfg.APIKey,
		client:  client,
		limiter: rate.NewLimiter(limit, burst),
		breaker: NewBreaker(name, cfg.BreakerMaxFailures, cfg.BreakerTimeout),
	}, nil
}

// get performs GET base+path?params and decodes the JSON body into dst.
func (p *httpProvider) get(ctx context.Context, path string, params url.Values, dst any) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	u := *p.base
	u.Path += path
	u.RawQuery = params.Encode()

	body, err := p.breaker.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if p.apiKey != "" {
			req.Header.Set("X-API-Key", p.apiKey)
		}

		resp, err := p.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request %s: %w", path, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
			return nil, fmt.Errorf("%s returned status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(snippet)))
		}
		return io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func locationParams(lat, lon float64, date time.Time) url.Values {
	return url.Values{
		"lat":  {strconv.FormatFloat(lat, 'f', 5, 64)},
		"lon":  {strconv.FormatFloat(lon, 'f', 5, 64)},
		"date": {models.Day(date).Format(models.DateLayout)},
	}
}

// WeatherClient calls a forecast service at GET {base}/forecast?lat=&lon=&date=.
type WeatherClient struct {
	http *httpProvider
}

// NewWeatherClient creates a forecast client.
func NewWeatherClient(cfg ClientConfig) (*WeatherClient, error) {
	p, err := newHTTPProvider("weather-api", cfg)
	if err != nil {
		return nil, err
	}
	return &WeatherClient{http: p}, nil
}

type forecastResponse struct {
	TemperatureC      *float64 `json:"temperature_c"`
	PrecipitationProb *float64 `json:"precipitation_prob"`
	Condition         string   `json:"condition"`
}

// Forecast implements WeatherProvider.
func (c *WeatherClient) Forecast(ctx context.Context, lat, lon float64, date time.Time) (*models.WeatherSignal, error) {
	var resp forecastResponse
	if err := c.http.get(ctx, "/forecast", locationParams(lat, lon, date), &resp); err != nil {
		return nil, err
	}
	if resp.TemperatureC == nil || resp.PrecipitationProb == nil {
		return nil, fmt.Errorf("forecast response missing fields")
	}
	precip := *resp.PrecipitationProb
	if precip > 1 {
		precip /= 100 // some providers report a percentage
	}
	return &models.WeatherSignal{
		TemperatureC:      *resp.TemperatureC,
		PrecipitationProb: min(max(precip, 0), 1),
		Condition:         models.NormalizeCondition(strings.ToLower(resp.Condition)),
		FetchedAt:         time.Now().UTC(),
	}, nil
}

// Breaker exposes the client's circuit breaker for health reporting.
func (c *WeatherClient) Breaker() *Breaker { return c.http.breaker }

// EventClient calls an event service at GET {base}/events?lat=&lon=&date=&radius_km=.
type EventClient struct {
	http *httpProvider
}

// NewEventClient creates an event detector client.
func NewEventClient(cfg ClientConfig) (*EventClient, error) {
	p, err := newHTTPProvider("events-api", cfg)
	if err != nil {
		return nil, err
	}
	return &EventClient{http: p}, nil
}

type eventsResponse struct {
	Events []struct {
		Name               string  `json:"name"`
		Latitude           float64 `json:"latitude"`
		Longitude          float64 `json:"longitude"`
		Date               string  `json:"date"`
		ExpectedAttendance int     `json:"expected_attendance"`
		DistanceKm         float64 `json:"distance_km"`
	} `json:"events"`
}

// EventsNear implements EventDetector.
func (c *EventClient) EventsNear(ctx context.Context, lat, lon float64, date time.Time, radiusKm float64) ([]models.EventSignal, error) {
	params := locationParams(lat, lon, date)
	params.Set("radius_km", strconv.FormatFloat(radiusKm, 'f', -1, 64))

	var resp eventsResponse
	if err := c.http.get(ctx, "/events", params, &resp); err != nil {
		return nil, err
	}

	out := make([]models.EventSignal, 0, len(resp.Events))
	for _, e := range resp.Events {
		d, err := models.ParseDate(e.Date)
		if err != nil {
			d = models.Day(date)
		}
		if e.DistanceKm > radiusKm {
			continue
		}
		out = append(out, models.EventSignal{
			Name:               e.Name,
			Latitude:           e.Latitude,
			Longitude:          e.Longitude,
			Date:               d,
			ExpectedAttendance: max(e.ExpectedAttendance, 0),
			DistanceKm:         e.DistanceKm,
		})
	}
	return out, nil
}

// Breaker exposes the client's circuit breaker for health reporting.
func (c *EventClient) Breaker() *Breaker { return c.http.breaker }
