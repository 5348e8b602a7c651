// Package weather fetches current conditions and the daily outlook for a
// district from the Open-Meteo forecast API.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/agrisense/plugin/ai/gazetteer"
	"github.com/hrygo/agrisense/plugin/ai/timeout"
	"github.com/hrygo/agrisense/plugin/cache"
)

// ErrUpstream is returned when the forecast API fails or answers garbage.
var ErrUpstream = errors.New("weather upstream failed")

// Config holds the forecast client configuration.
type Config struct {
	// BaseURL is the forecast endpoint.
	BaseURL string
	// Timeout is the HTTP timeout for one request.
	Timeout time.Duration
	// CacheTTL is how long a district forecast is reused.
	CacheTTL time.Duration
	// Timezone the daily series is aligned to.
	Timezone string
	// ForecastDays is the length of the daily series.
	ForecastDays int
}

// DefaultConfig returns the default forecast client configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:      "https://api.open-meteo.com/v1/forecast",
		Timeout:      timeout.WeatherTimeout,
		CacheTTL:     10 * time.Minute,
		Timezone:     "Asia/Kolkata",
		ForecastDays: 7,
	}
}

// Current holds the current conditions.
type Current struct {
	Time                string  `json:"time"`
	Temperature         float64 `json:"temperature_2m"`
	RelativeHumidity    float64 `json:"relative_humidity_2m"`
	ApparentTemperature float64 `json:"apparent_temperature"`
	Precipitation       float64 `json:"precipitation"`
	WeatherCode         int     `json:"weather_code"`
	WindSpeed           float64 `json:"wind_speed_10m"`
}

// Daily holds the daily series, one element per forecast day.
type Daily struct {
	Time                        []string  `json:"time"`
	WeatherCode                 []int     `json:"weather_code"`
	TemperatureMax              []float64 `json:"temperature_2m_max"`
	TemperatureMin              []float64 `json:"temperature_2m_min"`
	PrecipitationSum            []float64 `json:"precipitation_sum"`
	PrecipitationProbabilityMax []float64 `json:"precipitation_probability_max"`
}

// Forecast is the decoded API response.
type Forecast struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timezone  string  `json:"timezone"`
	Current   Current `json:"current"`
	Daily     Daily   `json:"daily"`
}

// Fetcher returns the forecast for a district.
type Fetcher interface {
	Forecast(ctx context.Context, district gazetteer.Entry) (*Forecast, error)
}

// Client is a Fetcher backed by Open-Meteo.
type Client struct {
	config     *Config
	httpClient *http.Client
	cache      *cache.Service
}

// NewClient creates a forecast client. Responses are cached when c is not nil.
func NewClient(config *Config, c *cache.Service) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		cache: c,
	}
}

// Forecast returns the forecast at the district's coordinates.
func (c *Client) Forecast(ctx context.Context, district gazetteer.Entry) (*Forecast, error) {
	if district.Lat == 0 && district.Lon == 0 {
		return nil, errors.Errorf("district %q has no coordinates", district.ID)
	}

	load := func(ctx context.Context) ([]byte, error) {
		return c.fetch(ctx, district.Lat, district.Lon)
	}
	var (
		body []byte
		err  error
	)
	if c.cache != nil {
		body, err = c.cache.Fetch(ctx, "weather:"+district.ID, c.config.CacheTTL, load)
	} else {
		body, err = load(ctx)
	}
	if err != nil {
		return nil, err
	}

	var f Forecast
	if err := json.Unmarshal(body, &f); err != nil {
		return nil, errors.Wrapf(ErrUpstream, "decode forecast: %v", err)
	}
	return &f, nil
}

func (c *Client) fetch(ctx context.Context, lat, lon float64) ([]byte, error) {
	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("current", "temperature_2m,relative_humidity_2m,apparent_temperature,precipitation,weather_code,wind_speed_10m")
	params.Set("daily", "weather_code,temperature_2m_max,temperature_2m_min,precipitation_sum,precipitation_probability_max")
	params.Set("timezone", c.config.Timezone)
	params.Set("forecast_days", strconv.Itoa(c.config.ForecastDays))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(ErrUpstream, "request: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrapf(ErrUpstream, "read body: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrapf(ErrUpstream, "status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	return body, nil
}

// Format renders the forecast as the plain-text block shown to users.
func Format(f *Forecast, district string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Weather in %s, Gujarat:\n", district)
	fmt.Fprintf(&b, "Temperature: %s°C\n", num(f.Current.Temperature))
	fmt.Fprintf(&b, "Feels like: %s°C\n", num(f.Current.ApparentTemperature))
	fmt.Fprintf(&b, "Humidity: %s%%\n", num(f.Current.RelativeHumidity))
	fmt.Fprintf(&b, "Wind Speed: %s km/h\n", num(f.Current.WindSpeed))
	if len(f.Daily.TemperatureMin) > 0 && len(f.Daily.TemperatureMax) > 0 {
		fmt.Fprintf(&b, "Today's Range: %s°C - %s°C\n", num(f.Daily.TemperatureMin[0]), num(f.Daily.TemperatureMax[0]))
	}
	return b.String()
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Ensure Client implements Fetcher
var _ Fetcher = (*Client)(nil)
