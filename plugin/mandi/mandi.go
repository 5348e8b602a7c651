// Package mandi fetches wholesale market (mandi) price records for Gujarat
// from the data.gov.in daily price resource.
package mandi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/agrisense/plugin/ai/timeout"
	"github.com/hrygo/agrisense/plugin/cache"
)

var (
	// ErrNotConfigured is returned when no API key is set.
	ErrNotConfigured = errors.New("mandi price feed is not configured")
	// ErrUpstream is returned when the price feed fails or answers garbage.
	ErrUpstream = errors.New("mandi upstream failed")
)

const dateLayout = "02/01/2006"

// Config holds the price feed client configuration.
type Config struct {
	// BaseURL is the data.gov.in resource endpoint.
	BaseURL string
	// APIKey is the data.gov.in API key.
	APIKey string
	// State filters every query.
	State string
	// Limit is the number of records requested per query.
	Limit int
	// Timeout is the HTTP timeout for one request.
	Timeout time.Duration
	// CacheTTL is how long a query result is reused.
	CacheTTL time.Duration
	// RecentYears is the preferred record age window.
	RecentYears int
	// FallbackYears is the wider window used when nothing recent exists.
	FallbackYears int
	// MaxRecords caps the selected records.
	MaxRecords int
}

// DefaultConfig returns the default price feed configuration. APIKey is left
// empty and must be supplied.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:       "https://api.data.gov.in/resource/35985678-0d79-46b4-9ed6-6f13308a1d24",
		State:         "Gujarat",
		Limit:         1000,
		Timeout:       timeout.MandiTimeout,
		CacheTTL:      30 * time.Minute,
		RecentYears:   3,
		FallbackYears: 5,
		MaxRecords:    10,
	}
}

// Price is a rupee amount. The feed sends it either as a number or a string.
type Price string

// UnmarshalJSON accepts both JSON numbers and strings.
func (p *Price) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*p = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = Price(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*p = Price(n.String())
	return nil
}

// Record is one arrival price record.
type Record struct {
	State       string `json:"State"`
	District    string `json:"District"`
	Market      string `json:"Market"`
	Commodity   string `json:"Commodity"`
	Variety     string `json:"Variety"`
	Grade       string `json:"Grade,omitempty"`
	ArrivalDate string `json:"Arrival_Date"`
	MinPrice    Price  `json:"Min_Price"`
	MaxPrice    Price  `json:"Max_Price"`
	ModalPrice  Price  `json:"Modal_Price"`
}

// Date parses the arrival date.
func (r Record) Date() (time.Time, bool) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(r.ArrivalDate))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Query selects price records. Both fields hold feed labels and either may
// be empty.
type Query struct {
	District  string
	Commodity string
}

func (q Query) cacheKey() string {
	return "mandi:" + strings.ToLower(q.District) + ":" + strings.ToLower(q.Commodity)
}

type response struct {
	Total   int      `json:"total"`
	Count   int      `json:"count"`
	Records []Record `json:"records"`
}

// PriceSource returns recent price records for a query.
type PriceSource interface {
	Prices(ctx context.Context, q Query) ([]Record, error)
}

// Client is a PriceSource backed by data.gov.in.
type Client struct {
	config     *Config
	httpClient *http.Client
	cache      *cache.Service
	now        func() time.Time
}

// NewClient creates a price feed client. Responses are cached when c is not nil.
func NewClient(config *Config, c *cache.Service) (*Client, error) {
	if config == nil || config.APIKey == "" {
		return nil, ErrNotConfigured
	}
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		cache: c,
		now:   time.Now,
	}, nil
}

// Prices returns the most recent records matching q, newest first.
func (c *Client) Prices(ctx context.Context, q Query) ([]Record, error) {
	load := func(ctx context.Context) ([]byte, error) {
		return c.fetch(ctx, q)
	}
	var (
		body []byte
		err  error
	)
	if c.cache != nil {
		body, err = c.cache.Fetch(ctx, q.cacheKey(), c.config.CacheTTL, load)
	} else {
		body, err = load(ctx)
	}
	if err != nil {
		return nil, err
	}

	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrapf(ErrUpstream, "decode records: %v", err)
	}
	return Select(resp.Records, c.now(), c.config), nil
}

func (c *Client) fetch(ctx context.Context, q Query) ([]byte, error) {
	params := url.Values{}
	params.Set("api-key", c.config.APIKey)
	params.Set("format", "json")
	params.Set("limit", fmt.Sprint(c.config.Limit))
	params.Set("filters[State]", c.config.State)
	if q.District != "" {
		params.Set("filters[District]", q.District)
	}
	if q.Commodity != "" {
		params.Set("filters[Commodity]", q.Commodity)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// The request URL carries the API key; never surface it.
		return nil, errors.Wrap(ErrUpstream, "request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, errors.Wrapf(ErrUpstream, "read body: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrapf(ErrUpstream, "status %d", resp.StatusCode)
	}
	return body, nil
}

// Select keeps records that arrived within cfg.RecentYears of now, newest
// first. When none qualify it widens to cfg.FallbackYears over the first 50
// records, and when the dates are unusable it returns the first five raw
// records.
func Select(records []Record, now time.Time, cfg *Config) []Record {
	if len(records) == 0 {
		return nil
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}

	selected := withinYears(records, now.Year()-cfg.RecentYears)
	if len(selected) == 0 {
		head := records
		if len(head) > 50 {
			head = head[:50]
		}
		selected = withinYears(head, now.Year()-cfg.FallbackYears)
	}
	if len(selected) == 0 {
		n := min(5, len(records))
		return append([]Record(nil), records[:n]...)
	}

	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].date.After(selected[j].date)
	})
	n := min(cfg.MaxRecords, len(selected))
	out := make([]Record, n)
	for i := range out {
		out[i] = selected[i].Record
	}
	return out
}

type dated struct {
	Record
	date time.Time
}

func withinYears(records []Record, minYear int) []dated {
	var out []dated
	for _, r := range records {
		d, ok := r.Date()
		if !ok || d.Year() < minYear {
			continue
		}
		out = append(out, dated{Record: r, date: d})
	}
	return out
}

// Format renders records as the plain-text listing shown to users. At most
// five records are listed in full.
func Format(records []Record, district string) string {
	var b strings.Builder
	if district != "" {
		fmt.Fprintf(&b, "Recent commodity prices in %s, Gujarat:\n\n", district)
	} else {
		b.WriteString("Recent commodity prices in Gujarat:\n\n")
	}

	for i, r := range records {
		if i == 5 {
			break
		}
		fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, orNA(r.Commodity), orNA(r.Variety))
		fmt.Fprintf(&b, "   Market: %s\n", orNA(r.Market))
		fmt.Fprintf(&b, "   Date: %s\n", orNA(r.ArrivalDate))
		fmt.Fprintf(&b, "   Price Range: ₹%s - ₹%s\n", orNA(string(r.MinPrice)), orNA(string(r.MaxPrice)))
		fmt.Fprintf(&b, "   Modal Price: ₹%s\n\n", orNA(string(r.ModalPrice)))
	}
	if len(records) > 5 {
		fmt.Fprintf(&b, "... and %d more items.\n", len(records)-5)
	}
	b.WriteString("\nNote: Prices shown are from the most recent available data.")
	return b.String()
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// Ensure Client implements PriceSource
var _ PriceSource = (*Client)(nil)
