// Package api is a client for the radio-browser station directory.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"radio-tui/model"
)

const (
	defaultTimeout = 15 * time.Second
	maxBodySize    = 32 << 20
)

// ErrDirectory is returned when the directory answers with a non-2xx status
var ErrDirectory = errors.New("station directory error")

// Config configures a Client
type Config struct {
	BaseURL     string
	CountryCode string
	UserAgent   string
	Timeout     time.Duration
}

// Client queries radio-browser for stations in one country
type Client struct {
	logger      *zap.SugaredLogger
	baseURL     string
	countryCode string
	userAgent   string
	client      *http.Client
}

// NewClient creates a directory client
func NewClient(logger *zap.SugaredLogger, cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	return &Client{
		logger:      logger.Named("api"),
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		countryCode: strings.ToUpper(cfg.CountryCode),
		userAgent:   cfg.UserAgent,
		client:      &http.Client{Timeout: cfg.Timeout},
	}
}

// Stations lists working stations registered in the client's country
func (c *Client) Stations(ctx context.Context, limit int) ([]model.Station, error) {
	query := pageQuery(limit)

	stations, err := c.fetch(ctx, "/json/stations/bycountrycodeexact/"+url.PathEscape(c.countryCode), query)
	if err != nil {
		return nil, err
	}

	return c.usable(stations, false), nil
}

// Search finds working stations in the client's country whose name contains
// name
func (c *Client) Search(ctx context.Context, name string, limit int) ([]model.Station, error) {
	query := pageQuery(limit)
	query.Set("name", name)
	if c.countryCode != "" {
		query.Set("countrycode", c.countryCode)
	}

	stations, err := c.fetch(ctx, "/json/stations/search", query)
	if err != nil {
		return nil, err
	}

	return c.usable(stations, true), nil
}

// TopVoted lists the most voted working stations in the client's country
func (c *Client) TopVoted(ctx context.Context, limit int) ([]model.Station, error) {
	stations, err := c.fetch(ctx, "/json/stations/topvote", pageQuery(limit))
	if err != nil {
		return nil, err
	}

	return c.usable(stations, true), nil
}

func pageQuery(limit int) url.Values {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	query.Set("offset", "0")
	query.Set("hidebroken", "true")
	return query
}

func (c *Client) fetch(ctx context.Context, path string, query url.Values) ([]model.Station, error) {
	endpoint := c.baseURL + path + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	c.logger.Debugw("Querying station directory", "url", endpoint)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s", ErrDirectory, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	var stations []model.Station
	if err := json.Unmarshal(body, &stations); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}

	return stations, nil
}

// usable drops stations that have no stream URL, no name or failed their
// last check. When sameCountry is set, stations from other countries are
// dropped too.
func (c *Client) usable(stations []model.Station, sameCountry bool) []model.Station {
	valid := make([]model.Station, 0, len(stations))

	for _, station := range stations {
		if station.StreamURL() == "" || strings.TrimSpace(station.Name) == "" || station.LastCheckOK != 1 {
			continue
		}
		if sameCountry && c.countryCode != "" && !strings.EqualFold(station.CountryCode, c.countryCode) {
			continue
		}
		valid = append(valid, station)
	}

	c.logger.Debugw("Filtered directory results", "received", len(stations), "usable", len(valid))

	return valid
}
