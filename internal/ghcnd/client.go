package ghcnd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lox/climatrend/internal/httputil"
	"github.com/lox/climatrend/internal/metrics"
	"github.com/lox/climatrend/internal/models"
)

const (
	DefaultBaseURL = "https://www.ncei.noaa.gov/cdo-web/api/v2"

	// maxAttempts bounds every single request, station metadata and data
	// pages alike. Exceeding it surfaces ErrProviderUnavailable.
	maxAttempts = 5

	pageLimit = 1000

	// NOAA caps CDO tokens at 5 requests per second.
	defaultPageDelay = 200 * time.Millisecond

	dateLayout = "2006-01-02T15:04:05"
)

// Client fetches station metadata and year batches of raw observations
// from the NOAA CDO v2 API. It holds no state between calls; resume and
// persistence live in the station session.
type Client struct {
	baseURL   string
	token     string
	stationID string
	client    *http.Client

	pageDelay     time.Duration
	retryInterval time.Duration
}

type Option func(*Client)

// WithBaseURL points the client at an alternate API root.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithPageDelay overrides the inter-page throttle.
func WithPageDelay(d time.Duration) Option {
	return func(c *Client) { c.pageDelay = d }
}

// WithRetryInterval overrides the initial retry backoff interval.
func WithRetryInterval(d time.Duration) Option {
	return func(c *Client) { c.retryInterval = d }
}

func NewClient(stationID, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:       DefaultBaseURL,
		token:         token,
		stationID:     stationID,
		client:        httputil.NewClient(),
		pageDelay:     defaultPageDelay,
		retryInterval: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type stationResponse struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	MinDate string `json:"mindate"`
	MaxDate string `json:"maxdate"`
}

type dataResponse struct {
	Metadata *struct {
		Resultset struct {
			Offset int `json:"offset"`
			Count  int `json:"count"`
			Limit  int `json:"limit"`
		} `json:"resultset"`
	} `json:"metadata"`
	Results []dataRecord `json:"results"`
}

type dataRecord struct {
	Date       string  `json:"date"`
	Datatype   string  `json:"datatype"`
	Station    string  `json:"station"`
	Attributes string  `json:"attributes"`
	Value      float64 `json:"value"`
}

// StationInfo fetches the station metadata record. An empty body for a
// well-formed 200, or a 404, means the station id is unknown.
func (c *Client) StationInfo(ctx context.Context) (models.StationInfo, error) {
	reqURL := fmt.Sprintf("%s/stations/GHCND:%s", c.baseURL, c.stationID)

	var sr stationResponse
	operation := func() error {
		body, err := c.get(ctx, "stations", reqURL)
		if err != nil {
			return err
		}
		if len(body) == 0 || string(body) == "{}" {
			return backoff.Permanent(fmt.Errorf("%w: %s", ErrStationNotFound, c.stationID))
		}
		if err := json.Unmarshal(body, &sr); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		if len(sr.MinDate) < 4 || len(sr.MaxDate) < 4 {
			return fmt.Errorf("%w: station record missing date range", ErrMalformedResponse)
		}
		return nil
	}

	if err := c.retry(ctx, operation); err != nil {
		return models.StationInfo{}, err
	}

	first, err := strconv.Atoi(sr.MinDate[:4])
	if err != nil {
		return models.StationInfo{}, fmt.Errorf("%w: mindate %q", ErrMalformedResponse, sr.MinDate)
	}
	last, err := strconv.Atoi(sr.MaxDate[:4])
	if err != nil {
		return models.StationInfo{}, fmt.Errorf("%w: maxdate %q", ErrMalformedResponse, sr.MaxDate)
	}

	return models.StationInfo{
		StationID: c.stationID,
		Name:      sr.Name,
		FirstYear: first,
		LastYear:  last,
	}, nil
}

// Year fetches every observation record for one calendar year, following
// result-count pagination. A well-formed empty response means the station
// has no data for that year and yields (nil, nil).
func (c *Client) Year(ctx context.Context, year int) ([]models.Observation, error) {
	first, empty, err := c.fetchPage(ctx, year, 0)
	if err != nil {
		return nil, err
	}
	if empty {
		return nil, nil
	}

	count := first.Metadata.Resultset.Count
	limit := first.Metadata.Resultset.Limit
	records := first.Results

	pages := count / limit
	if count%limit == 0 {
		pages--
	}
	offset := limit + 1

	for page := 0; page < pages; page++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pageDelay):
		}

		next, _, err := c.fetchPage(ctx, year, offset)
		if err != nil {
			return nil, err
		}
		records = append(records, next.Results...)
		offset += limit
	}

	observations := make([]models.Observation, 0, len(records))
	for _, rec := range records {
		date, err := time.Parse(dateLayout, rec.Date)
		if err != nil {
			return nil, fmt.Errorf("%w: record date %q", ErrMalformedResponse, rec.Date)
		}
		observations = append(observations, models.Observation{
			Date:       date,
			Datatype:   rec.Datatype,
			Value:      rec.Value,
			Attributes: rec.Attributes,
		})
	}

	metrics.YearsFetched.Inc()
	metrics.RecordsFetched.Add(float64(len(observations)))
	return observations, nil
}

// fetchPage requests one page of a year's data. The first page (offset 0)
// must carry resultset metadata unless the year is empty; later pages
// skip metadata entirely.
func (c *Client) fetchPage(ctx context.Context, year, offset int) (*dataResponse, bool, error) {
	q := url.Values{}
	q.Set("datasetid", "GHCND")
	q.Set("stationid", "GHCND:"+c.stationID)
	q.Set("startdate", fmt.Sprintf("%d-01-01", year))
	q.Set("enddate", fmt.Sprintf("%d-12-31", year))
	q.Set("limit", strconv.Itoa(pageLimit))
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
		q.Set("includemetadata", "false")
	}
	reqURL := fmt.Sprintf("%s/data?%s", c.baseURL, q.Encode())

	var (
		dr    dataResponse
		empty bool
	)
	operation := func() error {
		dr = dataResponse{}
		empty = false

		body, err := c.get(ctx, "data", reqURL)
		if err != nil {
			return err
		}
		if len(body) == 0 || string(body) == "{}" {
			empty = true
			return nil
		}
		if err := json.Unmarshal(body, &dr); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		if offset == 0 {
			if dr.Metadata == nil {
				return fmt.Errorf("%w: missing resultset metadata", ErrMalformedResponse)
			}
			if dr.Metadata.Resultset.Limit <= 0 {
				return fmt.Errorf("%w: resultset limit %d", ErrMalformedResponse, dr.Metadata.Resultset.Limit)
			}
		}
		return nil
	}

	if err := c.retry(ctx, operation); err != nil {
		return nil, false, err
	}
	return &dr, empty, nil
}

// get issues a single authenticated request and returns the body. Any
// failure is retryable; classification into permanent errors happens in
// the callers' parse steps.
func (c *Client) get(ctx context.Context, endpoint, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("token", c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.APICallsTotal.WithLabelValues(endpoint, "error").Inc()
		return nil, fmt.Errorf("request %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	metrics.APICallsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode == http.StatusNotFound {
		return nil, backoff.Permanent(fmt.Errorf("%w: status 404", ErrStationNotFound))
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("request %s: status %d: %s", endpoint, resp.StatusCode, string(b))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func (c *Client) retry(ctx context.Context, operation backoff.Operation) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryInterval
	bo.MaxElapsedTime = 0

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, maxAttempts-1), ctx))
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStationNotFound) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w (after %d attempts): %v", ErrProviderUnavailable, maxAttempts, err)
}
