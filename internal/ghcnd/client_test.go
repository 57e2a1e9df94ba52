package ghcnd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("USW00094728", "test-token",
		WithBaseURL(srv.URL),
		WithPageDelay(0),
		WithRetryInterval(time.Millisecond),
	)
}

func TestStationInfo(t *testing.T) {
	var gotToken, gotPath string
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("token")
		gotPath = r.URL.Path
		fmt.Fprint(w, `{"id":"GHCND:USW00094728","name":"NY CITY CENTRAL PARK, NY US","mindate":"1869-01-01","maxdate":"2023-06-15"}`)
	}))

	info, err := c.StationInfo(context.Background())
	if err != nil {
		t.Fatalf("StationInfo: %v", err)
	}
	if gotToken != "test-token" {
		t.Errorf("token header = %q", gotToken)
	}
	if gotPath != "/stations/GHCND:USW00094728" {
		t.Errorf("path = %q", gotPath)
	}
	if info.Name != "NY CITY CENTRAL PARK, NY US" {
		t.Errorf("Name = %q", info.Name)
	}
	if info.FirstYear != 1869 || info.LastYear != 2023 {
		t.Errorf("years = %d-%d, want 1869-2023", info.FirstYear, info.LastYear)
	}
}

func TestStationInfoUnknownStation(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{}`)
	}))

	_, err := c.StationInfo(context.Background())
	if !errors.Is(err, ErrStationNotFound) {
		t.Fatalf("err = %v, want ErrStationNotFound", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("calls = %d, an unknown station must not be retried", n)
	}
}

func TestStationInfoNotFoundStatus(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))

	_, err := c.StationInfo(context.Background())
	if !errors.Is(err, ErrStationNotFound) {
		t.Fatalf("err = %v, want ErrStationNotFound", err)
	}
}

func TestStationInfoRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			http.Error(w, "upstream flake", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"id":"GHCND:USW00094728","name":"TEST","mindate":"1950-01-01","maxdate":"2020-12-31"}`)
	}))

	info, err := c.StationInfo(context.Background())
	if err != nil {
		t.Fatalf("StationInfo: %v", err)
	}
	if info.FirstYear != 1950 {
		t.Errorf("FirstYear = %d", info.FirstYear)
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
}

func TestStationInfoGivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusInternalServerError)
	}))

	_, err := c.StationInfo(context.Background())
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("err = %v, want ErrProviderUnavailable", err)
	}
	if n := calls.Load(); n != maxAttempts {
		t.Errorf("calls = %d, want %d", n, maxAttempts)
	}
}

func TestYearNoData(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))

	obs, err := c.Year(context.Background(), 1923)
	if err != nil {
		t.Fatalf("Year: %v", err)
	}
	if obs != nil {
		t.Errorf("obs = %v, want nil for a year with no data", obs)
	}
}

func TestYearSinglePage(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("startdate") != "2020-01-01" || r.URL.Query().Get("enddate") != "2020-12-31" {
			t.Errorf("date window = %s to %s", r.URL.Query().Get("startdate"), r.URL.Query().Get("enddate"))
		}
		fmt.Fprint(w, `{
			"metadata": {"resultset": {"offset": 1, "count": 2, "limit": 1000}},
			"results": [
				{"date": "2020-01-01T00:00:00", "datatype": "TMAX", "station": "GHCND:USW00094728", "attributes": ",,W,2400", "value": 100},
				{"date": "2020-01-01T00:00:00", "datatype": "TMIN", "station": "GHCND:USW00094728", "attributes": ",,W,2400", "value": 50}
			]
		}`)
	}))

	obs, err := c.Year(context.Background(), 2020)
	if err != nil {
		t.Fatalf("Year: %v", err)
	}
	if len(obs) != 2 {
		t.Fatalf("len(obs) = %d, want 2", len(obs))
	}
	if obs[0].Datatype != "TMAX" || obs[0].Value != 100 {
		t.Errorf("obs[0] = %+v", obs[0])
	}
	if obs[0].Date.Year() != 2020 || obs[0].Date.Month() != time.January {
		t.Errorf("obs[0].Date = %v", obs[0].Date)
	}
	if obs[1].Attributes != ",,W,2400" {
		t.Errorf("obs[1].Attributes = %q", obs[1].Attributes)
	}
}

func TestYearPagination(t *testing.T) {
	// The server reports a page size of 1 and three total records, so
	// the client must walk two follow-up offsets after the first page.
	var offsets []string
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offset := r.URL.Query().Get("offset")
		offsets = append(offsets, offset)
		switch offset {
		case "":
			fmt.Fprint(w, `{
				"metadata": {"resultset": {"offset": 1, "count": 3, "limit": 1}},
				"results": [{"date": "2020-01-01T00:00:00", "datatype": "TMAX", "value": 1}]
			}`)
		case "2":
			fmt.Fprint(w, `{"results": [{"date": "2020-01-02T00:00:00", "datatype": "TMAX", "value": 2}]}`)
		case "3":
			fmt.Fprint(w, `{"results": [{"date": "2020-01-03T00:00:00", "datatype": "TMAX", "value": 3}]}`)
		default:
			t.Errorf("unexpected offset %q", offset)
			http.Error(w, "bad offset", http.StatusBadRequest)
		}
	}))

	obs, err := c.Year(context.Background(), 2020)
	if err != nil {
		t.Fatalf("Year: %v", err)
	}
	if len(obs) != 3 {
		t.Fatalf("len(obs) = %d, want 3", len(obs))
	}
	for i, o := range obs {
		if o.Value != float64(i+1) {
			t.Errorf("obs[%d].Value = %v, want %d (pages must concatenate in order)", i, o.Value, i+1)
		}
	}
	want := []string{"", "2", "3"}
	if len(offsets) != len(want) {
		t.Fatalf("offsets = %v, want %v", offsets, want)
	}
	for i := range want {
		if offsets[i] != want[i] {
			t.Errorf("offsets = %v, want %v", offsets, want)
			break
		}
	}
}

func TestYearExactPageBoundary(t *testing.T) {
	// count == limit: everything fits in the first page and no follow-up
	// request happens.
	var calls atomic.Int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{
			"metadata": {"resultset": {"offset": 1, "count": 1, "limit": 1}},
			"results": [{"date": "2020-01-01T00:00:00", "datatype": "TMAX", "value": 1}]
		}`)
	}))

	obs, err := c.Year(context.Background(), 2020)
	if err != nil {
		t.Fatalf("Year: %v", err)
	}
	if len(obs) != 1 {
		t.Errorf("len(obs) = %d, want 1", len(obs))
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}

func TestYearMalformedRecordDate(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"metadata": {"resultset": {"offset": 1, "count": 1, "limit": 1000}},
			"results": [{"date": "01/01/2020", "datatype": "TMAX", "value": 1}]
		}`)
	}))

	_, err := c.Year(context.Background(), 2020)
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("err = %v, want ErrMalformedResponse", err)
	}
}

func TestYearMissingMetadataRetriedToUnavailable(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"results": [{"date": "2020-01-01T00:00:00", "datatype": "TMAX", "value": 1}]}`)
	}))

	_, err := c.Year(context.Background(), 2020)
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("err = %v, want ErrProviderUnavailable", err)
	}
}

func TestYearContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))

	_, err := c.Year(ctx, 2020)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
