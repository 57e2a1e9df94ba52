package ghcnd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/lox/climatrend/internal/models"
)

const (
	DefaultFTPHost = "ftp.ncei.noaa.gov:21"
	dlyPathFormat  = "/pub/data/ghcn/daily/all/%s.dly"

	// A .dly line is ID(11) YEAR(4) MONTH(2) ELEMENT(4) then 31 day
	// groups of VALUE(5) MFLAG QFLAG SFLAG.
	dlyHeaderLen = 21
	dlyGroupLen  = 8
	dlyLineLen   = dlyHeaderLen + 31*dlyGroupLen

	dlyMissing = "-9999"
)

// elements is the subset of GHCND datatypes the pipeline models; all
// other .dly element rows are skipped during parsing.
var elements = map[string]bool{
	"TMAX": true,
	"TMIN": true,
	"PRCP": true,
	"SNOW": true,
	"SNWD": true,
}

// BulkClient retrieves a station's complete observation history from the
// GHCND daily archive over FTP. The archive is the bulk form of the same
// dataset the HTTP API serves, in the same provider units, so its records
// feed the normalizer unchanged.
type BulkClient struct {
	host      string
	stationID string
}

func NewBulkClient(stationID string) *BulkClient {
	return &BulkClient{host: DefaultFTPHost, stationID: stationID}
}

// FetchAll downloads and parses the station's .dly archive file.
func (b *BulkClient) FetchAll(ctx context.Context) ([]models.Observation, error) {
	conn, err := ftp.Dial(b.host, ftp.DialWithTimeout(30*time.Second), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("ftp dial: %w", err)
	}
	defer conn.Quit()

	if err := conn.Login("anonymous", "anonymous"); err != nil {
		return nil, fmt.Errorf("ftp login: %w", err)
	}

	resp, err := conn.Retr(fmt.Sprintf(dlyPathFormat, b.stationID))
	if err != nil {
		return nil, fmt.Errorf("%w: ftp retr: %v", ErrStationNotFound, err)
	}
	defer resp.Close()

	observations, err := ParseDly(resp)
	if err != nil {
		return nil, fmt.Errorf("parse %s.dly: %w", b.stationID, err)
	}
	return observations, nil
}

// ParseDly decodes the fixed-width GHCND daily format into flat
// observation records, synthesizing the API's combined attributes string
// from the per-day measurement/quality/source flags. Missing cells and
// nonexistent calendar days are skipped.
func ParseDly(r io.Reader) ([]models.Observation, error) {
	var observations []models.Observation

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, dlyLineLen+2), dlyLineLen*2)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if len(line) < dlyLineLen {
			return nil, fmt.Errorf("line %d: length %d, want %d", lineNo, len(line), dlyLineLen)
		}

		element := line[17:21]
		if !elements[element] {
			continue
		}

		year, err := strconv.Atoi(line[11:15])
		if err != nil {
			return nil, fmt.Errorf("line %d: year %q", lineNo, line[11:15])
		}
		month, err := strconv.Atoi(line[15:17])
		if err != nil {
			return nil, fmt.Errorf("line %d: month %q", lineNo, line[15:17])
		}

		for day := 1; day <= 31; day++ {
			start := dlyHeaderLen + (day-1)*dlyGroupLen
			raw := strings.TrimSpace(line[start : start+5])
			if raw == dlyMissing || raw == "" {
				continue
			}

			date := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
			if date.Month() != time.Month(month) {
				// slot for a day the month doesn't have
				continue
			}

			value, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d day %d: value %q", lineNo, day, raw)
			}

			mflag := strings.TrimSpace(line[start+5 : start+6])
			qflag := strings.TrimSpace(line[start+6 : start+7])
			sflag := strings.TrimSpace(line[start+7 : start+8])

			observations = append(observations, models.Observation{
				Date:       date,
				Datatype:   element,
				Value:      value,
				Attributes: fmt.Sprintf("%s,%s,%s,", mflag, qflag, sflag),
			})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	return observations, nil
}

// BulkProvider satisfies the session's provider contract using the FTP
// archive for year data and the HTTP API for station metadata. The
// archive is fetched once on the first Year call and served from memory
// afterwards, so the session's year loop and checkpointing work
// unchanged.
type BulkProvider struct {
	info   *Client
	bulk   *BulkClient
	byYear map[int][]models.Observation
}

func NewBulkProvider(info *Client, bulk *BulkClient) *BulkProvider {
	return &BulkProvider{info: info, bulk: bulk}
}

func (p *BulkProvider) StationInfo(ctx context.Context) (models.StationInfo, error) {
	return p.info.StationInfo(ctx)
}

func (p *BulkProvider) Year(ctx context.Context, year int) ([]models.Observation, error) {
	if p.byYear == nil {
		all, err := p.bulk.FetchAll(ctx)
		if err != nil {
			return nil, err
		}
		p.byYear = make(map[int][]models.Observation)
		for _, obs := range all {
			p.byYear[obs.Date.Year()] = append(p.byYear[obs.Date.Year()], obs)
		}
		for _, obs := range p.byYear {
			sort.SliceStable(obs, func(i, j int) bool { return obs[i].Date.Before(obs[j].Date) })
		}
	}
	return p.byYear[year], nil
}
