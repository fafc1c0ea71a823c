package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"civicetl/internal/records"
	"civicetl/internal/validate"
)

// DefaultPageSize matches the page size the upstream API handles comfortably.
const DefaultPageSize = 50_000

// Query carries the supported Socrata query parameters. Zero values are
// omitted from the request. AsOf is a convenience: when Where is empty it
// builds a created_date equality clause for that logical date.
type Query struct {
	Select string
	Where  string
	Order  string
	Group  string
	Limit  int
	AsOf   time.Time
}

// Fetcher retrieves one dataset as a batch and names the validator that owns
// its rule battery.
type Fetcher interface {
	Fetch(ctx context.Context, q Query) (*records.Batch, error)
	ValidatorName() string
}

// Settings configures a concrete fetcher from the dataset profile.
type Settings struct {
	BaseURL  string // API host, e.g. "data.cityofnewyork.us"
	Dataset  string // dataset id, e.g. "erm2-nwe9"
	AppToken string
	PageSize int
	Client   *Client
}

// Socrata pages through a Socrata resource endpoint and assembles the rows
// into a single in-memory batch.
type Socrata struct {
	settings  Settings
	validator string
}

// NewSocrata builds a Socrata fetcher bound to a validator moniker.
func NewSocrata(s Settings, validatorName string) (*Socrata, error) {
	if s.BaseURL == "" || s.Dataset == "" {
		return nil, fmt.Errorf("fetch: base_url and dataset are required")
	}
	if s.PageSize <= 0 {
		s.PageSize = DefaultPageSize
	}
	if s.Client == nil {
		s.Client = NewClient(ClientConfig{})
	}
	return &Socrata{settings: s, validator: validatorName}, nil
}

func (s *Socrata) ValidatorName() string { return s.validator }

// Fetch retrieves all rows matching the query. An explicit Limit fetches one
// page of at most that many rows; otherwise the client pages with
// $limit/$offset until a short page arrives.
func (s *Socrata) Fetch(ctx context.Context, q Query) (*records.Batch, error) {
	where := q.Where
	if where == "" && !q.AsOf.IsZero() {
		where = fmt.Sprintf("created_date = '%s'", q.AsOf.Format("2006-01-02T00:00:00"))
	}

	var rows []map[string]any
	if q.Limit > 0 {
		page, err := s.page(ctx, q, where, q.Limit, 0)
		if err != nil {
			return nil, err
		}
		rows = page
	} else {
		log.Printf("fetch: paging %s with page_size=%d", s.settings.Dataset, s.settings.PageSize)
		for offset := 0; ; offset += s.settings.PageSize {
			page, err := s.page(ctx, q, where, s.settings.PageSize, offset)
			if err != nil {
				return nil, err
			}
			rows = append(rows, page...)
			if len(page) < s.settings.PageSize {
				break
			}
		}
	}

	b := batchFromRows(rows)
	log.Printf("fetch: retrieved %d rows from %s", b.Len(), s.settings.Dataset)
	return b, nil
}

func (s *Socrata) page(ctx context.Context, q Query, where string, limit, offset int) ([]map[string]any, error) {
	u := url.URL{
		Scheme: "https",
		Host:   s.settings.BaseURL,
		Path:   "/resource/" + s.settings.Dataset + ".json",
	}
	vals := url.Values{}
	vals.Set("$limit", strconv.Itoa(limit))
	if offset > 0 {
		vals.Set("$offset", strconv.Itoa(offset))
	}
	if where != "" {
		vals.Set("$where", where)
	}
	if q.Select != "" {
		vals.Set("$select", q.Select)
	}
	if q.Order != "" {
		vals.Set("$order", q.Order)
	}
	if q.Group != "" {
		vals.Set("$group", q.Group)
	}
	u.RawQuery = vals.Encode()

	headers := http.Header{}
	if s.settings.AppToken != "" {
		headers.Set("X-App-Token", s.settings.AppToken)
	}

	resp, err := s.settings.Client.Get(ctx, u.String(), headers)
	if err != nil {
		return nil, fmt.Errorf("fetch: %s offset=%d: %w", s.settings.Dataset, offset, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch: %s offset=%d: status %s", s.settings.Dataset, offset, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch: read body: %w", err)
	}
	var page []map[string]any
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("fetch: decode page offset=%d: %w", offset, err)
	}
	return page, nil
}

// batchFromRows builds a batch whose column order is the sorted union of all
// row keys, so repeated fetches of the same content are column-stable.
func batchFromRows(rows []map[string]any) *records.Batch {
	colSet := map[string]struct{}{}
	for _, r := range rows {
		for k := range r {
			colSet[k] = struct{}{}
		}
	}
	cols := make([]string, 0, len(colSet))
	for c := range colSet {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	b := &records.Batch{Columns: cols, Rows: make([]records.Record, len(rows))}
	for i, r := range rows {
		b.Rows[i] = records.Record(r)
	}
	return b
}

// Fetcher monikers accepted by FromName.
const NameNYCOpenData = "FetcherNYCOpenData"

// FromName resolves a fetcher implementation by moniker, mirroring the
// validator registry. Unknown names fail fast.
func FromName(name string, s Settings) (Fetcher, error) {
	switch name {
	case NameNYCOpenData:
		return NewSocrata(s, validate.NameNYC311)
	default:
		return nil, fmt.Errorf("fetch: fetcher %q is not implemented", name)
	}
}
