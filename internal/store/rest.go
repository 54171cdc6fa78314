package store

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"

	"github.com/sells-group/chartsync/internal/model"
	"github.com/sells-group/chartsync/internal/syncerr"
)

// RESTOption configures a RESTStore.
type RESTOption func(*RESTStore)

// WithSchema selects the Postgres schema exposed through PostgREST.
func WithSchema(schema string) RESTOption {
	return func(s *RESTStore) {
		if schema != "" {
			s.schema = schema
		}
	}
}

// WithTable sets the target table.
func WithTable(table string) RESTOption {
	return func(s *RESTStore) {
		if table != "" {
			s.table = table
		}
	}
}

// WithRequestTimeout sets the per-request timeout.
func WithRequestTimeout(d time.Duration) RESTOption {
	return func(s *RESTStore) {
		if d > 0 {
			s.http.SetTimeout(d)
		}
	}
}

// RESTStore upserts through a Supabase project's PostgREST endpoint using the
// service-role key.
type RESTStore struct {
	http   *resty.Client
	schema string
	table  string
}

// NewREST creates a store for the project at projectURL (https://<ref>.supabase.co).
func NewREST(projectURL, serviceRoleKey string, opts ...RESTOption) *RESTStore {
	s := &RESTStore{
		http: resty.New().
			SetBaseURL(strings.TrimRight(projectURL, "/")+"/rest/v1").
			SetTimeout(60*time.Second).
			SetHeader("apikey", serviceRoleKey).
			SetAuthToken(serviceRoleKey).
			SetHeader("Accept", "application/json"),
		schema: "public",
		table:  "songs",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// postgrestError is the error body PostgREST returns.
type postgrestError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

// Authenticate reads one row to check the key and the table.
func (s *RESTStore) Authenticate(ctx context.Context) error {
	res, err := s.http.R().
		SetContext(ctx).
		SetHeader("Accept-Profile", s.schema).
		SetQueryParams(map[string]string{"select": "title", "limit": "1"}).
		Get("/" + s.table)
	if err != nil {
		return eris.Wrap(err, "rest: authenticate")
	}
	return s.check(res, "authenticate")
}

// Upsert posts batch with merge-duplicates resolution on the natural key.
// PostgREST does not report which rows changed, so the count is the batch size.
func (s *RESTStore) Upsert(ctx context.Context, batch []model.SongRecord) (int64, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	res, err := s.http.R().
		SetContext(ctx).
		SetHeader("Content-Profile", s.schema).
		SetHeader("Content-Type", "application/json").
		SetHeader("Prefer", "resolution=merge-duplicates,return=minimal").
		SetQueryParam("on_conflict", strings.Join(ConflictKeys, ",")).
		SetBody(batch).
		Post("/" + s.table)
	if err != nil {
		return 0, eris.Wrap(err, "rest: upsert")
	}
	if err := s.check(res, "upsert"); err != nil {
		return 0, err
	}
	return int64(len(batch)), nil
}

// Migrate is not available over PostgREST; the table is managed in Supabase.
func (s *RESTStore) Migrate(context.Context) error {
	return syncerr.New(syncerr.Config, "rest: migrate is not supported; create the table in Supabase or use the postgres driver")
}

func (s *RESTStore) Close() error { return nil }

func (s *RESTStore) check(res *resty.Response, op string) error {
	status := res.StatusCode()
	if status >= 200 && status < 300 {
		return nil
	}

	msg := http.StatusText(status)
	var pe postgrestError
	if json.Unmarshal(res.Body(), &pe) == nil && pe.Message != "" {
		msg = pe.Message
		if pe.Code != "" {
			msg = pe.Code + " " + msg
		}
		if pe.Details != "" {
			msg += " (" + pe.Details + ")"
		}
	}

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return syncerr.Errorf(syncerr.Auth, "rest: %s %s: http %d: %s", op, s.table, status, msg)
	default:
		return eris.Errorf("rest: %s %s: http %d: %s", op, s.table, status, msg)
	}
}
