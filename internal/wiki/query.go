package wiki

import (
	"context"
	"encoding/json"
	"maps"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/chartsync/internal/syncerr"
)

// maxContinuations bounds QueryAll against a server that never stops continuing.
const maxContinuations = 500

// QueryAll follows "continue" tokens until the server omits them.
func (c *httpClient) QueryAll(ctx context.Context, params map[string]string, fn func(query json.RawMessage) error) error {
	base := make(map[string]string, len(params)+1)
	maps.Copy(base, params)
	base["action"] = "query"

	var cont map[string]string
	for range maxContinuations {
		q := maps.Clone(base)
		maps.Copy(q, cont)

		env, err := c.get(ctx, q)
		if err != nil {
			return err
		}
		if len(env.Query) > 0 {
			if err := fn(env.Query); err != nil {
				return err
			}
		}
		if len(env.Continue) == 0 {
			return nil
		}
		if maps.Equal(env.Continue, cont) {
			return syncerr.Errorf(syncerr.Fetch, "wiki: query: continuation did not advance (%v)", env.Continue)
		}
		cont = env.Continue
	}
	return syncerr.Errorf(syncerr.Fetch, "wiki: query: more than %d continuations", maxContinuations)
}

// PageInfo describes the current state of a page.
type PageInfo struct {
	Title        string
	PageID       int64
	Missing      bool
	LastRevID    int64
	Touched      time.Time
	RedirectFrom string
}

type infoQuery struct {
	Redirects []struct {
		From string `json:"from"`
		To   string `json:"to"`
	} `json:"redirects"`
	Pages []struct {
		Title     string    `json:"title"`
		PageID    int64     `json:"pageid"`
		Missing   bool      `json:"missing"`
		Invalid   bool      `json:"invalid"`
		LastRevID int64     `json:"lastrevid"`
		Touched   time.Time `json:"touched"`
	} `json:"pages"`
}

// PageInfo looks up titles via prop=info, resolving redirects.
func (c *httpClient) PageInfo(ctx context.Context, titles ...string) ([]PageInfo, error) {
	if len(titles) == 0 {
		return nil, nil
	}

	var out []PageInfo
	err := c.QueryAll(ctx, map[string]string{
		"prop":      "info",
		"titles":    strings.Join(titles, "|"),
		"redirects": "1",
	}, func(raw json.RawMessage) error {
		var q infoQuery
		if err := json.Unmarshal(raw, &q); err != nil {
			return syncerr.E(syncerr.Fetch, eris.Wrap(err, "wiki: query: decode info"))
		}
		redirectedFrom := make(map[string]string, len(q.Redirects))
		for _, r := range q.Redirects {
			redirectedFrom[r.To] = r.From
		}
		for _, p := range q.Pages {
			out = append(out, PageInfo{
				Title:        p.Title,
				PageID:       p.PageID,
				Missing:      p.Missing || p.Invalid,
				LastRevID:    p.LastRevID,
				Touched:      p.Touched,
				RedirectFrom: redirectedFrom[p.Title],
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
