package wiki

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/chartsync/internal/syncerr"
)

// Page is the rendered content of a wiki page.
type Page struct {
	Title  string
	PageID int64
	RevID  int64
	HTML   string
}

type parseResult struct {
	Title  string `json:"title"`
	PageID int64  `json:"pageid"`
	RevID  int64  `json:"revid"`
	Text   string `json:"text"`
}

// Parse fetches the parsed HTML of page via action=parse.
func (c *httpClient) Parse(ctx context.Context, page string) (*Page, error) {
	env, err := c.get(ctx, map[string]string{
		"action":    "parse",
		"page":      page,
		"prop":      "text|revid",
		"redirects": "1",
	})
	if err != nil {
		return nil, err
	}

	if len(env.Parse) == 0 {
		return nil, syncerr.Errorf(syncerr.Fetch, "wiki: parse %s: response has no parse payload", page)
	}
	var pr parseResult
	if err := json.Unmarshal(env.Parse, &pr); err != nil {
		return nil, syncerr.E(syncerr.Fetch, eris.Wrapf(err, "wiki: parse %s: decode payload", page))
	}

	return &Page{
		Title:  pr.Title,
		PageID: pr.PageID,
		RevID:  pr.RevID,
		HTML:   pr.Text,
	}, nil
}
