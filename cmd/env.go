package main

import (
	"time"

	"github.com/sells-group/chartsync/internal/config"
	"github.com/sells-group/chartsync/internal/resilience"
	"github.com/sells-group/chartsync/internal/wiki"
)

// newWikiClient builds the api.php client from the wiki section of c.
func newWikiClient(c *config.Config) wiki.Client {
	w := c.Wiki
	opts := []wiki.Option{
		wiki.WithRate(w.RequestsPerSecond),
		wiki.WithMaxLag(w.MaxLag),
		wiki.WithRetry(resilience.FromRetryConfig(
			w.Retry.MaxAttempts, w.Retry.InitialBackoffMs, w.Retry.MaxBackoffMs,
			w.Retry.Multiplier, w.Retry.JitterFraction,
		)),
	}
	if w.UserAgent != "" {
		opts = append(opts, wiki.WithUserAgent(w.UserAgent))
	}
	if w.TimeoutSecs > 0 {
		opts = append(opts, wiki.WithTimeout(time.Duration(w.TimeoutSecs)*time.Second))
	}
	return wiki.NewClient(w.APIURL, opts...)
}
