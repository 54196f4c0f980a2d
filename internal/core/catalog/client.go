// Package catalog fetches the course-file catalog from the upstream API.
package catalog

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/markdave123-py/corpora-indexer/internal/config"
	"github.com/markdave123-py/corpora-indexer/internal/core"
	"github.com/markdave123-py/corpora-indexer/internal/logger"
	"github.com/markdave123-py/corpora-indexer/internal/models"
)

const corporaPath = "/compute/corpora"

var _ core.CatalogClient = (*Client)(nil)

type Client struct {
	http *resty.Client
}

// NewClient builds a catalog client authenticated with a bearer token.
// Each poll sends a single request; a failed poll is retried by the next cycle.
func NewClient(cfg *config.Config) *Client {
	c := resty.New().
		SetBaseURL(cfg.CatalogURL).
		SetAuthToken(cfg.CatalogToken).
		SetTimeout(cfg.CatalogTimeout).
		SetHeader("Accept", "application/json").
		SetLogger(restyLogger{})
	return &Client{http: c}
}

// FetchCorpora returns the full catalog snapshot.
func (c *Client) FetchCorpora(ctx context.Context) (*models.Corpora, error) {
	var out models.Corpora
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		ForceContentType("application/json").
		Get(corporaPath)
	if err != nil {
		return nil, fmt.Errorf("fetch corpora: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("fetch corpora: unexpected status %d", resp.StatusCode())
	}
	if out.MoodleFiles == nil {
		out.MoodleFiles = []models.CatalogEntry{}
	}
	return &out, nil
}

// restyLogger routes resty's own messages through the process logger.
type restyLogger struct{}

func (restyLogger) Errorf(format string, v ...interface{}) {
	logger.Error(strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "catalog")
}

func (restyLogger) Warnf(format string, v ...interface{}) {
	logger.Warn(strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "catalog")
}

func (restyLogger) Debugf(format string, v ...interface{}) {
	logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "catalog")
}
