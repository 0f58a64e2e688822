package workers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/harperlabs/concierge/internal/runner"
	"github.com/harperlabs/concierge/pkg/models"
)

// scraperEndpoint is the search endpoint for the scraping service.
const scraperEndpoint = "https://api.scraperapi.com/structured/google/search"

// Prospects searches the web for business prospects through a scraping
// service. Its availability is decided once at registration: without an
// API key the type is registered unavailable and this worker is never
// constructed.
type Prospects struct {
	apiKey string
	client *http.Client
}

// NewProspects creates the prospects worker. apiKey must be non-empty.
func NewProspects(apiKey string) *Prospects {
	return &Prospects{
		apiKey: apiKey,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Run performs one prospect search. The search is a pure read, so
// retrying the whole body is safe.
func (w *Prospects) Run(ctx context.Context, task *models.Task, report runner.ProgressFunc) models.Outcome {
	query := task.InputParameters["query"]
	if query == "" {
		return models.Failuref("prospects task %s has no query", task.ID)
	}

	report(10, "searching")

	params := url.Values{}
	params.Set("api_key", w.apiKey)
	params.Set("query", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, scraperEndpoint+"?"+params.Encode(), nil)
	if err != nil {
		return models.Failuref("build search request: %v", err)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return models.Failuref("prospect search %q: %v", query, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return models.Failuref("read search response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return models.Failuref("prospect search %q: status %d", query, resp.StatusCode)
	}

	report(60, "collecting results")

	results := gjson.GetBytes(body, "organic_results")
	var lines []string
	results.ForEach(func(_, item gjson.Result) bool {
		title := item.Get("title").String()
		link := item.Get("link").String()
		if title != "" && link != "" {
			lines = append(lines, fmt.Sprintf("%s (%s)", title, link))
		}
		return len(lines) < 10
	})

	if len(lines) == 0 {
		return models.Failuref("prospect search %q returned no results", query)
	}

	report(100, "done")

	return models.Success(map[string]string{
		"query":     query,
		"count":     fmt.Sprintf("%d", len(lines)),
		"prospects": strings.Join(lines, "\n"),
	})
}

var _ runner.Worker = (*Prospects)(nil)
