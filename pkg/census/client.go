package census

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/acs-cli/internal/model"
)

// Options configures the HTTP client.
type Options struct {
	BaseURL    string // defaults to https://api.census.gov/data
	APIKey     string
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	Boundaries BoundaryProvider
}

// HTTPClient implements Client against the Census data API with per-host
// rate limiting and bounded retries.
type HTTPClient struct {
	client  *http.Client
	opts    Options
	limiter *rate.Limiter
}

// NewHTTPClient creates a client with the given options.
func NewHTTPClient(opts Options) *HTTPClient {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.census.gov/data"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "acs-cli/1.0"
	}
	return &HTTPClient{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:    opts,
		limiter: rate.NewLimiter(10, 10),
	}
}

// FetchCatalog downloads the variable catalog for (year, dataset) from the
// dataset's variables.json document.
func (c *HTTPClient) FetchCatalog(ctx context.Context, year int, dataset string) ([]model.CatalogEntry, error) {
	u := fmt.Sprintf("%s/%d/%s/variables.json", c.opts.BaseURL, year, dataset)

	body, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}

	var doc struct {
		Variables map[string]struct {
			Label   string `json:"label"`
			Concept string `json:"concept"`
		} `json:"variables"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, model.NewFetchError(u, eris.Wrap(err, "census: parse variables.json"))
	}

	entries := make([]model.CatalogEntry, 0, len(doc.Variables))
	for code, v := range doc.Variables {
		entries = append(entries, model.CatalogEntry{
			Code:    code,
			Concept: v.Concept,
			Label:   v.Label,
			Year:    year,
			Dataset: dataset,
		})
	}

	zap.L().Debug("census: catalog fetched",
		zap.Int("year", year),
		zap.String("dataset", dataset),
		zap.Int("entries", len(entries)),
	)
	return entries, nil
}

// FetchObservations queries the data API for the requested estimate codes
// plus their paired margin-of-error columns and melts the row-array response
// into long-form observations, one per (geography, variable).
func (c *HTTPClient) FetchObservations(ctx context.Context, q Query) ([]model.Observation, error) {
	if len(q.VariableCodes) == 0 {
		return nil, model.NewConfigurationError("variables", eris.New("census: no variable codes requested"))
	}
	if q.GeographyFor == "" {
		return nil, model.NewConfigurationError("geography", eris.New("census: no for clause"))
	}

	getCols := make([]string, 0, 2*len(q.VariableCodes))
	for _, code := range q.VariableCodes {
		getCols = append(getCols, code)
		if m := moeCode(code); m != "" {
			getCols = append(getCols, m)
		}
	}

	params := url.Values{}
	params.Set("get", strings.Join(getCols, ","))
	params.Set("for", q.GeographyFor)
	if q.GeographyIn != "" {
		params.Set("in", q.GeographyIn)
	}
	if c.opts.APIKey != "" {
		params.Set("key", c.opts.APIKey)
	}

	u := fmt.Sprintf("%s/%d/%s?%s", c.opts.BaseURL, q.Year, q.Dataset, params.Encode())

	body, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}

	var rows [][]string
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, model.NewFetchError(u, eris.Wrap(err, "census: parse row array"))
	}
	if len(rows) < 1 {
		return nil, model.NewFetchError(u, eris.New("census: empty response"))
	}

	return c.melt(rows, q)
}

// melt converts the API's [[header],[row]...] table into long observations.
// Columns past the requested get list are geography components; their values
// joined in order form the geography id (e.g. state+county+tract = GEOID).
func (c *HTTPClient) melt(rows [][]string, q Query) ([]model.Observation, error) {
	header := rows[0]
	colIdx := make(map[string]int, len(header))
	for i, name := range header {
		colIdx[name] = i
	}

	estIdx := make([]int, len(q.VariableCodes))
	moeIdx := make([]int, len(q.VariableCodes))
	requested := make(map[int]bool)
	for i, code := range q.VariableCodes {
		idx, ok := colIdx[code]
		if !ok {
			return nil, model.NewFetchError(q.Dataset, eris.Errorf("census: response missing column %s", code))
		}
		estIdx[i] = idx
		requested[idx] = true

		moeIdx[i] = -1
		if m := moeCode(code); m != "" {
			if idx, ok := colIdx[m]; ok {
				moeIdx[i] = idx
				requested[idx] = true
			}
		}
	}

	var geoIdx []int
	for i := range header {
		if !requested[i] {
			geoIdx = append(geoIdx, i)
		}
	}
	if len(geoIdx) == 0 {
		return nil, model.NewFetchError(q.Dataset, eris.New("census: response has no geography columns"))
	}

	obs := make([]model.Observation, 0, (len(rows)-1)*len(q.VariableCodes))
	for _, row := range rows[1:] {
		if len(row) != len(header) {
			return nil, model.NewFetchError(q.Dataset, eris.Errorf("census: ragged row (%d columns, want %d)", len(row), len(header)))
		}

		var geoParts []string
		for _, gi := range geoIdx {
			geoParts = append(geoParts, row[gi])
		}
		geoID := strings.Join(geoParts, "")

		var geometry geom.T
		if q.IncludeGeometry && c.opts.Boundaries != nil {
			geometry = c.opts.Boundaries.Boundary(geoID)
		}

		for i, code := range q.VariableCodes {
			est, err := strconv.ParseFloat(row[estIdx[i]], 64)
			if err != nil {
				return nil, model.NewFetchError(q.Dataset,
					eris.Errorf("census: geography %s variable %s: unparsable estimate %q", geoID, code, row[estIdx[i]]))
			}

			o := model.Observation{
				GeographyID:  geoID,
				VariableCode: code,
				Estimate:     est,
			}
			if moeIdx[i] >= 0 {
				// MOE sentinels (-555555555 etc.) and nulls degrade to 0;
				// the margin is carried, not computed on.
				if moe, err := strconv.ParseFloat(row[moeIdx[i]], 64); err == nil && moe >= 0 {
					o.MarginOfError = moe
				}
			}
			if i == 0 {
				o.Geometry = geometry
			}
			obs = append(obs, o)
		}
	}

	return obs, nil
}

// moeCode returns the margin-of-error column for an estimate code, or ""
// when the code has no E/M pairing.
func moeCode(code string) string {
	if strings.HasSuffix(code, "E") {
		return code[:len(code)-1] + "M"
	}
	return ""
}

// get performs a rate-limited GET with bounded retries. 429 and 5xx are
// retried with exponential backoff and jitter; other failures surface
// immediately as FetchError.
func (c *HTTPClient) get(ctx context.Context, rawURL string) ([]byte, error) {
	var lastErr error
	for attempt := range c.opts.MaxRetries {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, model.NewFetchError(rawURL, eris.Wrap(err, "census: rate limiter wait"))
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, model.NewFetchError(rawURL, eris.Wrap(err, "census: create request"))
		}
		req.Header.Set("User-Agent", c.opts.UserAgent)

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			zap.L().Warn("census: request failed, retrying",
				zap.String("url", rawURL),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			c.backoff(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			_ = resp.Body.Close()
			lastErr = eris.Errorf("census: http %d from %s", resp.StatusCode, rawURL)
			zap.L().Warn("census: retryable status",
				zap.String("url", rawURL),
				zap.Int("status", resp.StatusCode),
				zap.Int("attempt", attempt+1),
			)
			c.backoff(ctx, attempt)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			_ = resp.Body.Close()
			return nil, model.NewFetchError(rawURL,
				eris.Errorf("census: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
		}

		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return nil, model.NewFetchError(rawURL, eris.Wrap(err, "census: read response"))
		}
		return body, nil
	}

	return nil, model.NewFetchError(rawURL, eris.Wrap(lastErr, "census: all retries exhausted"))
}

func (c *HTTPClient) backoff(ctx context.Context, attempt int) {
	base := time.Second
	maxBackoff := 30 * time.Second
	d := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	if d > maxBackoff {
		d = maxBackoff
	}
	d += time.Duration(rand.Int64N(int64(d) / 2))

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
