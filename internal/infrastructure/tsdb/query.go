package tsdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/nerrad567/gray-logic-influx/internal/series"
)

// maxResponseSize caps query response bodies.
const maxResponseSize = 10 << 20 // 10 MB

// promResponse is the subset of the Prometheus query API envelope we read.
type promResponse struct {
	Status    string `json:"status"`
	ErrorType string `json:"errorType"`
	Error     string `json:"error"`
	Data      struct {
		ResultType string          `json:"resultType"`
		Result     json.RawMessage `json:"result"`
	} `json:"data"`
}

// QueryValue runs a PromQL instant query and returns its single value.
// Scalar results are used directly; for vectors the first sample wins.
func (c *Client) QueryValue(ctx context.Context, query string) (float64, error) {
	if c.closed.Load() {
		return 0, ErrClosed
	}
	if strings.TrimSpace(query) == "" {
		return 0, fmt.Errorf("%w: query is required", ErrQueryFailed)
	}

	endpoint := c.url + "/api/v1/query?" + url.Values{"query": {query}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: creating request: %w", ErrQueryFailed, err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: executing query: %w", ErrQueryFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return 0, fmt.Errorf("%w: reading response: %w", ErrQueryFailed, err)
	}

	var pr promResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return 0, fmt.Errorf("%w: HTTP %d: decoding response: %w", ErrQueryFailed, resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || pr.Status != "success" {
		return 0, fmt.Errorf("%w: HTTP %d: %s: %s", ErrQueryFailed, resp.StatusCode, pr.ErrorType, pr.Error)
	}

	return scalarFromResult(pr.Data.ResultType, pr.Data.Result)
}

// scalarFromResult extracts one value from a Prometheus result payload.
func scalarFromResult(resultType string, raw json.RawMessage) (float64, error) {
	var sample []any

	switch resultType {
	case "scalar":
		if err := json.Unmarshal(raw, &sample); err != nil {
			return 0, fmt.Errorf("%w: decoding scalar: %w", ErrQueryFailed, err)
		}
	case "vector":
		var vec []struct {
			Value []any `json:"value"`
		}
		if err := json.Unmarshal(raw, &vec); err != nil {
			return 0, fmt.Errorf("%w: decoding vector: %w", ErrQueryFailed, err)
		}
		if len(vec) == 0 {
			return 0, series.ErrNoData
		}
		sample = vec[0].Value
	default:
		return 0, fmt.Errorf("%w: unsupported result type %q", ErrQueryFailed, resultType)
	}

	// A sample is [unix_seconds, "value"].
	if len(sample) != 2 {
		return 0, series.ErrNoData
	}
	return series.ToFloat(sample[1])
}
