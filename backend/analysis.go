package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"time"
)

// AnalysisRequest is the payload sent to the analysis backend. The second
// date range is forwarded untouched when present; the backend decides
// which function types need it.
type AnalysisRequest struct {
	FunctionType      string          `json:"functionType"`
	StartDate1        string          `json:"startDate1"`
	EndDate1          string          `json:"endDate1"`
	StartDate2        string          `json:"startDate2,omitempty"`
	EndDate2          string          `json:"endDate2,omitempty"`
	AggregationMethod string          `json:"aggregationMethod"`
	LayerName         string          `json:"layerName"`
	Geometry          json.RawMessage `json:"geometry"`
}

// AnalysisClient calls the geospatial analysis backend.
type AnalysisClient struct {
	http jsonClient
}

// NewAnalysisClient creates a client for the backend at baseURL.
func NewAnalysisClient(baseURL, token string, timeout time.Duration) *AnalysisClient {
	return &AnalysisClient{http: newJSONClient("analysis backend", baseURL, token, timeout)}
}

// RunAnalysis submits one analysis and returns the backend payload. A
// payload whose mapStats is missing or empty yields ErrEmptyResult.
func (c *AnalysisClient) RunAnalysis(ctx context.Context, req AnalysisRequest) (json.RawMessage, error) {
	payload, err := c.http.post(ctx, "/analysis", req)
	if err != nil {
		return nil, err
	}

	var body struct {
		MapStats json.RawMessage `json:"mapStats"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, &ServiceError{Service: c.http.service, StatusCode: 200, Err: err}
	}
	if isEmptyJSON(body.MapStats) {
		return nil, ErrEmptyResult
	}
	return payload, nil
}

func isEmptyJSON(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	switch string(raw) {
	case "", "null", "{}", "[]", `""`:
		return true
	}
	var m map[string]json.RawMessage
	if json.Unmarshal(raw, &m) == nil {
		return len(m) == 0
	}
	var a []json.RawMessage
	if json.Unmarshal(raw, &a) == nil {
		return len(a) == 0
	}
	return false
}
