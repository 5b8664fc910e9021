package backend

import (
	"context"
	"encoding/json"
	"time"
)

// RetrievalClient calls the document question-answering service.
type RetrievalClient struct {
	http jsonClient
}

// NewRetrievalClient creates a client for the service at baseURL.
func NewRetrievalClient(baseURL, token string, timeout time.Duration) *RetrievalClient {
	return &RetrievalClient{http: newJSONClient("retrieval service", baseURL, token, timeout)}
}

// Answer forwards query and returns the service's answer payload as-is.
func (c *RetrievalClient) Answer(ctx context.Context, query string) (json.RawMessage, error) {
	payload, err := c.http.post(ctx, "/answer", map[string]string{"query": query})
	if err != nil {
		return nil, err
	}
	if isEmptyJSON(payload) {
		return nil, ErrEmptyResult
	}
	return payload, nil
}
