// Package backend holds the HTTP clients for the remote geospatial
// analysis backend and the document retrieval service.
//
// Information Hiding:
// - Endpoint paths and wire formats hidden
// - Timeouts and error classification hidden behind ServiceError
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxResponseBytes = 16 << 20

// ErrEmptyResult is returned when a service answers successfully but the
// payload carries nothing usable.
var ErrEmptyResult = errors.New("service returned an empty result")

// ServiceError reports a failed call to a remote service: transport
// failure, timeout or non-2xx status.
type ServiceError struct {
	Service    string
	StatusCode int
	Body       string
	Err        error
}

func (e *ServiceError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s request failed: %v", e.Service, e.Err)
	case e.Body != "":
		return fmt.Sprintf("%s returned HTTP %d: %s", e.Service, e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("%s returned HTTP %d", e.Service, e.StatusCode)
	}
}

func (e *ServiceError) Unwrap() error { return e.Err }

// Timeout reports whether the call ran out of time.
func (e *ServiceError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

type jsonClient struct {
	service string
	baseURL string
	client  *http.Client
	token   string
}

func newJSONClient(service, baseURL, token string, timeout time.Duration) jsonClient {
	return jsonClient{
		service: service,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		token:   token,
	}
}

// post sends body as JSON and returns the raw response payload.
func (c jsonClient) post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", c.service, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", c.service, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, &ServiceError{Service: c.service, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &ServiceError{Service: c.service, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ServiceError{Service: c.service, StatusCode: resp.StatusCode, Body: truncate(string(data), 512)}
	}
	if !json.Valid(data) {
		return nil, &ServiceError{Service: c.service, StatusCode: resp.StatusCode, Err: errors.New("response is not valid JSON")}
	}
	return data, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
