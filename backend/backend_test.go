package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRunAnalysisForwardsRequest(t *testing.T) {
	var got AnalysisRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/analysis" || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Write([]byte(`{"mapStats":{"mean":0.42},"layerUrl":"tiles/1"}`))
	}))
	defer srv.Close()

	c := NewAnalysisClient(srv.URL, "secret", time.Second)
	payload, err := c.RunAnalysis(context.Background(), AnalysisRequest{
		FunctionType:      "ndvi_change",
		StartDate1:        "2023-01-01",
		EndDate1:          "2023-03-31",
		StartDate2:        "2024-01-01",
		EndDate2:          "2024-03-31",
		AggregationMethod: "mean",
		LayerName:         "ndvi q1",
		Geometry:          json.RawMessage(`{"type":"Polygon","coordinates":[]}`),
	})
	if err != nil {
		t.Fatalf("RunAnalysis: %v", err)
	}
	if !strings.Contains(string(payload), "layerUrl") {
		t.Errorf("payload not returned as-is: %s", payload)
	}
	if got.StartDate2 != "2024-01-01" || got.EndDate2 != "2024-03-31" {
		t.Errorf("second range not forwarded: %+v", got)
	}
}

func TestRunAnalysisEmptyMapStats(t *testing.T) {
	bodies := []string{`{"mapStats":{}}`, `{"mapStats":null}`, `{"other":1}`, `{"mapStats":[]}`}
	for _, body := range bodies {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, body)
		}))
		_, err := NewAnalysisClient(srv.URL, "", time.Second).RunAnalysis(context.Background(), AnalysisRequest{})
		srv.Close()
		if !errors.Is(err, ErrEmptyResult) {
			t.Errorf("body %s: expected ErrEmptyResult, got %v", body, err)
		}
	}
}

func TestServiceErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "engine unavailable", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewRetrievalClient(srv.URL, "", time.Second).Answer(context.Background(), "what is ndvi")
	var serr *ServiceError
	if !errors.As(err, &serr) {
		t.Fatalf("expected ServiceError, got %v", err)
	}
	if serr.StatusCode != http.StatusBadGateway || !strings.Contains(serr.Error(), "engine unavailable") {
		t.Errorf("unexpected error: %v", serr)
	}
}

func TestServiceTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewRetrievalClient(srv.URL, "", 5*time.Second).Answer(ctx, "slow")
	var serr *ServiceError
	if !errors.As(err, &serr) {
		t.Fatalf("expected ServiceError, got %v", err)
	}
	if !serr.Timeout() {
		t.Errorf("expected timeout classification, got %v", serr)
	}
}

func TestAnswerSendsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if r.URL.Path != "/answer" || body["query"] != "flood risk" {
			t.Errorf("unexpected request %s %v", r.URL.Path, body)
		}
		io.WriteString(w, `{"answer":"see section 2","sources":["a.pdf"]}`)
	}))
	defer srv.Close()

	payload, err := NewRetrievalClient(srv.URL+"/", "", time.Second).Answer(context.Background(), "flood risk")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(payload), "a.pdf") {
		t.Errorf("payload = %s", payload)
	}
}
