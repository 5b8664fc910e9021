package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"go.uber.org/goleak"

	"github.com/richinex/geoassist/backend"
	"github.com/richinex/geoassist/llm"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

const smallRegion = `{"type":"Polygon","coordinates":[[[0,0],[0.01,0],[0.01,0.01],[0,0.01],[0,0]]]}`
const largeRegion = `{"type":"Polygon","coordinates":[[[0,0],[0.2,0],[0.2,0.2],[0,0.2],[0,0]]]}`

type fakeBackend struct {
	calls   int
	last    backend.AnalysisRequest
	payload json.RawMessage
	err     error
}

func (f *fakeBackend) RunAnalysis(_ context.Context, req backend.AnalysisRequest) (json.RawMessage, error) {
	f.calls++
	f.last = req
	return f.payload, f.err
}

type fakeAnswerer struct {
	query string
}

func (f *fakeAnswerer) Answer(_ context.Context, query string) (json.RawMessage, error) {
	f.query = query
	return json.RawMessage(`{"answer":"42"}`), nil
}

// recordingProvider captures the requests it receives.
type recordingProvider struct {
	requests []llm.Request
	reply    string
}

func (p *recordingProvider) Name() string  { return "recording" }
func (p *recordingProvider) Model() string { return "test" }

func (p *recordingProvider) Chat(_ context.Context, req llm.Request) (llm.LLMResponse, error) {
	p.requests = append(p.requests, req)
	return llm.LLMResponse{Content: p.reply}, nil
}

func (p *recordingProvider) StreamChat(ctx context.Context, req llm.Request, _ chan<- string) (llm.LLMResponse, error) {
	return p.Chat(ctx, req)
}

const validAnalysisArgs = `{"functionType":"ndvi","startDate1":"2023-01-01","endDate1":"2023-06-30","layerName":"ndvi h1"}`

func newTestDispatcher(t *testing.T, be *fakeBackend, provider *recordingProvider) *Dispatcher {
	t.Helper()
	registry, err := WithDefaults(Services{
		Analysis:    be,
		Documents:   &fakeAnswerer{},
		Completer:   llm.NewClient(provider),
		Instruction: "SYSTEM INSTRUCTION",
	})
	if err != nil {
		t.Fatalf("WithDefaults: %v", err)
	}
	return NewDispatcher(registry, 0)
}

func decodeResult(t *testing.T, inv Invocation) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal([]byte(inv.Result.Content()), &out); err != nil {
		t.Fatalf("tool content is not JSON: %v", err)
	}
	return out
}

func TestRegistryDefinitions(t *testing.T) {
	d := newTestDispatcher(t, &fakeBackend{}, &recordingProvider{})
	defs := d.Registry().Definitions()
	want := []string{AnswerFromDocumentsName, DraftReportName, ListLayerNamesName, RunAnalysisName}
	if len(defs) != len(want) {
		t.Fatalf("got %d definitions", len(defs))
	}
	for i, def := range defs {
		if def.Name != want[i] {
			t.Errorf("definition %d = %s, want %s", i, def.Name, want[i])
		}
		if def.Parameters["type"] != "object" {
			t.Errorf("%s schema type = %v", def.Name, def.Parameters["type"])
		}
	}
	required := defs[3].Parameters["required"].([]string)
	if strings.Join(required, ",") != "endDate1,functionType,layerName,startDate1" {
		t.Errorf("RunAnalysis required = %v", required)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(NewListLayerNamesTool()); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(NewListLayerNamesTool()); err == nil {
		t.Error("expected duplicate registration to fail")
	}
}

func TestDispatchUnknownTool(t *testing.T) {
	d := newTestDispatcher(t, &fakeBackend{}, &recordingProvider{})
	inv := d.Dispatch(context.Background(), TurnContext{}, llm.ToolCall{ID: "1", Name: "DeleteEverything", Arguments: json.RawMessage(`{}`)})
	if inv.ValidationErr == nil || CodeOf(inv.Result.Error) != CodeUnknownTool {
		t.Errorf("expected UnknownTool, got %v", inv.Result.Error)
	}
}

func TestRunAnalysisArgumentValidation(t *testing.T) {
	tests := []struct {
		name    string
		args    string
		wantErr bool
	}{
		{"valid", validAnalysisArgs, false},
		{"with second range", `{"functionType":"ndvi_change","startDate1":"2022-01-01","endDate1":"2022-06-30","startDate2":"2023-01-01","endDate2":"2023-06-30","layerName":"x"}`, false},
		{"missing layer", `{"functionType":"ndvi","startDate1":"2023-01-01","endDate1":"2023-06-30"}`, true},
		{"bad date", `{"functionType":"ndvi","startDate1":"01/01/2023","endDate1":"2023-06-30","layerName":"x"}`, true},
		{"end before start", `{"functionType":"ndvi","startDate1":"2023-06-30","endDate1":"2023-01-01","layerName":"x"}`, true},
		{"half second range", `{"functionType":"ndvi","startDate1":"2023-01-01","endDate1":"2023-06-30","startDate2":"2024-01-01","layerName":"x"}`, true},
		{"bad aggregation", `{"functionType":"ndvi","startDate1":"2023-01-01","endDate1":"2023-06-30","aggregationMethod":"mode","layerName":"x"}`, true},
		{"unknown field", `{"functionType":"ndvi","startDate1":"2023-01-01","endDate1":"2023-06-30","layerName":"x","color":"red"}`, true},
		{"not an object", `[1,2]`, true},
	}

	tool := NewRunAnalysisTool(&fakeBackend{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tool.Bind(json.RawMessage(tt.args))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Bind() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && CodeOf(err) != CodeInvalidArguments {
				t.Errorf("code = %s", CodeOf(err))
			}
		})
	}
}

func TestRunAnalysisRegionChecks(t *testing.T) {
	tests := []struct {
		name   string
		region string
		want   ErrorCode
	}{
		{"missing region", ``, CodeMissingRegion},
		{"point", `{"type":"Point","coordinates":[0,0]}`, CodeInvalidGeometryShape},
		{"too large", largeRegion, CodeAreaExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			be := &fakeBackend{payload: json.RawMessage(`{"mapStats":{"mean":1}}`)}
			d := newTestDispatcher(t, be, &recordingProvider{})
			turn := TurnContext{Region: json.RawMessage(tt.region), MaxAreaSqKm: 100}
			inv := d.Dispatch(context.Background(), turn, llm.ToolCall{ID: "c", Name: RunAnalysisName, Arguments: json.RawMessage(validAnalysisArgs)})
			if got := CodeOf(inv.Result.Error); got != tt.want {
				t.Errorf("code = %s, want %s (%v)", got, tt.want, inv.Result.Error)
			}
			if be.calls != 0 {
				t.Errorf("backend called %d times", be.calls)
			}
			if decodeResult(t, inv)["errorType"] != string(tt.want) {
				t.Errorf("errorType missing from tool content: %s", inv.Result.Content())
			}
		})
	}
}

func TestRunAnalysisAreaMessageCarriesFigures(t *testing.T) {
	d := newTestDispatcher(t, &fakeBackend{}, &recordingProvider{})
	turn := TurnContext{Region: json.RawMessage(largeRegion), MaxAreaSqKm: 100}
	inv := d.Dispatch(context.Background(), turn, llm.ToolCall{Name: RunAnalysisName, Arguments: json.RawMessage(validAnalysisArgs)})
	msg := inv.Result.Error.Error()
	if !strings.Contains(msg, "100.00 km²") || !strings.Contains(msg, "49") {
		t.Errorf("message = %q", msg)
	}
}

func TestRunAnalysisSuccessEchoesRequest(t *testing.T) {
	be := &fakeBackend{payload: json.RawMessage(`{"mapStats":{"mean":0.31}}`)}
	d := newTestDispatcher(t, be, &recordingProvider{})
	turn := TurnContext{Region: json.RawMessage(smallRegion), MaxAreaSqKm: 100}
	inv := d.Dispatch(context.Background(), turn, llm.ToolCall{ID: "c", Name: RunAnalysisName, Arguments: json.RawMessage(validAnalysisArgs)})
	if !inv.Result.Success() {
		t.Fatalf("unexpected failure: %v", inv.Result.Error)
	}
	if be.calls != 1 || be.last.AggregationMethod != DefaultAggregationMethod {
		t.Errorf("backend request = %+v", be.last)
	}
	if string(be.last.Geometry) != smallRegion {
		t.Errorf("geometry not forwarded as received")
	}

	out := decodeResult(t, inv)["output"].(map[string]any)
	req := out["request"].(map[string]any)
	if req["startDate1"] != "2023-01-01" || req["aggregationMethodDefaulted"] != true {
		t.Errorf("request echo = %v", req)
	}
	if area, _ := req["areaSqKm"].(float64); area <= 0 {
		t.Errorf("areaSqKm = %v", req["areaSqKm"])
	}
	if _, ok := out["result"].(map[string]any)["mapStats"]; !ok {
		t.Errorf("backend payload missing: %v", out)
	}
}

func TestRunAnalysisEmptyPayload(t *testing.T) {
	be := &fakeBackend{err: backend.ErrEmptyResult}
	d := newTestDispatcher(t, be, &recordingProvider{})
	turn := TurnContext{Region: json.RawMessage(smallRegion), MaxAreaSqKm: 100}
	inv := d.Dispatch(context.Background(), turn, llm.ToolCall{Name: RunAnalysisName, Arguments: json.RawMessage(validAnalysisArgs)})
	if CodeOf(inv.Result.Error) != CodeEmptyResultPayload {
		t.Errorf("code = %s", CodeOf(inv.Result.Error))
	}
}

func TestRunAnalysisRemoteFailure(t *testing.T) {
	be := &fakeBackend{err: &backend.ServiceError{Service: "analysis backend", StatusCode: 500}}
	d := newTestDispatcher(t, be, &recordingProvider{})
	turn := TurnContext{Region: json.RawMessage(smallRegion), MaxAreaSqKm: 100}
	inv := d.Dispatch(context.Background(), turn, llm.ToolCall{Name: RunAnalysisName, Arguments: json.RawMessage(validAnalysisArgs)})
	if CodeOf(inv.Result.Error) != CodeRemoteServiceFailure {
		t.Errorf("code = %s", CodeOf(inv.Result.Error))
	}
}

func TestAnswerFromDocuments(t *testing.T) {
	answerer := &fakeAnswerer{}
	tool := NewAnswerFromDocumentsTool(answerer)

	if _, err := tool.Bind(json.RawMessage(`{"title":"x"}`)); err == nil {
		t.Error("expected missing query to fail")
	}
	run, err := tool.Bind(json.RawMessage(`{"query":"what is NDVI?"}`))
	if err != nil {
		t.Fatal(err)
	}
	res := run(context.Background(), TurnContext{})
	if !res.Success() || answerer.query != "what is NDVI?" {
		t.Errorf("result %v, query %q", res.Error, answerer.query)
	}
	if string(res.Output) != `{"answer":"42"}` {
		t.Errorf("payload changed: %s", res.Output)
	}
}

func TestDraftReportIsToolFree(t *testing.T) {
	provider := &recordingProvider{reply: "# Report"}
	d := newTestDispatcher(t, &fakeBackend{}, provider)
	turn := TurnContext{History: []llm.ChatMessage{
		llm.UserMessage("analyse NDVI"),
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: "c1", Name: RunAnalysisName}}},
		llm.ToolResultMessage(llm.ToolCall{ID: "c1", Name: RunAnalysisName}, `{"success":true}`),
		llm.AssistantMessage("SYSTEM INSTRUCTION"),
		llm.AssistantMessage("Mean NDVI was 0.31."),
	}}

	inv := d.Dispatch(context.Background(), turn, llm.ToolCall{Name: DraftReportName, Arguments: json.RawMessage(`{"title":"NDVI","messages":["mean value"]}`)})
	if !inv.Result.Success() {
		t.Fatalf("unexpected failure: %v", inv.Result.Error)
	}
	if len(provider.requests) != 1 {
		t.Fatalf("expected one completion, got %d", len(provider.requests))
	}
	req := provider.requests[0]
	if len(req.Tools) != 0 {
		t.Errorf("report completion offered %d tools", len(req.Tools))
	}
	if len(req.Messages) != 3 {
		t.Fatalf("expected user, assistant and report request, got %d: %+v", len(req.Messages), req.Messages)
	}
	for _, m := range req.Messages {
		if m.Role == llm.RoleTool || m.Content == "SYSTEM INSTRUCTION" {
			t.Errorf("message should have been filtered: %+v", m)
		}
	}
	last := req.Messages[2].Content
	if !strings.Contains(last, "Findings") || !strings.Contains(last, "mean value") {
		t.Errorf("report request = %q", last)
	}
	if decodeResult(t, inv)["output"].(map[string]any)["report"] != "# Report" {
		t.Errorf("report not returned")
	}
}

func TestListLayerNamesReturnsInputUnchanged(t *testing.T) {
	d := newTestDispatcher(t, &fakeBackend{}, &recordingProvider{})
	turn := TurnContext{LayerNames: []string{"ndvi h1", "rain 2023"}}
	inv := d.Dispatch(context.Background(), turn, llm.ToolCall{Name: ListLayerNamesName, Arguments: json.RawMessage(`{"layerName":"ndvi h1"}`)})
	var out struct {
		Output layerNamesOutput `json:"output"`
	}
	if err := json.Unmarshal([]byte(inv.Result.Content()), &out); err != nil {
		t.Fatal(err)
	}
	if strings.Join(out.Output.ExistingLayerNames, "|") != "ndvi h1|rain 2023" {
		t.Errorf("names = %v", out.Output.ExistingLayerNames)
	}
}

func TestListLayerNamesRequiresLayerName(t *testing.T) {
	d := newTestDispatcher(t, &fakeBackend{}, &recordingProvider{})

	inv := d.Dispatch(context.Background(), TurnContext{LayerNames: []string{"a"}}, llm.ToolCall{Name: ListLayerNamesName, Arguments: json.RawMessage(`{}`)})

	if inv.ValidationErr == nil || CodeOf(inv.Result.Error) != CodeInvalidArguments {
		t.Errorf("result = %+v", inv)
	}
	meta := NewListLayerNamesTool().Metadata()
	if req := meta.Schema()["required"].([]string); len(req) != 1 || req[0] != "layerName" {
		t.Errorf("required = %v", req)
	}
}

func TestCodeOfWrapped(t *testing.T) {
	err := errors.Join(errors.New("context"), &RepeatedFailureError{Tool: RunAnalysisName, Prev: ErrMissingRegion})
	if CodeOf(err) != CodeRepeatedFailure {
		t.Errorf("code = %s", CodeOf(err))
	}
	if CodeOf(errors.New("boom")) != CodeInternal {
		t.Error("plain errors should map to Internal")
	}
}
