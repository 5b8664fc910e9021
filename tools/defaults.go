package tools

import "fmt"

// Services are the collaborators the default tools call.
type Services struct {
	Analysis  AnalysisBackend
	Documents DocumentAnswerer
	Completer Completer
	// Instruction is the system instruction of the completion loop.
	Instruction string
}

// WithDefaults creates a registry holding the four assistant tools.
func WithDefaults(svc Services) (*Registry, error) {
	registry := NewRegistry()

	tools := []Tool{
		NewRunAnalysisTool(svc.Analysis),
		NewAnswerFromDocumentsTool(svc.Documents),
		NewDraftReportTool(svc.Completer, svc.Instruction),
		NewListLayerNamesTool(),
	}

	for _, t := range tools {
		if err := registry.Register(t); err != nil {
			return nil, fmt.Errorf("failed to register default tools: %w", err)
		}
	}

	return registry, nil
}
