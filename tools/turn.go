package tools

import (
	"encoding/json"

	"github.com/richinex/geoassist/llm"
)

// TurnContext is the read-only view of a chat turn that handlers see.
type TurnContext struct {
	// Region is the geometry the user selected, if any.
	Region json.RawMessage
	// LayerNames are the map layers that already exist for the user.
	LayerNames []string
	// MaxAreaSqKm is the analysis area ceiling for the user's tier.
	MaxAreaSqKm float64
	// History is the conversation so far, excluding the system instruction.
	History []llm.ChatMessage
}

// HasRegion reports whether a region was supplied with the turn.
func (t TurnContext) HasRegion() bool {
	s := string(t.Region)
	return len(t.Region) > 0 && s != "null" && s != "{}"
}
