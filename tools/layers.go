package tools

import "context"

// ListLayerNamesName is the tool name the model uses.
const ListLayerNamesName = "ListLayerNames"

type listLayersArgs struct {
	LayerName string `json:"layerName" validate:"required"`
}

type layerNamesOutput struct {
	ExistingLayerNames []string `json:"existingLayerNames"`
}

// NewListLayerNamesTool creates the ListLayerNames tool. It returns the
// layer names supplied with the turn unchanged; comparing them with the
// proposed name is left to the model.
func NewListLayerNamesTool() Tool {
	meta := ToolMetadata{
		Name:        ListLayerNamesName,
		Description: "List the names of the map layers that already exist, to check that a new layer name is not taken before calling " + RunAnalysisName + ".",
		Parameters: []ToolParameter{
			{Name: "layerName", ParamType: "string", Description: "The layer name you intend to use", Required: true},
		},
	}

	return Define(meta, func(_ context.Context, turn TurnContext, _ listLayersArgs) ToolResult {
		names := turn.LayerNames
		if names == nil {
			names = []string{}
		}
		return SuccessResult(layerNamesOutput{ExistingLayerNames: names})
	})
}
