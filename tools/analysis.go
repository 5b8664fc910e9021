package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/richinex/geoassist/backend"
	"github.com/richinex/geoassist/geometry"
)

// RunAnalysisName is the tool name the model uses.
const RunAnalysisName = "RunAnalysis"

// DefaultAggregationMethod is used when the model omits one.
const DefaultAggregationMethod = "mean"

const dateLayout = "2006-01-02"

// AnalysisBackend runs analyses on a region.
type AnalysisBackend interface {
	RunAnalysis(ctx context.Context, req backend.AnalysisRequest) (json.RawMessage, error)
}

type runAnalysisArgs struct {
	FunctionType      string `json:"functionType" validate:"required"`
	StartDate1        string `json:"startDate1" validate:"required,datetime=2006-01-02"`
	EndDate1          string `json:"endDate1" validate:"required,datetime=2006-01-02"`
	StartDate2        string `json:"startDate2" validate:"required_with=EndDate2,omitempty,datetime=2006-01-02"`
	EndDate2          string `json:"endDate2" validate:"required_with=StartDate2,omitempty,datetime=2006-01-02"`
	AggregationMethod string `json:"aggregationMethod" validate:"omitempty,oneof=mean median min max sum"`
	LayerName         string `json:"layerName" validate:"required"`
	Title             string `json:"title"`
}

// Check enforces that each range ends on or after its start.
func (a *runAnalysisArgs) Check() error {
	if err := checkRange("startDate1", a.StartDate1, "endDate1", a.EndDate1); err != nil {
		return err
	}
	if a.StartDate2 != "" {
		return checkRange("startDate2", a.StartDate2, "endDate2", a.EndDate2)
	}
	return nil
}

func checkRange(startName, start, endName, end string) error {
	s, err := time.Parse(dateLayout, start)
	if err != nil {
		return fmt.Errorf("%s: %w", startName, err)
	}
	e, err := time.Parse(dateLayout, end)
	if err != nil {
		return fmt.Errorf("%s: %w", endName, err)
	}
	if e.Before(s) {
		return fmt.Errorf("%s (%s) is before %s (%s)", endName, end, startName, start)
	}
	return nil
}

type analysisOutput struct {
	Result  json.RawMessage `json:"result"`
	Request analysisEcho    `json:"request"`
}

// analysisEcho repeats the parameters the analysis actually ran with so
// the model can quote them without re-deriving anything.
type analysisEcho struct {
	FunctionType               string  `json:"functionType"`
	StartDate1                 string  `json:"startDate1"`
	EndDate1                   string  `json:"endDate1"`
	StartDate2                 string  `json:"startDate2,omitempty"`
	EndDate2                   string  `json:"endDate2,omitempty"`
	AggregationMethod          string  `json:"aggregationMethod"`
	AggregationMethodDefaulted bool    `json:"aggregationMethodDefaulted,omitempty"`
	LayerName                  string  `json:"layerName"`
	Title                      string  `json:"title,omitempty"`
	AreaSqKm                   float64 `json:"areaSqKm"`
}

// NewRunAnalysisTool creates the RunAnalysis tool. The selected region is
// shape and area checked before the backend is contacted.
func NewRunAnalysisTool(client AnalysisBackend) Tool {
	meta := ToolMetadata{
		Name: RunAnalysisName,
		Description: "Run a geospatial analysis over the region the user selected on the map and add the result as a new map layer. " +
			"Use a second date range only for change analyses. If no aggregation method is given, " + DefaultAggregationMethod +
			" is used; mention that in your answer. Check existing names with ListLayerNames first so the layer name is unique.",
		Parameters: []ToolParameter{
			{Name: "functionType", ParamType: "string", Description: "Analysis function, e.g. a vegetation index or its change over time", Required: true},
			{Name: "startDate1", ParamType: "string", Description: "Start of the first date range, YYYY-MM-DD", Required: true},
			{Name: "endDate1", ParamType: "string", Description: "End of the first date range, YYYY-MM-DD", Required: true},
			{Name: "startDate2", ParamType: "string", Description: "Start of the second date range for change analyses, YYYY-MM-DD"},
			{Name: "endDate2", ParamType: "string", Description: "End of the second date range for change analyses, YYYY-MM-DD"},
			{Name: "aggregationMethod", ParamType: "string", Description: "Statistic that collapses the imagery time series", Enum: []string{"mean", "median", "min", "max", "sum"}},
			{Name: "layerName", ParamType: "string", Description: "Name of the new map layer; must not collide with an existing layer", Required: true},
			{Name: "title", ParamType: "string", Description: "Short title for this analysis"},
		},
	}

	return Define(meta, func(ctx context.Context, turn TurnContext, args runAnalysisArgs) ToolResult {
		if !turn.HasRegion() {
			return FailureResult(ErrMissingRegion)
		}
		region, err := geometry.Validate(turn.Region, turn.MaxAreaSqKm)
		if err != nil {
			return FailureResult(err)
		}

		echo := analysisEcho{
			FunctionType:      args.FunctionType,
			StartDate1:        args.StartDate1,
			EndDate1:          args.EndDate1,
			StartDate2:        args.StartDate2,
			EndDate2:          args.EndDate2,
			AggregationMethod: args.AggregationMethod,
			LayerName:         args.LayerName,
			Title:             args.Title,
			AreaSqKm:          region.AreaSqKm,
		}
		if echo.AggregationMethod == "" {
			echo.AggregationMethod = DefaultAggregationMethod
			echo.AggregationMethodDefaulted = true
		}

		payload, err := client.RunAnalysis(ctx, backend.AnalysisRequest{
			FunctionType:      echo.FunctionType,
			StartDate1:        echo.StartDate1,
			EndDate1:          echo.EndDate1,
			StartDate2:        echo.StartDate2,
			EndDate2:          echo.EndDate2,
			AggregationMethod: echo.AggregationMethod,
			LayerName:         echo.LayerName,
			Geometry:          region.Raw,
		})
		if err != nil {
			if errors.Is(err, backend.ErrEmptyResult) {
				return FailureResult(fmt.Errorf("analysis %q produced no statistics for the selected region and dates: %w", args.FunctionType, err))
			}
			return FailureResult(err)
		}
		return SuccessResult(analysisOutput{Result: payload, Request: echo})
	})
}
