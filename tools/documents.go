package tools

import (
	"context"
	"encoding/json"
)

// AnswerFromDocumentsName is the tool name the model uses.
const AnswerFromDocumentsName = "AnswerFromDocuments"

// DocumentAnswerer answers questions from the document corpus.
type DocumentAnswerer interface {
	Answer(ctx context.Context, query string) (json.RawMessage, error)
}

type answerArgs struct {
	Query string `json:"query" validate:"required"`
	Title string `json:"title"`
}

// NewAnswerFromDocumentsTool creates the AnswerFromDocuments tool.
func NewAnswerFromDocumentsTool(answerer DocumentAnswerer) Tool {
	meta := ToolMetadata{
		Name:        AnswerFromDocumentsName,
		Description: "Answer a question from the indexed reference documents. Pass the user's question as a self-contained query.",
		Parameters: []ToolParameter{
			{Name: "query", ParamType: "string", Description: "The question to answer", Required: true},
			{Name: "title", ParamType: "string", Description: "Short title for this question"},
		},
	}

	return Define(meta, func(ctx context.Context, _ TurnContext, args answerArgs) ToolResult {
		payload, err := answerer.Answer(ctx, args.Query)
		if err != nil {
			return FailureResult(err)
		}
		return SuccessResult(payload)
	})
}
