package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/richinex/geoassist/llm"
)

// DraftReportName is the tool name the model uses.
const DraftReportName = "DraftReport"

// reportStructure is appended to the filtered conversation to request the report.
const reportStructure = `Write a report of the analyses and findings in this conversation. Use Markdown with these sections:
1. Title
2. Summary: two or three sentences on what was examined and the main result.
3. Area and period: the region, its size in km² and every date range used.
4. Methods: each analysis with its function type and aggregation method.
5. Findings: the figures returned, grouped per analysis.
6. Document references: answers drawn from the reference documents, if any.
7. Limitations and next steps.
Report only figures that appear in the conversation.`

const reportSystem = "You write concise, factual geospatial analysis reports."

// Completer runs a tool-free completion.
type Completer interface {
	Complete(ctx context.Context, system string, messages []llm.ChatMessage) (string, error)
}

type draftReportArgs struct {
	Messages       []string `json:"messages"`
	Title          string   `json:"title"`
	ReportFileName string   `json:"reportFileName"`
}

type reportOutput struct {
	Title          string `json:"title,omitempty"`
	ReportFileName string `json:"reportFileName,omitempty"`
	Report         string `json:"report"`
}

// NewDraftReportTool creates the DraftReport tool. instruction is the
// system instruction of the outer loop; assistant messages equal to it
// are left out of the report context.
func NewDraftReportTool(completer Completer, instruction string) Tool {
	meta := ToolMetadata{
		Name:        DraftReportName,
		Description: "Draft a structured report of this conversation's analyses and findings. Call it only when the user asks for a report.",
		Parameters: []ToolParameter{
			{Name: "messages", ParamType: "array", ItemType: "string", Description: "Key points the report must cover"},
			{Name: "title", ParamType: "string", Description: "Report title"},
			{Name: "reportFileName", ParamType: "string", Description: "File name for the report"},
		},
	}

	return Define(meta, func(ctx context.Context, turn TurnContext, args draftReportArgs) ToolResult {
		messages := reportContext(turn.History, instruction)
		messages = append(messages, llm.UserMessage(reportRequest(args)))

		report, err := completer.Complete(ctx, reportSystem, messages)
		if err != nil {
			return FailureResult(fmt.Errorf("draft report: %w", err))
		}
		return SuccessResult(reportOutput{
			Title:          args.Title,
			ReportFileName: args.ReportFileName,
			Report:         report,
		})
	})
}

// reportContext keeps user messages and assistant text, dropping tool
// traffic and any copy of the system instruction.
func reportContext(history []llm.ChatMessage, instruction string) []llm.ChatMessage {
	var out []llm.ChatMessage
	for _, msg := range history {
		switch msg.Role {
		case llm.RoleUser:
			out = append(out, llm.UserMessage(msg.Content))
		case llm.RoleAssistant:
			if strings.TrimSpace(msg.Content) == "" || msg.Content == instruction {
				continue
			}
			out = append(out, llm.AssistantMessage(msg.Content))
		}
	}
	return out
}

func reportRequest(args draftReportArgs) string {
	var b strings.Builder
	b.WriteString(reportStructure)
	if args.Title != "" {
		fmt.Fprintf(&b, "\nUse the title %q.", args.Title)
	}
	if len(args.Messages) > 0 {
		b.WriteString("\nMake sure the report covers:")
		for _, m := range args.Messages {
			b.WriteString("\n- ")
			b.WriteString(m)
		}
	}
	return b.String()
}
