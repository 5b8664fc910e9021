// Package transcript stores the messages a chat turn produced, after
// removing tool traffic that cannot be replayed to a model.
package transcript

import (
	"strings"

	"github.com/richinex/geoassist/llm"
)

// Sanitize returns a copy of messages in which every tool call has a
// matching tool result and every tool result has a matching call.
// A result matches only a call of the nearest preceding assistant message,
// and each call is answered at most once, so ids reused across rounds
// cannot pair a result with the wrong call. Unmatched calls are removed
// from their assistant message; unmatched results are dropped; assistant
// messages left with neither text nor calls are dropped.
// Sanitize(Sanitize(m)) equals Sanitize(m).
func Sanitize(messages []llm.ChatMessage) []llm.ChatMessage {
	// answered[i] holds the call ids of assistant message i that got a result.
	answered := make(map[int]map[string]bool)
	keepResult := make([]bool, len(messages))
	owner := -1
	for i, msg := range messages {
		switch msg.Role {
		case llm.RoleAssistant:
			owner = i
		case llm.RoleTool:
			id := msg.ToolCallID
			if owner < 0 || id == "" || !hasCall(messages[owner], id) || answered[owner][id] {
				continue
			}
			if answered[owner] == nil {
				answered[owner] = make(map[string]bool)
			}
			answered[owner][id] = true
			keepResult[i] = true
		}
	}

	out := make([]llm.ChatMessage, 0, len(messages))
	for i, msg := range messages {
		switch msg.Role {
		case llm.RoleTool:
			if !keepResult[i] {
				continue
			}
		case llm.RoleAssistant:
			var kept []llm.ToolCall
			seen := make(map[string]bool, len(msg.ToolCalls))
			for _, tc := range msg.ToolCalls {
				if answered[i][tc.ID] && !seen[tc.ID] {
					seen[tc.ID] = true
					kept = append(kept, tc)
				}
			}
			msg.ToolCalls = kept
			if len(kept) == 0 && strings.TrimSpace(msg.Content) == "" {
				continue
			}
		}
		out = append(out, msg)
	}

	return out
}

func hasCall(msg llm.ChatMessage, id string) bool {
	for _, tc := range msg.ToolCalls {
		if tc.ID == id {
			return true
		}
	}
	return false
}
