package entity

import "time"

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// PartType enumerates the canonical content part variants. Bridges to
// provider-specific wire formats live outside the core; everything in here
// manipulates only these shapes.
type PartType string

const (
	PartText       PartType = "text"
	PartImage      PartType = "image"
	PartToolUse    PartType = "tool_use"
	PartToolResult PartType = "tool_result"
	PartThinking   PartType = "thinking"
)

// ContentPart is one fragment of a message.
type ContentPart struct {
	Type PartType `json:"type"`

	// PartText
	Text string `json:"text,omitempty"`

	// PartImage
	MediaURL string `json:"media_url,omitempty"`
	MimeType string `json:"mime_type,omitempty"`

	// PartToolUse
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`

	// PartToolResult
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`

	// PartThinking
	Thinking string `json:"thinking,omitempty"`
}

// Message is the canonical agent message: a role plus ordered content parts.
type Message struct {
	Role      Role          `json:"role"`
	Parts     []ContentPart `json:"parts"`
	Timestamp time.Time     `json:"timestamp,omitempty"`
}

// NewTextMessage builds a single-part text message.
func NewTextMessage(role Role, text string) Message {
	return Message{
		Role:      role,
		Parts:     []ContentPart{{Type: PartText, Text: text}},
		Timestamp: time.Now(),
	}
}

// Text joins all text parts with newlines.
func (m *Message) Text() string {
	var out string
	for _, p := range m.Parts {
		if p.Type != PartText || p.Text == "" {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += p.Text
	}
	return out
}

// ToolUses returns the tool_use parts in order.
func (m *Message) ToolUses() []ContentPart {
	var uses []ContentPart
	for _, p := range m.Parts {
		if p.Type == PartToolUse {
			uses = append(uses, p)
		}
	}
	return uses
}

// Usage counts tokens for one provider exchange.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add accumulates another usage record.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// Total returns input + output tokens.
func (u Usage) Total() int { return u.InputTokens + u.OutputTokens }

// ToolCallInfo is a tool call parsed from a provider response.
type ToolCallInfo struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolCallRecord is the per-call record appended to session turns. The vidhi
// miner consumes these offline.
type ToolCallRecord struct {
	Name    string         `json:"name"`
	Input   map[string]any `json:"input"`
	Result  string         `json:"result"`
	IsError bool           `json:"isError"`
}
