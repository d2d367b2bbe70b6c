package ai

import "context"

// Role of a conversation message sent to the model
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one prior conversation message
type Message struct {
	Role    Role
	Content string
}

// ToolDefinition describes a callable tool in JSON Schema terms
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolCall is a model request to run a tool
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Completion is the result of one model step. A step either asks for tools or answers.
type Completion struct {
	Content   string
	ToolCalls []ToolCall
}

// TurnRequest seeds a model turn
type TurnRequest struct {
	System   string
	History  []Message
	Tools    []ToolDefinition
	MaxSteps int
}

// Turn is a stateful model exchange within one conversation turn.
// Step calls the model once; SubmitToolResult feeds back the output of a requested tool.
type Turn interface {
	Step(ctx context.Context) (*Completion, error)
	SubmitToolResult(callID, content string)
}

// ChatModel starts model turns
type ChatModel interface {
	NewTurn(req TurnRequest) Turn
	Name() string
}

// EmbeddingClient returns raw embedding vectors
type EmbeddingClient interface {
	CreateEmbedding(ctx context.Context, text string, dimensions int) ([]float32, error)
}
