package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"go.uber.org/zap"
)

const (
	// DefaultOpenAIModel is the default chat model
	DefaultOpenAIModel = "gpt-4o-mini"
	// DefaultEmbeddingModel is the default embedding model
	DefaultEmbeddingModel = "text-embedding-3-small"
	// DefaultOpenAIBaseURL is the default OpenAI API base URL
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	// DefaultTimeout bounds every HTTP call to the provider
	DefaultTimeout = 60 * time.Second

	// ErrNoChoicesInResponse is returned when the API response has no choices
	ErrNoChoicesInResponse = "no choices in response"
)

// OpenAIProvider talks to an OpenAI-compatible API for chat and embeddings
type OpenAIProvider struct {
	client         openai.Client
	model          string
	embeddingModel string
	logger         *zap.Logger
	debugMode      bool
}

// OpenAIOptions configures an OpenAIProvider
type OpenAIOptions struct {
	APIKey         string
	BaseURL        string
	Model          string
	EmbeddingModel string
	Logger         *zap.Logger
	DebugMode      bool
	HTTPClient     *http.Client
	MaxRetries     *int
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(opts OpenAIOptions) *OpenAIProvider {
	if opts.Model == "" {
		opts.Model = DefaultOpenAIModel
	}
	if opts.EmbeddingModel == "" {
		opts.EmbeddingModel = DefaultEmbeddingModel
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultOpenAIBaseURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithBaseURL(opts.BaseURL),
		option.WithHTTPClient(opts.HTTPClient),
	}
	if opts.MaxRetries != nil {
		reqOpts = append(reqOpts, option.WithMaxRetries(*opts.MaxRetries))
	}

	if opts.DebugMode {
		opts.Logger.Debug("openai_provider_configured",
			zap.String("model", opts.Model),
			zap.String("embedding_model", opts.EmbeddingModel),
			zap.String("base_url", opts.BaseURL),
			zap.String("api_key", RedactKey(opts.APIKey)),
		)
	}

	return &OpenAIProvider{
		client:         openai.NewClient(reqOpts...),
		model:          opts.Model,
		embeddingModel: opts.EmbeddingModel,
		logger:         opts.Logger,
		debugMode:      opts.DebugMode,
	}
}

// Name returns the chat model identifier
func (p *OpenAIProvider) Name() string {
	return p.model
}

// NewTurn starts a tool-calling exchange seeded with the system prompt and history
func (p *OpenAIProvider) NewTurn(req TurnRequest) Turn {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+1)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	for _, m := range req.History {
		switch m.Role {
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		case RoleSystem:
			messages = append(messages, openai.SystemMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	tools := make([]openai.ChatCompletionToolUnionParam, 0, len(req.Tools))
	for _, t := range req.Tools {
		tools = append(tools, openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
			Name:        t.Name,
			Description: openai.String(t.Description),
			Parameters:  shared.FunctionParameters(t.Parameters),
		}))
	}

	turn := &openAITurn{provider: p, messages: messages, tools: tools}
	if n := len(req.History); n > 0 {
		turn.lastInput = req.History[n-1].Content
	}
	return turn
}

type openAITurn struct {
	provider  *OpenAIProvider
	messages  []openai.ChatCompletionMessageParamUnion
	tools     []openai.ChatCompletionToolUnionParam
	lastInput string
	steps     int
}

// Step sends the accumulated messages and records the assistant reply in the turn
func (t *openAITurn) Step(ctx context.Context) (*Completion, error) {
	p := t.provider
	t.steps++

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: t.messages,
	}
	if len(t.tools) > 0 {
		params.Tools = t.tools
	}

	if p.debugMode {
		p.logger.Debug("llm_api_request",
			zap.String("operation", "chat_step"),
			zap.String("model", p.model),
			zap.Int("step", t.steps),
			zap.Int("message_count", len(t.messages)),
			zap.Int("tool_count", len(t.tools)),
			zap.String("input_preview", Preview(t.lastInput, false)),
		)
	}

	start := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, params)
	latency := time.Since(start)
	if err != nil {
		if p.debugMode {
			p.logger.Debug("llm_api_error",
				zap.String("operation", "chat_step"),
				zap.String("model", p.model),
				zap.Error(err),
				zap.Int64("latency_ms", latency.Milliseconds()),
			)
		}
		if apiErr := ExtractAPIError(err); apiErr != nil {
			return nil, fmt.Errorf("failed to run chat step: %w", apiErr)
		}
		return nil, fmt.Errorf("failed to run chat step: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New(ErrNoChoicesInResponse)
	}

	msg := resp.Choices[0].Message
	t.messages = append(t.messages, msg.ToParam())

	out := &Completion{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	if p.debugMode {
		p.logger.Debug("llm_api_response",
			zap.String("operation", "chat_step"),
			zap.String("model", p.model),
			zap.Int("tool_calls", len(out.ToolCalls)),
			zap.String("response_preview", Preview(out.Content, true)),
			zap.Int64("prompt_tokens", resp.Usage.PromptTokens),
			zap.Int64("completion_tokens", resp.Usage.CompletionTokens),
			zap.Int64("latency_ms", latency.Milliseconds()),
		)
	}
	return out, nil
}

// SubmitToolResult appends a tool message answering callID
func (t *openAITurn) SubmitToolResult(callID, content string) {
	t.messages = append(t.messages, openai.ToolMessage(content, callID))
}

// CreateEmbedding returns the embedding of text with the requested dimensionality
func (p *OpenAIProvider) CreateEmbedding(ctx context.Context, text string, dimensions int) ([]float32, error) {
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.EmbeddingModel(p.embeddingModel),
	}
	if dimensions > 0 {
		params.Dimensions = openai.Int(int64(dimensions))
	}

	resp, err := p.client.Embeddings.New(ctx, params)
	if err != nil {
		if apiErr := ExtractAPIError(err); apiErr != nil {
			return nil, fmt.Errorf("failed to create embedding: %w", apiErr)
		}
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("no embedding in response")
	}

	raw := resp.Data[0].Embedding
	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}
	return vec, nil
}

var (
	_ ChatModel       = (*OpenAIProvider)(nil)
	_ EmbeddingClient = (*OpenAIProvider)(nil)
)
