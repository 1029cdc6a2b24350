// Package canon defines the canonical request/response/streaming schema that
// every provider adapter translates into and every downstream component
// (cost meter, limit gate, tool loop, trace emitter, request router)
// operates on. It is the single wire-independent representation the rest of
// the gateway is built against, grounded on pkg/types' OpenAI-compatible
// ChatRequest/ChatMessage/ToolCall shapes but generalized to the multi-family
// (OpenAI/Anthropic/Gemini/Bedrock) adapter contract.
package canon

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Role identifies the sender of a canonical Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentPart is a tagged union of a message's content: either plain text or
// an image reference. Exactly one of Text/ImageURL/ImageBase64 is set,
// selected by Type.
type ContentPart struct {
	Type        string `json:"type"` // "text" | "image_url" | "image_base64"
	Text        string `json:"text,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	ImageBase64 string `json:"image_base64,omitempty"`
	MediaType   string `json:"media_type,omitempty"` // e.g. "image/png", required with ImageBase64
}

// Message is the canonical tagged-variant chat message. Role constrains
// which fields are meaningful: system/user messages may carry image Parts,
// assistant messages may carry ToolCalls, tool messages must carry
// ToolCallID.
type Message struct {
	Role       Role        `json:"role"`
	Text       string      `json:"text,omitempty"`
	Parts      []ContentPart `json:"parts,omitempty"`
	ToolCalls  []ToolCall  `json:"tool_calls,omitempty"`
	ToolCallID string      `json:"tool_call_id,omitempty"`
	Name       string      `json:"name,omitempty"`
}

// Validate enforces the bad_request invariants from the message schema:
// unknown role, a tool message missing tool_call_id, or an image part with
// neither a URL nor base64 payload.
func (m Message) Validate() error {
	switch m.Role {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
	default:
		return fmt.Errorf("canon: unknown message role %q", m.Role)
	}
	if m.Role == RoleTool && m.ToolCallID == "" {
		return fmt.Errorf("canon: tool message missing tool_call_id")
	}
	for i, p := range m.Parts {
		if p.Type == "image_url" && p.ImageURL == "" {
			return fmt.Errorf("canon: message part %d: image_url part has no URL", i)
		}
		if p.Type == "image_base64" && (p.ImageBase64 == "" || p.MediaType == "") {
			return fmt.Errorf("canon: message part %d: image_base64 part missing data or media_type", i)
		}
		if p.Type != "text" && p.Type != "image_url" && p.Type != "image_base64" {
			return fmt.Errorf("canon: message part %d: unknown part type %q", i, p.Type)
		}
	}
	return nil
}

// ToolCall is a model-issued invocation of a declared tool.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // raw JSON object, opaque to the adapter layer
}

// ToolResult is the outcome of dispatching a ToolCall back through MCP.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	Error      bool   `json:"error,omitempty"`
}

// ToolDeclaration is a single MCP-exposed tool, aggregated across servers by
// the tool-invocation loop's list_tools step.
type ToolDeclaration struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	ServerName  string          `json:"server_name,omitempty"`
}

// MCPServerDescriptor names an MCP server a request wants tools aggregated
// from, per the mcp_servers request field.
type MCPServerDescriptor struct {
	Name      string `json:"name"`
	Transport string `json:"transport,omitempty"` // "stdio" | "sse" | "streamable_http"
	Endpoint  string `json:"endpoint,omitempty"`
}

// SamplingParams holds the sampling knobs that every provider family accepts
// in some translated form.
type SamplingParams struct {
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

// CanonicalRequest is the provider-independent representation of an
// inbound /v1/chat/completions (or tool-loop re-entry) call.
type CanonicalRequest struct {
	Model       string                 `json:"model"`
	Messages    []Message              `json:"messages"`
	Tools       []ToolDeclaration      `json:"tools,omitempty"`
	ToolChoice  string                 `json:"tool_choice,omitempty"`
	MCPServers  []MCPServerDescriptor  `json:"mcp_servers,omitempty"`
	Sampling    SamplingParams         `json:"sampling"`
	Stream      bool                   `json:"stream,omitempty"`
}

// Validate enforces CanonicalRequest-level bad_request invariants: a model
// name, at least one message, and every message individually valid.
func (r CanonicalRequest) Validate() error {
	if r.Model == "" {
		return fmt.Errorf("canon: model is required")
	}
	if len(r.Messages) == 0 {
		return fmt.Errorf("canon: messages is required")
	}
	for i, m := range r.Messages {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("canon: message %d: %w", i, err)
		}
	}
	return nil
}

// FinishReason enumerates why a canonical stream ended.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishToolCalls     FinishReason = "tool_calls"
	FinishContentFilter FinishReason = "content_filter"
	FinishError         FinishReason = "error"
)

// ErrorKind is the closed vocabulary of canonical error kinds surfaced to
// clients and recorded on trace spans.
type ErrorKind string

const (
	ErrBadRequest         ErrorKind = "bad_request"
	ErrModelNotFound      ErrorKind = "model_not_found"
	ErrAuthFailed         ErrorKind = "auth_failed"
	ErrRateLimited        ErrorKind = "rate_limited"
	ErrCostLimitExceeded  ErrorKind = "cost_limit_exceeded"
	ErrUpstream           ErrorKind = "upstream_error"
	ErrToolLoopExhausted  ErrorKind = "tool_loop_exhausted"
	ErrToolTransportFail  ErrorKind = "tool_transport_failed"
	ErrTimeout            ErrorKind = "timeout"
	ErrCanceled           ErrorKind = "canceled"
	ErrInternal           ErrorKind = "internal"
)

// UpstreamError is the typed error every provider adapter returns in place
// of a bare Go error, so the router and retry policy can branch on Kind
// without string matching.
type UpstreamError struct {
	Kind            ErrorKind
	Retryable       bool
	HTTPStatus      int
	ProviderMessage string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("canon: %s (provider: %s)", e.Kind, e.ProviderMessage)
}

// ChunkKind tags the variant carried by a CanonicalChunk.
type ChunkKind string

const (
	ChunkDeltaText         ChunkKind = "delta_text"
	ChunkDeltaToolFragment ChunkKind = "delta_tool_call_fragment"
	ChunkFinish            ChunkKind = "finish"
	ChunkUsage             ChunkKind = "usage"
	ChunkError             ChunkKind = "error"
)

// ToolCallFragment is a partial tool-call delta: providers stream tool call
// arguments incrementally, indexed by position so fragments from different
// calls interleave safely.
type ToolCallFragment struct {
	Index        int    `json:"index"`
	ID           string `json:"id,omitempty"`
	Name         string `json:"name,omitempty"`
	ArgumentsPart string `json:"arguments_part,omitempty"`
}

// CanonicalChunk is the tagged-variant unit emitted by every provider
// adapter's invoke() stream. Exactly the fields matching Kind are set.
type CanonicalChunk struct {
	Kind ChunkKind `json:"kind"`

	// ChunkDeltaText
	Text string `json:"text,omitempty"`

	// ChunkDeltaToolFragment
	ToolFragment *ToolCallFragment `json:"tool_fragment,omitempty"`

	// ChunkFinish
	FinishReason FinishReason `json:"finish_reason,omitempty"`

	// ChunkUsage
	Usage *UsageRecord `json:"usage,omitempty"`

	// ChunkError
	Err *UpstreamError `json:"-"`
}

// Capability flags a provider/model combination's supported operation set.
type Capability struct {
	Chat       bool `json:"chat"`
	Embeddings bool `json:"embeddings"`
	Image      bool `json:"image"`
	Tools      bool `json:"tools"`
	Vision     bool `json:"vision"`
	Streaming  bool `json:"streaming"`
}

// ModelDescriptor describes a single routable model: which provider family
// serves it, the upstream model name to send, its per-1K-token or per-image
// price, and what it can do.
type ModelDescriptor struct {
	ModelID         string     `json:"model_id"` // the name clients request by
	Provider        string     `json:"provider"`
	UpstreamModel   string     `json:"upstream_model"`
	InputPricePer1K float64    `json:"input_price_per_1k"`
	OutputPricePer1K float64   `json:"output_price_per_1k"`
	ImagePrice      float64    `json:"image_price,omitempty"`
	Capabilities    Capability `json:"capabilities"`
}

// UsageRecord is the accumulated token/cost accounting for one request,
// produced by the streaming translator and consumed by the cost meter and
// trace emitter.
type UsageRecord struct {
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	Cost             float64   `json:"cost"`
	Model            string    `json:"model"`
	TraceID          string    `json:"trace_id,omitempty"`
}

// CounterScope is the dimension a Counter Store key tracks.
type CounterScope string

const (
	ScopeRateHourly  CounterScope = "rate_hourly"
	ScopeCostDaily   CounterScope = "cost_daily"
	ScopeCostMonthly CounterScope = "cost_monthly"
	ScopeCostTotal   CounterScope = "cost_total"
)

// CounterKey identifies one bucketed, atomically-updated counter. Bucket is
// the truncated UTC timestamp string for the scope ("YYYY-MM-DD-HH" for
// rate_hourly, "YYYY-MM-DD" for cost_daily, "YYYY-MM"
// for cost_monthly, empty for cost_total).
type CounterKey struct {
	Scope     CounterScope `json:"scope"`
	Dimension string       `json:"dimension"` // tenant/key identifier; "" for the single-tenant default
	Bucket    string       `json:"bucket"`
}

// String renders the key as a flat string suitable for use as a map/Redis
// key: "<scope>:<dimension>:<bucket>".
func (k CounterKey) String() string {
	return string(k.Scope) + ":" + k.Dimension + ":" + k.Bucket
}

// Span is one unit of the trace emitter's output: a root request span
// (chat.completions/embeddings/images.generations) or a child span for a
// provider call or MCP tool call.
type Span struct {
	TraceID       string            `json:"trace_id"`
	SpanID        string            `json:"span_id"`
	ParentID      string            `json:"parent_id,omitempty"`
	OperationName string            `json:"operation_name"`
	StartTimeUs   int64             `json:"start_time_us"`
	FinishTimeUs  int64             `json:"finish_time_us"`
	Attributes    map[string]string `json:"attributes,omitempty"`
}
