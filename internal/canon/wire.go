package canon

import (
	"github.com/goccy/go-json"

	"github.com/opengw/llmgateway/pkg/types"
)

// FromChatRequest translates an OpenAI-wire ChatRequest (pkg/types, already
// parsed and validated by the JSON layer) into a CanonicalRequest. This is
// the C9 request router's entry point into the canonical pipeline.
func FromChatRequest(req *types.ChatRequest) (*CanonicalRequest, error) {
	cr := &CanonicalRequest{
		Model:    req.Model,
		Stream:   req.Stream,
		Messages: make([]Message, 0, len(req.Messages)),
		Sampling: SamplingParams{
			Temperature: req.Temperature,
			TopP:        req.TopP,
			MaxTokens:   req.MaxTokens,
			Stop:        req.Stop,
		},
	}

	for _, t := range req.Tools {
		cr.Tools = append(cr.Tools, ToolDeclaration{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters:  t.Function.Parameters,
		})
	}

	for _, m := range req.Messages {
		var text string
		_ = json.Unmarshal(m.Content, &text) // best-effort: content may be a JSON string or structured parts

		msg := Message{
			Role:       Role(m.Role),
			Text:       text,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
		cr.Messages = append(cr.Messages, msg)
	}

	if err := cr.Validate(); err != nil {
		return nil, err
	}
	return cr, nil
}

// ToChatRequest is the inverse of FromChatRequest. Round-tripping a request
// through FromChatRequest/ToChatRequest must preserve model, message count,
// role, and text content — the spec's parse(serialize(r))==r property.
func (r *CanonicalRequest) ToChatRequest() (*types.ChatRequest, error) {
	out := &types.ChatRequest{
		Model:       r.Model,
		Stream:      r.Stream,
		MaxTokens:   r.Sampling.MaxTokens,
		Temperature: r.Sampling.Temperature,
		TopP:        r.Sampling.TopP,
		Stop:        r.Sampling.Stop,
	}

	for _, t := range r.Tools {
		out.Tools = append(out.Tools, types.Tool{
			Type: "function",
			Function: types.ToolFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	for _, m := range r.Messages {
		content, err := json.Marshal(m.Text)
		if err != nil {
			return nil, err
		}
		cm := types.ChatMessage{
			Role:       string(m.Role),
			Content:    content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			cm.ToolCalls = append(cm.ToolCalls, types.ToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: types.ToolCallFunction{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out.Messages = append(out.Messages, cm)
	}

	return out, nil
}

// ModelsListResponse is the wire shape for GET /v1/models.
type ModelsListResponse struct {
	Object string       `json:"object"`
	Data   []ModelEntry `json:"data"`
}

// ModelEntry is a single GET /v1/models list element.
type ModelEntry struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"`
}

// ModelsListResponseFromDescriptors builds the /v1/models body from the
// router's registered ModelDescriptors.
func ModelsListResponseFromDescriptors(descs []ModelDescriptor) ModelsListResponse {
	out := ModelsListResponse{Object: "list", Data: make([]ModelEntry, 0, len(descs))}
	for _, d := range descs {
		out.Data = append(out.Data, ModelEntry{
			ID:      d.ModelID,
			Object:  "model",
			OwnedBy: d.Provider,
		})
	}
	return out
}

// ErrorBody is the wire shape {"error": {"message","type","code"}} returned
// for every non-2xx response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the human message, the closed ErrorKind-derived wire
// "type", and an optional provider/upstream code.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

// errorKindWireType maps canonical ErrorKind to the wire "type" vocabulary
// from the spec's error contract.
var errorKindWireType = map[ErrorKind]string{
	ErrBadRequest:        "invalid_request_error",
	ErrModelNotFound:     "invalid_request_error",
	ErrAuthFailed:        "authentication_error",
	ErrRateLimited:       "rate_limit_error",
	ErrCostLimitExceeded: "cost_limit_error",
	ErrUpstream:          "upstream_error",
	ErrToolLoopExhausted: "upstream_error",
	ErrToolTransportFail: "upstream_error",
	ErrTimeout:           "upstream_error",
	ErrCanceled:          "invalid_request_error",
	ErrInternal:          "internal_error",
}

// HTTPStatusForKind maps an ErrorKind to its spec-mandated HTTP status.
func HTTPStatusForKind(k ErrorKind) int {
	switch k {
	case ErrBadRequest, ErrCanceled:
		return 400
	case ErrAuthFailed:
		return 401
	case ErrModelNotFound:
		return 404
	case ErrRateLimited, ErrCostLimitExceeded:
		return 429
	case ErrUpstream, ErrToolLoopExhausted, ErrToolTransportFail, ErrTimeout:
		return 502
	default:
		return 500
	}
}

// NewErrorBody builds the wire error body for a canonical ErrorKind.
func NewErrorBody(kind ErrorKind, message string) ErrorBody {
	wireType, ok := errorKindWireType[kind]
	if !ok {
		wireType = "internal_error"
	}
	return ErrorBody{Error: ErrorDetail{Message: message, Type: wireType, Code: string(kind)}}
}
