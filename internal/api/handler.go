// Package api provides HTTP handlers for the LLM gateway API.
// It implements OpenAI-compatible endpoints for chat completions.
package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/opengw/llmgateway/internal/canon"
	"github.com/opengw/llmgateway/internal/limiter"
	"github.com/opengw/llmgateway/internal/metrics"
	"github.com/opengw/llmgateway/internal/pricing"
	"github.com/opengw/llmgateway/internal/provider"
	"github.com/opengw/llmgateway/internal/router"
	"github.com/opengw/llmgateway/internal/trace"
	llmerrors "github.com/opengw/llmgateway/pkg/errors"
	"github.com/opengw/llmgateway/pkg/types"
)

// Handler handles HTTP requests for the LLM gateway.
type Handler struct {
	registry   *provider.Registry
	router     router.Router
	logger     *slog.Logger
	gate       *limiter.Gate
	calculator *pricing.Calculator
	emitter    *trace.Emitter
}

// NewHandler creates a new API handler. gate may be nil, in which case rate
// and cost limits are not enforced.
func NewHandler(registry *provider.Registry, router router.Router, logger *slog.Logger, gate *limiter.Gate) *Handler {
	return &Handler{
		registry:   registry,
		router:     router,
		logger:     logger,
		gate:       gate,
		calculator: pricing.NewCalculator(nil),
	}
}

// WithEmitter attaches a Trace Emitter; every chat completion dispatched
// afterward emits a root span. Returns h for chaining.
func (h *Handler) WithEmitter(emitter *trace.Emitter) *Handler {
	h.emitter = emitter
	return h
}

// ChatCompletions handles POST /v1/chat/completions requests.
func (h *Handler) ChatCompletions(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	traceID := uuid.New().String()
	spanID := uuid.New().String()
	var spanModel, spanErr string
	defer func() { h.emitSpan(traceID, spanID, spanModel, spanErr, start) }()

	// Parse request body
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, llmerrors.NewInvalidRequestError("", "", "failed to read request body"))
		return
	}
	defer r.Body.Close()

	var req types.ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.writeError(w, llmerrors.NewInvalidRequestError("", "", "invalid JSON: "+err.Error()))
		return
	}

	// Validate request
	if req.Model == "" {
		h.writeError(w, llmerrors.NewInvalidRequestError("", "", "model is required"))
		return
	}
	if len(req.Messages) == 0 {
		h.writeError(w, llmerrors.NewInvalidRequestError("", req.Model, "messages is required"))
		return
	}
	spanModel = req.Model

	if h.gate != nil {
		decision, gateErr := h.gate.Check(r.Context(), "", time.Now())
		if gateErr != nil {
			h.logger.Error("limit gate check failed", "error", gateErr)
		} else if !decision.Allowed {
			h.writeError(w, llmerrors.NewRateLimitError("", req.Model, string(decision.Kind)))
			return
		}
	}

	// Route to deployment
	deployment, err := h.router.Pick(r.Context(), req.Model)
	if err != nil {
		h.logger.Error("no deployment available", "model", req.Model, "error", err)
		spanErr = "no available deployment"
		h.writeError(w, llmerrors.NewServiceUnavailableError("", req.Model, "no available deployment"))
		return
	}

	// Get provider
	prov, ok := h.registry.GetProvider(deployment.ProviderName)
	if !ok {
		h.writeError(w, llmerrors.NewInternalError(deployment.ProviderName, req.Model, "provider not found"))
		return
	}

	// Build upstream request
	upstreamReq, err := prov.BuildRequest(r.Context(), &req)
	if err != nil {
		h.writeError(w, llmerrors.NewInternalError(prov.Name(), req.Model, "failed to build request: "+err.Error()))
		return
	}

	// Execute request
	client := &http.Client{Timeout: time.Duration(deployment.Timeout) * time.Second}
	resp, err := client.Do(upstreamReq)
	if err != nil {
		h.router.ReportFailure(deployment, err)
		metrics.RecordError(prov.Name(), "connection_error")
		h.writeError(w, llmerrors.NewServiceUnavailableError(prov.Name(), req.Model, "upstream request failed"))
		return
	}
	defer resp.Body.Close()

	latency := time.Since(start)

	// Handle error responses
	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		llmErr := prov.MapError(resp.StatusCode, respBody)
		h.router.ReportFailure(deployment, llmErr)
		metrics.RecordRequest(prov.Name(), req.Model, resp.StatusCode, latency)
		spanErr = llmErr.Error()
		h.writeError(w, llmErr)
		return
	}

	// Handle streaming response
	if req.Stream {
		h.handleStreamResponse(w, resp, prov, deployment, req.Model, start)
		return
	}

	// Parse non-streaming response
	chatResp, err := prov.ParseResponse(resp)
	if err != nil {
		h.router.ReportFailure(deployment, err)
		h.writeError(w, llmerrors.NewInternalError(prov.Name(), req.Model, "failed to parse response"))
		return
	}

	// Record success metrics
	h.router.ReportSuccess(deployment, latency)
	metrics.RecordRequest(prov.Name(), req.Model, http.StatusOK, latency)
	if chatResp.Usage != nil {
		metrics.RecordTokens(prov.Name(), req.Model, chatResp.Usage.PromptTokens, chatResp.Usage.CompletionTokens)
		h.recordUsage(req.Model, chatResp.Usage.PromptTokens, chatResp.Usage.CompletionTokens)
	}

	// Write response
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(chatResp)
}

// Embeddings handles POST /v1/embeddings requests.
func (h *Handler) Embeddings(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, llmerrors.NewInvalidRequestError("", "", "failed to read request body"))
		return
	}
	defer r.Body.Close()

	var req types.EmbeddingRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.writeError(w, llmerrors.NewInvalidRequestError("", "", "invalid JSON: "+err.Error()))
		return
	}
	if req.Model == "" {
		h.writeError(w, llmerrors.NewInvalidRequestError("", "", "model is required"))
		return
	}
	if req.Input == nil || req.Input.IsEmpty() {
		h.writeError(w, llmerrors.NewInvalidRequestError("", req.Model, "input is required"))
		return
	}

	if h.gate != nil {
		decision, gateErr := h.gate.Check(r.Context(), "", time.Now())
		if gateErr != nil {
			h.logger.Error("limit gate check failed", "error", gateErr)
		} else if !decision.Allowed {
			h.writeError(w, llmerrors.NewRateLimitError("", req.Model, string(decision.Kind)))
			return
		}
	}

	deployment, err := h.router.Pick(r.Context(), req.Model)
	if err != nil {
		h.logger.Error("no deployment available", "model", req.Model, "error", err)
		h.writeError(w, llmerrors.NewServiceUnavailableError("", req.Model, "no available deployment"))
		return
	}

	prov, ok := h.registry.GetProvider(deployment.ProviderName)
	if !ok {
		h.writeError(w, llmerrors.NewInternalError(deployment.ProviderName, req.Model, "provider not found"))
		return
	}
	if !prov.SupportEmbedding() {
		h.writeError(w, llmerrors.NewInvalidRequestError(prov.Name(), req.Model, "provider does not support embeddings"))
		return
	}

	upstreamReq, err := prov.BuildEmbeddingRequest(r.Context(), &req)
	if err != nil {
		h.writeError(w, llmerrors.NewInternalError(prov.Name(), req.Model, "failed to build request: "+err.Error()))
		return
	}

	client := &http.Client{Timeout: time.Duration(deployment.Timeout) * time.Second}
	resp, err := client.Do(upstreamReq)
	if err != nil {
		h.router.ReportFailure(deployment, err)
		metrics.RecordError(prov.Name(), "connection_error")
		h.writeError(w, llmerrors.NewServiceUnavailableError(prov.Name(), req.Model, "upstream request failed"))
		return
	}
	defer resp.Body.Close()

	latency := time.Since(start)

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		llmErr := prov.MapError(resp.StatusCode, respBody)
		h.router.ReportFailure(deployment, llmErr)
		metrics.RecordRequest(prov.Name(), req.Model, resp.StatusCode, latency)
		h.writeError(w, llmErr)
		return
	}

	embResp, err := prov.ParseEmbeddingResponse(resp)
	if err != nil {
		h.router.ReportFailure(deployment, err)
		h.writeError(w, llmerrors.NewInternalError(prov.Name(), req.Model, "failed to parse response"))
		return
	}

	h.router.ReportSuccess(deployment, latency)
	metrics.RecordRequest(prov.Name(), req.Model, http.StatusOK, latency)
	metrics.RecordTokens(prov.Name(), req.Model, embResp.Usage.PromptTokens, 0)
	h.recordUsage(req.Model, embResp.Usage.PromptTokens, 0)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(embResp)
}

func (h *Handler) handleStreamResponse(w http.ResponseWriter, resp *http.Response, prov provider.Provider, deployment *provider.Deployment, model string, start time.Time) {
	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, llmerrors.NewInternalError(prov.Name(), model, "streaming not supported"))
		return
	}

	// Forward SSE stream
	// TODO: Implement proper SSE forwarding with buffer pooling
	_, err := io.Copy(w, resp.Body)
	if err != nil {
		h.logger.Error("stream copy error", "error", err)
	}
	flusher.Flush()

	// Record metrics
	latency := time.Since(start)
	h.router.ReportSuccess(deployment, latency)
	metrics.RecordRequest(prov.Name(), model, http.StatusOK, latency)
}

// emitSpan reports a root span for one dispatch through the Trace Emitter,
// if one is configured. A missing emitter is a silent no-op: trace emission
// is an observability add-on, never a request-path dependency.
func (h *Handler) emitSpan(traceID, spanID, model, errMsg string, start time.Time) {
	if h.emitter == nil {
		return
	}
	attrs := map[string]string{}
	if model != "" {
		attrs["model"] = model
	}
	if errMsg != "" {
		attrs["error"] = errMsg
	}
	h.emitter.Emit(canon.Span{
		TraceID:       traceID,
		SpanID:        spanID,
		OperationName: "chat_completions",
		StartTimeUs:   start.UnixMicro(),
		FinishTimeUs:  time.Now().UnixMicro(),
		Attributes:    attrs,
	})
}

// recordUsage computes the cost of a completed chat completion and records
// it against the Counter Store via the Limit Gate, asynchronously so a slow
// counter backend never delays the response.
func (h *Handler) recordUsage(model string, promptTokens, completionTokens int) {
	if h.gate == nil {
		return
	}
	cost := h.calculator.Calculate(model, promptTokens, completionTokens)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.gate.Record(ctx, "", cost, time.Now()); err != nil {
			h.logger.Warn("failed to record usage counters", "error", err, "model", model)
		}
	}()
}

// errorKindForType maps the provider-facing pkg/errors taxonomy onto the
// closed canon.ErrorKind vocabulary used for wire bodies and trace spans.
var errorKindForType = map[string]canon.ErrorKind{
	llmerrors.TypeAuthentication:     canon.ErrAuthFailed,
	llmerrors.TypeRateLimit:          canon.ErrRateLimited,
	llmerrors.TypeInvalidRequest:     canon.ErrBadRequest,
	llmerrors.TypeNotFound:           canon.ErrModelNotFound,
	llmerrors.TypeTimeout:            canon.ErrTimeout,
	llmerrors.TypeServiceUnavailable: canon.ErrUpstream,
	llmerrors.TypeInternalError:      canon.ErrInternal,
	llmerrors.TypeContextLength:      canon.ErrBadRequest,
	llmerrors.TypeContentPolicy:      canon.ErrBadRequest,
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var llmErr *llmerrors.LLMError
	if e, ok := err.(*llmerrors.LLMError); ok {
		llmErr = e
	} else {
		llmErr = llmerrors.NewInternalError("", "", err.Error())
	}

	kind, ok := errorKindForType[llmErr.Type]
	if !ok {
		kind = canon.ErrInternal
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(canon.HTTPStatusForKind(kind))
	json.NewEncoder(w).Encode(canon.NewErrorBody(kind, llmErr.Message))
}

// HealthCheck handles GET /health/live and /health/ready endpoints.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// ListModels handles GET /v1/models endpoint.
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	// TODO: Implement model listing from all providers
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"object": "list",
		"data":   []any{},
	})
}
