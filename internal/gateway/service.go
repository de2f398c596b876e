package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"completions-gateway/internal/adapter"
	"completions-gateway/internal/audit"
	"completions-gateway/internal/backend"
	"completions-gateway/internal/chat"
	"completions-gateway/internal/config"
	"completions-gateway/internal/conform"
	apierrors "completions-gateway/internal/errors"
	"completions-gateway/internal/metrics"
	"completions-gateway/internal/models"
	"completions-gateway/internal/openai"
)

type contextKey string

const (
	contextKeyRequestID contextKey = "request_id"

	ServiceName    = "completions-gateway"
	ServiceVersion = "1.0.0"

	statusSuccess      = "success"
	statusClientError  = "client_error"
	statusBackendError = "backend_error"
	statusErrorPayload = "error_payload"

	auditSaveTimeout = 2 * time.Second
)

type Service struct {
	store    *config.Store
	backends *backend.Registry
	engine   *conform.Engine
	metrics  *metrics.Collector
	audit    audit.Store
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Service)

func WithMetrics(c *metrics.Collector) Option {
	return func(s *Service) { s.metrics = c }
}

func WithAudit(store audit.Store) Option {
	return func(s *Service) { s.audit = store }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store *config.Store, backends *backend.Registry, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		backends: backends,
		engine:   conform.NewEngine(logger),
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// completion is the outcome of one chat completion request.
type completion struct {
	route    config.ModelRoute
	instr    chat.Instruction
	strategy conform.Name
	status   string
}

func (s *Service) HandleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, r, http.MethodPost)
		return
	}

	requestID := requestIDFromContext(r.Context())
	cfg := s.store.Load()
	start := s.now()

	req, apiErr := decodeRequest(w, r, cfg.MaxBodyBytes)
	if apiErr != nil {
		s.recordRequest(req.Model, statusClientError)
		apierrors.WriteError(w, apiErr)
		return
	}

	resp, c, apiErr := s.complete(r.Context(), cfg, req)
	if apiErr != nil {
		s.recordRequest(req.Model, c.status)
		if c.status == statusBackendError {
			s.saveAudit(r.Context(), requestID, req.Model, c, start)
		}
		apierrors.WriteError(w, apiErr)
		return
	}

	s.recordRequest(req.Model, c.status)
	s.saveAudit(r.Context(), requestID, req.Model, c, start)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("failed to encode completion response", "error", err, "request_id", requestID)
	}
}

func decodeRequest(w http.ResponseWriter, r *http.Request, maxBytes int64) (openai.ChatCompletionRequest, *apierrors.Error) {
	var req openai.ChatCompletionRequest

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return req, invalidRequest(http.StatusRequestEntityTooLarge, "request body too large", "", "request_too_large")
		}
		return req, invalidRequest(http.StatusBadRequest, "failed to read request body", "", "")
	}

	if err := json.Unmarshal(body, &req); err != nil {
		return req, invalidRequest(http.StatusBadRequest, "invalid JSON payload: "+err.Error(), "", "invalid_json")
	}
	if err := req.Validate(); err != nil {
		var verr *openai.ValidationError
		if errors.As(err, &verr) {
			return req, invalidRequest(http.StatusBadRequest, verr.Message, verr.Param, "invalid_value")
		}
		return req, invalidRequest(http.StatusBadRequest, err.Error(), "", "")
	}
	return req, nil
}

// complete runs normalizer, backend and conformance for a validated request.
func (s *Service) complete(ctx context.Context, cfg *config.Config, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, completion, *apierrors.Error) {
	c := completion{status: statusClientError}
	requestID := requestIDFromContext(ctx)

	route, found := cfg.RouteByModel(req.Model)
	if !found {
		return openai.ChatCompletionResponse{}, c, invalidRequest(http.StatusBadRequest, "unknown model: "+req.Model, "model", "model_not_found")
	}
	c.route = route

	instr, err := chat.BuildInstruction(req.ChatMessages(), req.RequiresJSON(), req.StructureHint())
	if err != nil {
		var missing *chat.MissingUserMessageError
		if errors.As(err, &missing) {
			return openai.ChatCompletionResponse{}, c, invalidRequest(http.StatusBadRequest, err.Error(), "messages", "missing_user_message")
		}
		return openai.ChatCompletionResponse{}, c, invalidRequest(http.StatusBadRequest, err.Error(), "messages", "")
	}
	c.instr = instr

	be, err := s.backends.For(route)
	if err != nil {
		s.logger.Error("no backend for route", "error", err, "model", route.ModelName, "request_id", requestID)
		c.status = statusBackendError
		return openai.ChatCompletionResponse{}, c, &apierrors.Error{
			Status:  http.StatusInternalServerError,
			Type:    apierrors.TypeInternal,
			Message: "no backend configured for model",
			Code:    "internal_server_error",
		}
	}

	s.logger.Info("processing chat completion",
		"model", req.Model,
		"upstream_model", route.Params.Model,
		"backend", route.Params.Backend,
		"messages", len(req.Messages),
		"requires_json", instr.RequiresJSON,
		"request_id", requestID,
	)

	callStart := s.now()
	text, err := be.Complete(ctx, backend.Call{
		Route:       route,
		Instruction: instr,
		Options:     callOptions(req),
	})
	if s.metrics != nil {
		s.metrics.RecordBackendCall(route.Params.Backend, s.now().Sub(callStart))
	}

	c.status = statusSuccess
	if err != nil {
		s.logger.Error("backend call failed", "error", err, "model", req.Model, "request_id", requestID)
		s.recordBackendError(route.Params.Backend, err)
		if !instr.RequiresJSON {
			c.status = statusBackendError
			return openai.ChatCompletionResponse{}, c, backendFailure(err)
		}
		text = errorPayload(err)
		c.status = statusErrorPayload
	}

	result := s.engine.Conform(text, instr.RequiresJSON)
	c.strategy = result.Strategy
	if s.metrics != nil && instr.RequiresJSON {
		s.metrics.RecordConformance(string(result.Strategy))
	}

	usage := openai.EstimateUsage(req.Messages, result.Payload)
	return openai.NewChatCompletionResponse(req.Model, result.Payload, usage, s.now()), c, nil
}

func callOptions(req openai.ChatCompletionRequest) adapter.CallOptions {
	opts := adapter.CallOptions{Temperature: req.Temperature}
	if req.MaxTokens != nil {
		opts.MaxTokens = *req.MaxTokens
	}
	return opts
}

// errorPayload renders a backend failure as JSON so structured-output
// callers still receive parseable content.
func errorPayload(err error) string {
	body, mErr := json.Marshal(map[string]string{"error": err.Error()})
	if mErr != nil {
		return conform.Fallback(err.Error())
	}
	return string(body)
}

func backendFailure(err error) *apierrors.Error {
	var berr *backend.Error
	if errors.As(err, &berr) && berr.Timeout {
		return &apierrors.Error{
			Status:  http.StatusGatewayTimeout,
			Type:    apierrors.TypeTimeout,
			Message: "backend timeout",
			Code:    "backend_timeout",
		}
	}
	return &apierrors.Error{
		Status:  http.StatusBadGateway,
		Type:    apierrors.TypeBackend,
		Message: err.Error(),
		Code:    "backend_error",
	}
}

func invalidRequest(status int, message, param, code string) *apierrors.Error {
	return &apierrors.Error{
		Status:  status,
		Type:    apierrors.TypeInvalidRequest,
		Message: message,
		Param:   param,
		Code:    code,
	}
}

func (s *Service) recordRequest(model, status string) {
	if s.metrics != nil {
		s.metrics.RecordRequest(model, status)
	}
}

func (s *Service) recordBackendError(backendName string, err error) {
	if s.metrics == nil {
		return
	}
	kind := "transport"
	var berr *backend.Error
	if errors.As(err, &berr) {
		kind = berr.Kind()
	}
	s.metrics.RecordBackendError(backendName, kind)
}

func (s *Service) saveAudit(ctx context.Context, requestID, model string, c completion, start time.Time) {
	if s.audit == nil {
		return
	}
	rec := audit.NewRecord(s.now())
	rec.RequestID = requestID
	rec.Model = model
	rec.UpstreamModel = c.route.Params.Model
	rec.Backend = c.route.Params.Backend
	rec.RequiresJSON = c.instr.RequiresJSON
	rec.Strategy = string(c.strategy)
	rec.Status = c.status
	rec.DurationMS = s.now().Sub(start).Milliseconds()

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditSaveTimeout)
	defer cancel()
	if err := s.audit.Save(saveCtx, rec); err != nil {
		s.logger.Error("failed to save audit record", "error", err, "request_id", requestID)
	}
}

func (s *Service) HandleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, r, http.MethodGet)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(models.BuildListResponse(s.store.Load(), s.now())); err != nil {
		s.logger.Error("failed to encode models response", "error", err, "request_id", requestIDFromContext(r.Context()))
	}
}

func (s *Service) HandleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.HandleUnsupported(w, r)
		return
	}
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, r, http.MethodGet)
		return
	}

	endpoints := map[string]string{
		"chat_completions": "/v1/chat/completions",
		"health":           "/health",
		"models":           "/v1/models",
	}
	if cfg := s.store.Load(); cfg.Metrics.Enabled {
		endpoints["metrics"] = cfg.Metrics.Path
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"service":   ServiceName,
		"version":   ServiceVersion,
		"endpoints": endpoints,
	})
}

func (s *Service) HandleUnsupported(w http.ResponseWriter, r *http.Request) {
	apierrors.Write(
		w,
		http.StatusNotFound,
		apierrors.TypeNotFound,
		"path is not supported by this gateway",
		"",
		"not_found",
	)
}

func writeMethodNotAllowed(w http.ResponseWriter, r *http.Request, allow string) {
	w.Header().Set("Allow", allow)
	apierrors.Write(
		w,
		http.StatusMethodNotAllowed,
		apierrors.TypeInvalidRequest,
		"method not allowed",
		"",
		"method_not_allowed",
	)
}

func requestIDFromContext(ctx context.Context) string {
	v := ctx.Value(contextKeyRequestID)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func RequestIDFromContext(ctx context.Context) string {
	return requestIDFromContext(ctx)
}

func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, requestID)
}
