package httptransport

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"nexus/internal/governance/dpia"
	"nexus/internal/governance/policy"
	"nexus/internal/guardian/apex"
	"nexus/internal/guardian/mars"
	"nexus/internal/guardian/sentinel"
	"nexus/internal/guardian/vigil"
	"nexus/internal/pipeline"
	dErrors "nexus/pkg/domain-errors"
	"nexus/pkg/platform/audit"
	"nexus/pkg/platform/httputil"
	"nexus/pkg/requestcontext"
)

const (
	serviceName     = "nexus"
	anonymousCaller = "anonymous"
)

// Service is the pipeline surface the handlers delegate to.
type Service interface {
	Process(ctx context.Context, req pipeline.Request) (*pipeline.Outcome, error)
	CheckInjection(ctx context.Context, callerID, text string) sentinel.Result
	ScoreRisk(ctx context.Context, callerID, text, language string) mars.Score
	Route(ctx context.Context, callerID string, confidence, budgetRemaining float64) apex.Decision
	Harden(ctx context.Context, callerID, prompt, systemPrompt string) string
	CheckToolCall(ctx context.Context, callerID, toolName string, args map[string]any) (vigil.Verdict, error)
	EvaluatePolicy(ctx context.Context, callerID string, in policy.Context) policy.Decision
	Consume(ctx context.Context, callerID string, epsilon float64) (bool, float64, error)
	Remaining(ctx context.Context, callerID string) float64
	ResetBudget(ctx context.Context, actorID, callerID string) float64
	Assess(ctx context.Context, callerID string, in dpia.Input) (*dpia.Report, error)
	Chain() *audit.Chain
}

// HealthCheck probes one dependency. A nil error means healthy.
type HealthCheck func(ctx context.Context) error

// Handler wires the HTTP surface to the pipeline. It holds no decision logic.
type Handler struct {
	service Service
	checks  map[string]HealthCheck
	logger  *slog.Logger
}

type Option func(*Handler)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithHealthCheck adds a named dependency probe to GET /health.
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(h *Handler) {
		if check != nil {
			h.checks[name] = check
		}
	}
}

func NewHandler(service Service, opts ...Option) *Handler {
	h := &Handler{
		service: service,
		checks:  make(map[string]HealthCheck),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the /v1 endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/process", h.HandleProcess)

	r.Post("/v1/sentinel/check", h.HandleSentinelCheck)
	r.Post("/v1/mars/score", h.HandleRiskScore)
	r.Post("/v1/apex/route", h.HandleRoute)
	r.Post("/v1/shield/enhance", h.HandleEnhance)
	r.Post("/v1/vigil/check", h.HandleToolCheck)

	r.Post("/v1/policy/evaluate", h.HandlePolicyEvaluate)
	r.Get("/v1/privacy/budget/{caller_id}", h.HandleBudget)
	r.Post("/v1/privacy/consume", h.HandleConsume)
	r.Post("/v1/privacy/reset/{caller_id}", h.HandleReset)
	r.Post("/v1/dpia/generate", h.HandleAssess)

	r.Get("/v1/audit", h.HandleAuditList)
	r.Get("/v1/audit/verify", h.HandleAuditVerify)
	r.Get("/v1/audit/{id}", h.HandleAuditEntry)
}

// callerID is the identity established in front of this service, or
// "anonymous" when none was forwarded.
func callerID(ctx context.Context) string {
	if id := requestcontext.CallerID(ctx); id != "" {
		return id
	}
	return anonymousCaller
}

// HandleProcess handles POST /v1/process.
func (h *Handler) HandleProcess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[ProcessRequest](w, r, h.logger)
	if !ok {
		return
	}
	if req.CallerID == "" {
		req.CallerID = requestcontext.CallerID(ctx)
	}

	outcome, err := h.service.Process(ctx, req.Request)
	if err != nil {
		h.logger.ErrorContext(ctx, "request processing failed",
			"request_id", requestcontext.RequestID(ctx),
			"caller_id", req.CallerID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "request processed",
		"request_id", outcome.RequestID,
		"caller_id", req.CallerID,
		"allowed", outcome.Allowed,
		"stage", outcome.Stage,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, outcome)
}

// HandleSentinelCheck handles POST /v1/sentinel/check.
func (h *Handler) HandleSentinelCheck(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.DecodeAndPrepare[TextRequest](w, r, h.logger)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.service.CheckInjection(r.Context(), callerID(r.Context()), req.Text))
}

// HandleRiskScore handles POST /v1/mars/score.
func (h *Handler) HandleRiskScore(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.DecodeAndPrepare[TextRequest](w, r, h.logger)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.service.ScoreRisk(r.Context(), callerID(r.Context()), req.Text, req.Language))
}

// HandleRoute handles POST /v1/apex/route.
func (h *Handler) HandleRoute(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.DecodeAndPrepare[RouteRequest](w, r, h.logger)
	if !ok {
		return
	}
	d := h.service.Route(r.Context(), callerID(r.Context()), *req.Confidence, *req.BudgetRemaining)
	httputil.WriteJSON(w, http.StatusOK, d)
}

// HandleEnhance handles POST /v1/shield/enhance.
func (h *Handler) HandleEnhance(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.DecodeAndPrepare[EnhanceRequest](w, r, h.logger)
	if !ok {
		return
	}
	enhanced := h.service.Harden(r.Context(), callerID(r.Context()), req.Prompt, req.SystemPrompt)
	httputil.WriteJSON(w, http.StatusOK, EnhanceResponse{EnhancedPrompt: enhanced})
}

// HandleToolCheck handles POST /v1/vigil/check.
func (h *Handler) HandleToolCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[ToolCallRequest](w, r, h.logger)
	if !ok {
		return
	}
	caller := req.CallerID
	if caller == "" {
		caller = callerID(ctx)
	}

	verdict, err := h.service.CheckToolCall(ctx, caller, req.ToolName, req.Args)
	if err != nil {
		h.logger.ErrorContext(ctx, "tool call check failed",
			"caller_id", caller,
			"tool", req.ToolName,
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "tool call check unavailable"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, verdict)
}

// HandlePolicyEvaluate handles POST /v1/policy/evaluate.
func (h *Handler) HandlePolicyEvaluate(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.DecodeAndPrepare[PolicyRequest](w, r, h.logger)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.service.EvaluatePolicy(r.Context(), callerID(r.Context()), req.Context))
}

// HandleBudget handles GET /v1/privacy/budget/{caller_id}.
func (h *Handler) HandleBudget(w http.ResponseWriter, r *http.Request) {
	caller := chi.URLParam(r, "caller_id")
	httputil.WriteJSON(w, http.StatusOK, BudgetResponse{
		CallerID:         caller,
		RemainingEpsilon: h.service.Remaining(r.Context(), caller),
	})
}

// HandleConsume handles POST /v1/privacy/consume.
func (h *Handler) HandleConsume(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.DecodeAndPrepare[ConsumeRequest](w, r, h.logger)
	if !ok {
		return
	}
	success, remaining, err := h.service.Consume(r.Context(), req.CallerID, *req.Epsilon)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ConsumeResponse{
		Success:          success,
		RemainingEpsilon: remaining,
		CallerID:         req.CallerID,
	})
}

// HandleReset handles POST /v1/privacy/reset/{caller_id}.
func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := chi.URLParam(r, "caller_id")
	remaining := h.service.ResetBudget(ctx, callerID(ctx), caller)

	h.logger.InfoContext(ctx, "privacy budget reset",
		"caller_id", caller,
		"reset_by", callerID(ctx),
	)
	httputil.WriteJSON(w, http.StatusOK, BudgetResponse{CallerID: caller, RemainingEpsilon: remaining})
}

// HandleAssess handles POST /v1/dpia/generate. ?format=markdown renders the
// report as markdown instead of JSON.
func (h *Handler) HandleAssess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[AssessRequest](w, r, h.logger)
	if !ok {
		return
	}
	report, err := h.service.Assess(ctx, callerID(ctx), req.Input())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if r.URL.Query().Get("format") == "markdown" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, report.ToMarkdown())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

// HandleAuditList handles GET /v1/audit.
func (h *Handler) HandleAuditList(w http.ResponseWriter, r *http.Request) {
	entries := h.service.Chain().Entries("")
	httputil.WriteJSON(w, http.StatusOK, AuditListResponse{Count: len(entries), Entries: entries})
}

// HandleAuditEntry handles GET /v1/audit/{id}.
func (h *Handler) HandleAuditEntry(w http.ResponseWriter, r *http.Request) {
	entries := h.service.Chain().Entries(chi.URLParam(r, "id"))
	if len(entries) == 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "audit entry not found"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entries[0])
}

// HandleAuditVerify handles GET /v1/audit/verify.
func (h *Handler) HandleAuditVerify(w http.ResponseWriter, r *http.Request) {
	chain := h.service.Chain()
	httputil.WriteJSON(w, http.StatusOK, VerifyResponse{
		Intact:        chain.Verify(),
		Count:         chain.Count(),
		MirrorEnabled: chain.MirrorEnabled(),
	})
}

// HandleHealth handles GET /health. Failing dependencies mark the service
// degraded; the decision core keeps serving without them.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "healthy", Service: serviceName}
	if len(h.checks) > 0 {
		resp.Components = make(map[string]string, len(h.checks))
	}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.WarnContext(ctx, "health check failed", "component", name, "error", err)
			resp.Components[name] = "unavailable"
			resp.Status = "degraded"
			continue
		}
		resp.Components[name] = "ok"
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
