// Package vigil validates agent tool calls for confidentiality, integrity
// and availability before they run.
package vigil

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"nexus/internal/guardian/metrics"
)

const (
	VerdictAllow = "ALLOW"
	VerdictDeny  = "DENY"

	CheckConfidentiality = "confidentiality"
	CheckIntegrity       = "integrity"
	CheckAvailability    = "availability"

	// MaxArgumentLength bounds the rendered length of one argument value.
	MaxArgumentLength = 10_000

	DefaultRateLimit = 100
	DefaultWindow    = 60 * time.Second
)

// DefaultAllowedTools is the tool allow-list used when none is configured.
var DefaultAllowedTools = []string{
	"search",
	"calculator",
	"calendar",
	"weather",
	"translator",
	"summarizer",
	"document_reader",
}

var suspiciousSequences = []string{";", "|", "`", "$("}

// Verdict is the validation outcome. Verdict is ALLOW only when every check passed.
type Verdict struct {
	Verdict string          `json:"verdict"`
	Reasons []string        `json:"reasons"`
	Checks  map[string]bool `json:"checks"`
}

// Allowed reports whether the call may run.
func (v Verdict) Allowed() bool { return v.Verdict == VerdictAllow }

// Validator checks tool calls. Rate state lives in the injected WindowStore.
type Validator struct {
	allowed map[string]struct{}
	limit   int
	window  time.Duration
	store   WindowStore
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Validator)

func WithAllowedTools(tools []string) Option {
	return func(v *Validator) {
		v.allowed = make(map[string]struct{}, len(tools))
		for _, t := range tools {
			v.allowed[t] = struct{}{}
		}
	}
}

func WithRateLimit(limit int, window time.Duration) Option {
	return func(v *Validator) {
		if limit > 0 {
			v.limit = limit
		}
		if window > 0 {
			v.window = window
		}
	}
}

func WithStore(store WindowStore) Option {
	return func(v *Validator) {
		v.store = store
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) {
		v.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(v *Validator) {
		v.metrics = m
	}
}

func New(opts ...Option) *Validator {
	v := &Validator{
		limit:  DefaultRateLimit,
		window: DefaultWindow,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	WithAllowedTools(DefaultAllowedTools)(v)
	for _, opt := range opts {
		opt(v)
	}
	if v.store == nil {
		v.store = NewInMemoryWindowStore()
	}
	return v
}

// Check runs all three checks; every failing check adds a reason. The call is
// counted against the caller's per-tool window only when that window has room,
// whatever the other checks decide.
func (v *Validator) Check(ctx context.Context, toolName string, args map[string]any, callerID string) (Verdict, error) {
	out := Verdict{Reasons: []string{}, Checks: make(map[string]bool, 3)}

	_, known := v.allowed[toolName]
	out.Checks[CheckConfidentiality] = known
	if !known {
		out.Reasons = append(out.Reasons, fmt.Sprintf("Tool '%s' is not in the allow-list.", toolName))
	}

	integrity := true
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, key := range keys {
		value := render(args[key])
		if utf8.RuneCountInString(value) > MaxArgumentLength {
			integrity = false
			out.Reasons = append(out.Reasons, fmt.Sprintf("Argument '%s' exceeds maximum length.", key))
		}
		if containsSuspicious(value) {
			integrity = false
			out.Reasons = append(out.Reasons, fmt.Sprintf("Argument '%s' contains suspicious characters.", key))
		}
	}
	out.Checks[CheckIntegrity] = integrity

	res, err := v.store.Allow(ctx, rateKey(callerID, toolName), v.limit, v.window)
	if err != nil {
		return Verdict{}, fmt.Errorf("rate window for %s: %w", toolName, err)
	}
	out.Checks[CheckAvailability] = res.Allowed
	if !res.Allowed {
		out.Reasons = append(out.Reasons, fmt.Sprintf("Rate limit exceeded for tool '%s' (%d/%d in last %ds).",
			toolName, res.Count, res.Limit, int(v.window.Seconds())))
	}

	out.Verdict = VerdictAllow
	if !known || !integrity || !res.Allowed {
		out.Verdict = VerdictDeny
		v.logger.WarnContext(ctx, "tool call denied",
			"tool", toolName,
			"caller_id", callerID,
			"reasons", out.Reasons,
		)
	}
	v.metrics.IncToolVerdict(out.Verdict)
	return out, nil
}

// render stringifies an argument value: strings verbatim, everything else as JSON.
func render(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprint(value)
	}
	return string(b)
}

func containsSuspicious(value string) bool {
	for _, seq := range suspiciousSequences {
		if strings.Contains(value, seq) {
			return true
		}
	}
	return false
}

// rateKey length-prefixes the caller so no caller/tool pair can spell
// another's key.
func rateKey(callerID, toolName string) string {
	return strconv.Itoa(len(callerID)) + ":" + callerID + ":" + toolName
}
