package audit

// EventCategory classifies audit events by their primary purpose.
type EventCategory string

const (
	// CategoryCompliance covers events with regulatory significance:
	// privacy budget movements, impact assessments, policy decisions.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to attack detection and forensics.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine routing and completion events.
	CategoryOperations EventCategory = "operations"
)

// Layer tags the architecture layer that produced an event.
type Layer string

const (
	LayerGateway    Layer = "gateway"
	LayerGuardian   Layer = "guardian"
	LayerGovernance Layer = "governance"
	LayerAgent      Layer = "agent"
	LayerKnowledge  Layer = "knowledge"
)

type EventKind string

const (
	// Guardian events
	EventSentinelCheck   EventKind = "sentinel_check"
	EventRiskScored      EventKind = "risk_scored"
	EventModelRouted     EventKind = "model_routed"
	EventPromptHardened  EventKind = "prompt_hardened"
	EventToolCallChecked EventKind = "tool_call_checked"

	// Governance events
	EventPolicyEvaluated EventKind = "policy_evaluated"
	EventBudgetConsumed  EventKind = "budget_consumed"
	EventBudgetRefused   EventKind = "budget_refused"
	EventBudgetReset     EventKind = "budget_reset"
	EventDPIAGenerated   EventKind = "dpia_generated"

	// Gateway events
	EventRequestBlocked   EventKind = "request_blocked"
	EventRequestCompleted EventKind = "request_completed"
)

var eventCategories = map[EventKind]EventCategory{
	EventPolicyEvaluated: CategoryCompliance,
	EventBudgetConsumed:  CategoryCompliance,
	EventBudgetRefused:   CategoryCompliance,
	EventBudgetReset:     CategoryCompliance,
	EventDPIAGenerated:   CategoryCompliance,

	EventSentinelCheck:   CategorySecurity,
	EventToolCallChecked: CategorySecurity,
	EventRequestBlocked:  CategorySecurity,

	EventRiskScored:       CategoryOperations,
	EventModelRouted:      CategoryOperations,
	EventPromptHardened:   CategoryOperations,
	EventRequestCompleted: CategoryOperations,
}

// Category returns the EventCategory for this event.
// Unknown events default to CategoryOperations.
func (e EventKind) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Entry is one immutable link of the chain. IntegrityHash covers every other
// field plus PreviousHash; the first entry links to GenesisHash.
type Entry struct {
	ID            string         `json:"id"`
	TimestampUS   int64          `json:"timestamp_us"`
	Event         EventKind      `json:"event"`
	CallerID      string         `json:"caller_id"`
	Layer         Layer          `json:"layer"`
	Component     string         `json:"component"`
	Details       map[string]any `json:"details"`
	IntegrityHash string         `json:"integrity_hash"`
	PreviousHash  string         `json:"previous_hash"`
}
