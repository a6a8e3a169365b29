package sentinel

// Method names, in the fixed order results and explanations are reported.
const (
	MethodRules     = "rules"
	MethodLLM       = "llm"
	MethodEmbedding = "embedding"
)

// Vote is one detector's verdict. A vote either carries a judgment (Err nil)
// or the reason the detector could not judge.
type Vote struct {
	Method     string
	Suspicious bool
	Err        error
}

// Judged returns a vote carrying a judgment.
func Judged(method string, suspicious bool) Vote {
	return Vote{Method: method, Suspicious: suspicious}
}

// Failed returns a vote for a detector that could not judge.
func Failed(method string, err error) Vote {
	return Vote{Method: method, Err: err}
}

// CountsAsSuspicious applies the fail-open rule: a failed detector votes "not
// suspicious". It lowers the number of agreeing detectors by one and never
// disables consensus.
func (v Vote) CountsAsSuspicious() bool {
	return v.Err == nil && v.Suspicious
}

// Label is the metrics label of the vote.
func (v Vote) Label() string {
	switch {
	case v.Err != nil:
		return "failed"
	case v.Suspicious:
		return "suspicious"
	default:
		return "clear"
	}
}
