package thoughtsig

// DummySignature is the sentinel written when no real signature is cached.
const DummySignature = "skip_thought_signature_validator"

// FillAction says what to do with one patch site.
type FillAction int

const (
	ActionKeep FillAction = iota
	ActionUseCached
	ActionUseDummy
)

// FillDecision is the outcome for a single patch site.
type FillDecision struct {
	Action    FillAction
	Signature string // set for ActionUseCached
	Key       uint64
	HasKey    bool
}

// FillStats aggregates decisions for logging and metrics.
type FillStats struct {
	TotalConsidered int
	KeptExisting    int
	CacheHits       int
	DummyFilled     int
}

// Policy controls how missing signatures are handled.
type Policy struct {
	TrustExisting  bool
	FillMissing    bool
	DummySignature string
}

// DefaultPolicy trusts existing signatures and fills missing ones with the
// sentinel dummy.
func DefaultPolicy() Policy {
	return Policy{
		TrustExisting:  true,
		FillMissing:    true,
		DummySignature: DummySignature,
	}
}

// Engine decides, per patch site, whether to keep, backfill from cache, or
// fall back to the dummy signature.
type Engine struct {
	store  *SignatureStore
	policy Policy
}

// NewEngine builds an engine over a shared store.
func NewEngine(store *SignatureStore, policy Policy) *Engine {
	if policy.DummySignature == "" {
		policy.DummySignature = DummySignature
	}
	return &Engine{store: store, policy: policy}
}

// Dummy returns the configured dummy signature.
func (e *Engine) Dummy() string { return e.policy.DummySignature }

// FillOne decides one patch site. required=false sites are never modified.
func (e *Engine) FillOne(key uint64, hasKey bool, existing string, required bool) FillDecision {
	decision := FillDecision{Action: ActionKeep, Key: key, HasKey: hasKey}

	if existing != "" && e.policy.TrustExisting {
		return decision
	}
	if !required || !e.policy.FillMissing {
		return decision
	}

	if hasKey {
		if signature, ok := e.store.Get(key); ok {
			decision.Action = ActionUseCached
			decision.Signature = signature
			return decision
		}
	}

	decision.Action = ActionUseDummy
	return decision
}

// ClassifyFill folds decisions into stats.
func ClassifyFill(decisions []FillDecision) FillStats {
	var stats FillStats
	for _, decision := range decisions {
		stats.TotalConsidered++
		switch decision.Action {
		case ActionKeep:
			stats.KeptExisting++
		case ActionUseCached:
			stats.CacheHits++
		case ActionUseDummy:
			stats.DummyFilled++
		}
	}
	return stats
}
