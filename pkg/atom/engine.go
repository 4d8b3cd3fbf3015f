package atom

// NegThreshold is the score below which a feedback event counts as
// negative for neg_count and neg_pressure purposes (§4.1, spec: 40). It is
// a fixed constant, not part of Config — spec.md §6's configuration option
// list never exposes it for tuning.
const NegThreshold uint8 = 40

// EventSink is the host-emitted-event capability of spec.md §9: a
// function-like value the engine calls at most once per successful update,
// after every state write, with no heap allocation of its own beyond the
// TierChange value itself.
type EventSink interface {
	Emit(TierChange)
}

// NoopSink discards every event; the default for tests and for hosts that
// have not wired persistence/streaming yet.
type NoopSink struct{}

// Emit implements EventSink.
func (NoopSink) Emit(TierChange) {}

// Engine is the host-facing entry point: it holds the process-wide Config
// lifecycle (init_config) and dispatches update_stats/initialize_stats.
// Engine itself still performs no I/O — Emit is the caller's sink, not a
// network call the engine makes.
type Engine struct {
	cfg       Config
	cfgInit   bool
	sink      EventSink
}

// NewEngine returns an Engine with no config installed yet; InitConfig must
// be called before UpdateStats will accept any event.
func NewEngine(sink EventSink) *Engine {
	if sink == nil {
		sink = NoopSink{}
	}
	return &Engine{sink: sink}
}

// InitConfig creates the process-wide config once, per spec.md §6. A
// second call returns AlreadyInitialized; propose/commit (config.go) is the
// path for later changes.
func (e *Engine) InitConfig(authority AgentID, initial Config) error {
	if e.cfgInit {
		return newErr(ErrAlreadyInitialized, "config", 0)
	}
	if initial.Authority != authority {
		return newErr(ErrUnauthorized, "authority", 0)
	}
	if err := initial.Validate(); err != nil {
		return err
	}
	e.cfg = initial
	e.cfgInit = true
	return nil
}

// InstallConfig installs a config produced by ConfigProposal.Commit. It does
// not go through the AlreadyInitialized check — that only guards the very
// first init_config call.
func (e *Engine) InstallConfig(cfg Config) {
	e.cfg = cfg
	e.cfgInit = true
}

// Config returns the currently installed config snapshot.
func (e *Engine) Config() Config { return e.cfg }

// InitializeStats zero-inits AtomStats for an agent, per spec.md §6.
// existing is nil when the host has no record for this agent yet; a
// non-nil existing record means the agent was already initialized.
func (e *Engine) InitializeStats(existing *AtomStats) (AtomStats, error) {
	if existing != nil {
		return AtomStats{}, newErr(ErrAlreadyInitialized, "agent", 0)
	}
	return NewAtomStats(), nil
}

// UpdateStats runs one feedback event through the engine, per spec.md §4.7.
// On any error the state is left byte-identical to how it was passed in.
func (e *Engine) UpdateStats(state *AtomStats, event FeedbackEvent) (TierChange, error) {
	change, err := apply(state, event, e.cfg)
	if err != nil {
		return TierChange{}, err
	}
	e.sink.Emit(change)
	return change, nil
}

// apply is the pure core of update_stats: (prior AtomStats, FeedbackEvent,
// Config) -> (new AtomStats, TierChange). It is unexported so tests in this
// package can drive it directly without needing an Engine/EventSink, and so
// property tests can iterate it thousands of times with zero allocation
// overhead from the sink.
//
// spec.md's §4.7 signature lists `current_slot` as a parameter distinct
// from the event, but §3 already gives FeedbackEvent its own `slot` field;
// carrying two slot values that could disagree would be a second source of
// truth for the same logical time unit, so this implementation treats
// event.Slot as current_slot throughout. See DESIGN.md.
func apply(state *AtomStats, event FeedbackEvent, cfg Config) (TierChange, error) {
	if event.Score > 100 {
		return TierChange{}, newErr(ErrInvalidScore, "score", int64(event.Score))
	}
	if event.Slot < state.LastFeedbackSlot {
		return TierChange{}, newErr(ErrSlotRegression, "slot", int64(event.Slot))
	}
	if cfg.Paused {
		return TierChange{}, newErr(ErrPaused, "", 0)
	}
	if err := cfg.Validate(); err != nil {
		return TierChange{}, err
	}

	next := *state
	before := next.TrustTier

	// §4.6's decay detector and velocity check both read the slot gap
	// against the *old* last_feedback_slot, before §4.1's bookkeeping
	// overwrites it.
	var epochsInactive uint64
	var rapid bool
	if next.FeedbackCount > 0 {
		delta := uint64(event.Slot - next.LastFeedbackSlot)
		epochsInactive = delta / cfg.EpochSlots
		rapid = delta < uint64(cfg.VelocityWindowSlots)
	}

	// 4.1 Bookkeeping
	if next.FeedbackCount == 0 {
		next.FirstFeedbackSlot = event.Slot
		next.MinScore = event.Score
		next.MaxScore = event.Score
		next.MinScoreSet = true
	} else {
		if event.Score < next.MinScore {
			next.MinScore = event.Score
		}
		if event.Score > next.MaxScore {
			next.MaxScore = event.Score
		}
	}
	next.FeedbackCount++
	if event.Score < NegThreshold {
		next.NegCount++
	}
	next.LastFeedbackSlot = event.Slot

	// 4.2 Diversity estimator
	if hllObserve(&next.HLLPacked, event.CallerHash, event.AgentID) {
		next.UpdatesSinceHLLChange = 0
	} else {
		next.UpdatesSinceHLLChange = satIncU16(next.UpdatesSinceHLLChange)
	}

	// 4.3 Caller-recency tracker
	fp := fingerprint(event.CallerHash)
	rec := classifyCaller(&next, fp, RingN/2)

	// 4.4 Burst / velocity pressure
	if rec.IsRecent {
		next.BurstPressure = satAddU8(next.BurstPressure, cfg.BurstIncrement)
	} else {
		next.BurstPressure = satSubU8(next.BurstPressure, cfg.BurstDecayLinear)
	}
	if rapid {
		next.VelocityBurstCount = satIncU16(next.VelocityBurstCount)
		next.BurstPressure = satAddU8(next.BurstPressure, cfg.VelocityBurstKick)
	}

	// 4.5 EMA bank
	scoreScaled := uint32(event.Score) * 100
	next.EMAScoreFast = emaStep(next.EMAScoreFast, cfg.AlphaFast, scoreScaled)
	next.EMAScoreSlow = emaStep(next.EMAScoreSlow, cfg.AlphaSlow, scoreScaled)
	next.EMAVolatility = emaStep(next.EMAVolatility, cfg.AlphaFast, uint32(absDiffU16(next.EMAScoreFast, next.EMAScoreSlow)))
	next.EMAQuality = qualityEMAStep(next.EMAQuality, event.Score, cfg, next.UpdatesSinceHLLChange)
	var negIndicator uint32
	if event.Score < NegThreshold {
		negIndicator = scale10000
	}
	// No alpha is named for neg_pressure's own smoothing in spec.md §6;
	// alpha_quality_down is reused since neg_pressure is, like the quality
	// down-path, a punitive/slow-to-forgive signal. See DESIGN.md.
	next.NegPressure = emaStep(next.NegPressure, cfg.AlphaQualityDown, negIndicator)

	// 4.6 Derivation, cold-start, inactivity decay, tier classification
	estimate := hllEstimate(&next.HLLPacked, HLLRegisters)
	next.DiversityRatio = diversityRatio(estimate, next.FeedbackCount)
	next.QualityScore = qualityScore(next.EMAQuality, next.EMAVolatility)
	next.RiskScore = riskScore(next.EMAVolatility, next.BurstPressure, next.DiversityRatio, next.NegPressure, next.FeedbackCount, cfg)
	next.Confidence = confidenceScore(next.FeedbackCount, estimate, epochsInactive, cfg)
	next.LoyaltyScore = loyaltyStep(next.LoyaltyScore, rec.IsRecent, cfg)
	next.TrustTier = classifyTier(next.TrustTier, next.QualityScore, next.RiskScore, next.Confidence, next.FeedbackCount, next.DiversityRatio, cfg)

	*state = next

	return TierChange{
		AgentID:       event.AgentID,
		Before:        before,
		After:         next.TrustTier,
		Quality:       next.QualityScore,
		Risk:          next.RiskScore,
		Confidence:    next.Confidence,
		Loyalty:       next.LoyaltyScore,
		FeedbackCount: next.FeedbackCount,
	}, nil
}
