package atom

// Config is the process-wide, bounds-checked tuning surface described in
// spec.md §3/§6. It is passed by reference into every update_stats call as
// an immutable snapshot; the engine never mutates it mid-call.
type Config struct {
	Authority AgentID
	Paused    bool

	AlphaFast        uint8
	AlphaSlow        uint8
	AlphaQualityUp   uint8
	AlphaQualityDown uint8
	AlphaBurstUp     uint8
	AlphaBurstDown   uint8

	WeightVolatility uint8
	WeightBurst      uint8
	WeightSybil      uint8
	WeightNegative   uint8

	BurstThreshold   uint8
	BurstIncrement   uint8
	BurstDecayLinear uint8

	VelocityWindowSlots uint32
	VelocityBurstKick   uint8

	DiversityThreshold uint8

	ColdStartMin    uint64
	ColdStartMax    uint64
	ColdStartWeight uint16

	EpochSlots     uint64
	InactivityStep uint16
	InactivityCap  uint16

	Tiers [4]TierThreshold

	PromotionMarginQuality    uint16
	PromotionMarginRisk       uint8
	PromotionMarginConfidence uint16

	// DemotionMarginQuality/Risk/Confidence are not named explicitly in
	// spec.md §6 (only promotion margins are given defaults there); this
	// implementation mirrors the promotion margins symmetrically, since
	// spec.md §4.6 requires a demotion margin to exist but leaves its size
	// unspecified. See DESIGN.md.
	DemotionMarginQuality    uint16
	DemotionMarginRisk       uint8
	DemotionMarginConfidence uint16

	EntropyGateDivisor         uint16
	EntropyGateMaxAmplification uint16
}

// TierThreshold is the (quality_min, risk_max, confidence_min) triple a tier
// requires. Tiers are modeled as a static, strictness-sorted array; tier
// classification is a linear scan with margin checks, no polymorphism.
type TierThreshold struct {
	QualityMin    uint16
	RiskMax       uint8
	ConfidenceMin uint16
}

// DefaultConfig returns the authoritative default set from spec.md §6.
func DefaultConfig(authority AgentID) Config {
	return Config{
		Authority: authority,
		Paused:    false,

		AlphaFast:        30,
		AlphaSlow:        5,
		AlphaQualityUp:   5,
		AlphaQualityDown: 25,
		AlphaBurstUp:     30,
		AlphaBurstDown:   70,

		WeightVolatility: 30,
		WeightBurst:      30,
		WeightSybil:      20,
		WeightNegative:   20,

		BurstThreshold:   30,
		BurstIncrement:   2,
		BurstDecayLinear: 1,

		VelocityWindowSlots: 5,
		VelocityBurstKick:   5,

		DiversityThreshold: 50,

		ColdStartMin:    5,
		ColdStartMax:    30,
		ColdStartWeight: 60,

		EpochSlots:     432000,
		InactivityStep: 500,
		InactivityCap:  5000,

		Tiers: [4]TierThreshold{
			{QualityMin: 1000, RiskMax: 70, ConfidenceMin: 2000}, // Bronze
			{QualityMin: 3000, RiskMax: 50, ConfidenceMin: 4000}, // Silver
			{QualityMin: 5000, RiskMax: 30, ConfidenceMin: 6000}, // Gold
			{QualityMin: 7000, RiskMax: 15, ConfidenceMin: 8000}, // Platinum
		},

		PromotionMarginQuality:    200,
		PromotionMarginRisk:       2,
		PromotionMarginConfidence: 200,

		DemotionMarginQuality:    200,
		DemotionMarginRisk:       2,
		DemotionMarginConfidence: 200,

		EntropyGateDivisor:          3,
		EntropyGateMaxAmplification: 3,
	}
}

// Validate enforces spec.md §7's ConfigInvalid bounds: alphas in 1..99,
// weights summing to 100 with none zero, strictly monotone tier thresholds.
func (c Config) Validate() error {
	alphas := map[string]uint8{
		"alpha_fast":         c.AlphaFast,
		"alpha_slow":         c.AlphaSlow,
		"alpha_quality_up":   c.AlphaQualityUp,
		"alpha_quality_down": c.AlphaQualityDown,
		"alpha_burst_up":     c.AlphaBurstUp,
		"alpha_burst_down":   c.AlphaBurstDown,
	}
	for name, v := range alphas {
		if v < 1 || v > 99 {
			return newErr(ErrConfigInvalid, name, int64(v))
		}
	}
	if c.AlphaFast <= c.AlphaSlow {
		return newErr(ErrConfigInvalid, "alpha_fast_vs_slow", int64(c.AlphaFast))
	}
	if c.AlphaQualityDown <= c.AlphaQualityUp {
		return newErr(ErrConfigInvalid, "alpha_quality_down_vs_up", int64(c.AlphaQualityDown))
	}

	weightSum := int64(c.WeightVolatility) + int64(c.WeightBurst) + int64(c.WeightSybil) + int64(c.WeightNegative)
	if weightSum != 100 {
		return newErr(ErrConfigInvalid, "weight_sum", weightSum)
	}
	if c.WeightVolatility == 0 || c.WeightBurst == 0 || c.WeightSybil == 0 || c.WeightNegative == 0 {
		return newErr(ErrConfigInvalid, "weight_zero", 0)
	}

	if c.ColdStartMin == 0 || c.ColdStartMin >= c.ColdStartMax {
		return newErr(ErrConfigInvalid, "cold_start_bounds", int64(c.ColdStartMin))
	}
	if c.EpochSlots == 0 {
		return newErr(ErrConfigInvalid, "epoch_slots", int64(c.EpochSlots))
	}
	if c.VelocityWindowSlots == 0 {
		return newErr(ErrConfigInvalid, "velocity_window_slots", int64(c.VelocityWindowSlots))
	}
	if c.EntropyGateDivisor == 0 || c.EntropyGateMaxAmplification == 0 {
		return newErr(ErrConfigInvalid, "entropy_gate", int64(c.EntropyGateDivisor))
	}

	var prev TierThreshold
	for i, t := range c.Tiers {
		if t.QualityMin == 0 || t.ConfidenceMin == 0 {
			return newErr(ErrConfigInvalid, "tier_threshold_zero", int64(i))
		}
		if i > 0 {
			if t.QualityMin <= prev.QualityMin || t.ConfidenceMin <= prev.ConfidenceMin || t.RiskMax >= prev.RiskMax {
				return newErr(ErrConfigInvalid, "tier_threshold_monotone", int64(i))
			}
		}
		prev = t
	}
	return nil
}

// ConfigProposal is the two-phase propose/commit helper spec.md §5 requires
// ("Config is process-wide with two-phase updates: propose then commit with
// bounds checking"). A host gates Commit behind its own timelock or
// multi-party approval; the engine only enforces bounds.
type ConfigProposal struct {
	proposer AgentID
	next     Config
	staged   bool
}

// Propose stages a new config, validating its bounds immediately so a bad
// proposal is rejected before it can ever be committed. The caller must be
// the current config's authority.
func Propose(current Config, proposer AgentID, next Config) (*ConfigProposal, error) {
	if proposer != current.Authority {
		return nil, newErr(ErrUnauthorized, "authority", 0)
	}
	if err := next.Validate(); err != nil {
		return nil, err
	}
	return &ConfigProposal{proposer: proposer, next: next, staged: true}, nil
}

// Commit finalizes a staged proposal, returning the config to install. It
// re-validates in case the proposal was constructed long before being
// committed and the caller wants a final safety check.
func (p *ConfigProposal) Commit(committer AgentID) (Config, error) {
	if !p.staged {
		return Config{}, newErr(ErrConfigInvalid, "proposal_not_staged", 0)
	}
	if committer != p.proposer {
		return Config{}, newErr(ErrUnauthorized, "committer", 0)
	}
	if err := p.next.Validate(); err != nil {
		return Config{}, err
	}
	p.staged = false
	return p.next, nil
}
