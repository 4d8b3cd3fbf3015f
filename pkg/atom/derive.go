package atom

// qualityScore implements spec.md §4.6: quality = ema_quality scaled down by
// how volatile the score has been, i.e. score * (1 - normalized_volatility).
func qualityScore(emaQuality, emaVolatility uint16) uint16 {
	consistencyBonus := scale10000 - emaVolatility // emaVolatility already clamped to [0,10000]
	v := int64(emaQuality) * int64(consistencyBonus) / scale10000
	return clampU16(v, 0, scale10000)
}

// riskScore implements the weighted-sum risk formula of spec.md §4.6. The
// sybil term is only applied once feedback_count has reached cold_start_min
// — with too few samples the diversity estimate itself is not trustworthy.
func riskScore(emaVolatility uint16, burstPressure uint8, diversityRatio uint8, negPressure uint16, feedbackCount uint64, cfg Config) uint8 {
	var total int64

	total += int64(cfg.WeightVolatility) * int64(emaVolatility) / 100 / 100
	total += int64(cfg.WeightBurst) * (int64(burstPressure) * 100 / 255) / 100

	if feedbackCount >= cfg.ColdStartMin {
		sybilPct := 100 - int64(diversityRatio)*100/255
		total += int64(cfg.WeightSybil) * sybilPct / 100
	}

	total += int64(cfg.WeightNegative) * int64(negPressure) / 100 / 100

	return clampU8(total, 0, 100)
}

// confidenceScore implements spec.md §4.6's confidence formula: a base
// proportional to feedback volume and estimated unique callers, minus a
// cold-start penalty that fades as feedback_count approaches cold_start_max,
// minus an inactivity decay computed against the slot gap observed *before*
// bookkeeping overwrote last_feedback_slot.
func confidenceScore(feedbackCount, estimate uint64, epochsInactive uint64, cfg Config) uint16 {
	base := feedbackCount*50 + estimate*20
	if base > scale10000 {
		base = scale10000
	}

	var coldPenalty uint64
	if cfg.ColdStartMax > feedbackCount {
		coldPenalty = (cfg.ColdStartMax - feedbackCount) * uint64(cfg.ColdStartWeight)
	}

	inactivityDecay := epochsInactive * uint64(cfg.InactivityStep)
	if inactivityDecay > uint64(cfg.InactivityCap) {
		inactivityDecay = uint64(cfg.InactivityCap)
	}

	v := int64(base) - int64(coldPenalty) - int64(inactivityDecay)
	return clampU16(v, 0, scale10000)
}

// loyaltyStep smooths a (1 - is_recent) indicator: a brand-new caller
// contributes full credit, a repeat caller contributes none this round.
// spec.md §9 resolves the open question of whether loyalty feeds risk: it
// does not, it is reported only.
func loyaltyStep(old uint16, isRecent bool, cfg Config) uint16 {
	indicator := uint32(scale10000)
	if isRecent {
		indicator = 0
	}
	return emaStep(old, cfg.AlphaQualityUp, indicator)
}

// rawTier returns the highest tier whose plain (non-margin) thresholds are
// all satisfied, or TierUnrated if none are.
func rawTier(quality uint16, risk uint8, confidence uint16, cfg Config) Tier {
	best := TierUnrated
	for i, t := range cfg.Tiers {
		if quality >= t.QualityMin && risk <= t.RiskMax && confidence >= t.ConfidenceMin {
			best = Tier(i + 1)
		}
	}
	return best
}

// meetsMargin checks a tier's thresholds after applying a signed margin
// (positive margins make the bar stricter, used for promotion; negative
// margins loosen it, used for checking whether a demotion should actually
// happen).
func meetsMargin(tier Tier, quality uint16, risk uint8, confidence uint16, cfg Config, qMargin int32, rMargin int32, cMargin int32) bool {
	if tier == TierUnrated {
		return true
	}
	t := cfg.Tiers[tier-1]

	qNeed := int32(t.QualityMin) + qMargin
	if qNeed < 0 {
		qNeed = 0
	}
	rAllowed := int32(t.RiskMax) - rMargin
	cNeed := int32(t.ConfidenceMin) + cMargin
	if cNeed < 0 {
		cNeed = 0
	}

	return int32(quality) >= qNeed && int32(risk) <= rAllowed && int32(confidence) >= cNeed
}

// classifyTier applies hysteresis, the newcomer shield, and the diversity
// floor on top of the raw threshold scan, per spec.md §4.6.
func classifyTier(prev Tier, quality uint16, risk uint8, confidence uint16, feedbackCount uint64, diversityRatio uint8, cfg Config) Tier {
	candidate := rawTier(quality, risk, confidence, cfg)

	var next Tier
	switch {
	case candidate > prev:
		if meetsMargin(candidate, quality, risk, confidence, cfg,
			int32(cfg.PromotionMarginQuality), int32(cfg.PromotionMarginRisk), int32(cfg.PromotionMarginConfidence)) {
			next = candidate
		} else {
			next = prev
		}
	case candidate < prev:
		if meetsMargin(prev, quality, risk, confidence, cfg,
			-int32(cfg.DemotionMarginQuality), -int32(cfg.DemotionMarginRisk), -int32(cfg.DemotionMarginConfidence)) {
			next = prev // still within the demotion-protected band around prev's own thresholds
		} else {
			next = candidate // crossed T - demotion_margin: jump straight to the raw tier, no cooldown
		}
	default:
		next = prev
	}

	// Newcomer shield (§4.6): fresh agents cannot buy their way past
	// Bronze regardless of how good their scores look.
	if feedbackCount < cfg.ColdStartMax && next > TierBronze {
		next = TierBronze
	}

	// Diversity floor: once enough samples exist to trust the estimate, a
	// caller pool this concentrated cannot hold any tier at all, no matter
	// how high quality/confidence read — otherwise a handful of colluding
	// callers could walk an agent straight to Bronze+ on good scores alone.
	// This mirrors the newcomer shield's "absolute cap" shape; spec.md §8
	// scenario 2 is the concrete case this resolves. See DESIGN.md.
	if feedbackCount >= cfg.ColdStartMin && diversityRatio < cfg.DiversityThreshold {
		next = TierUnrated
	}

	return next
}
