package atom

// scale10000 is the fixed-point scale every EMA in this package uses.
const scale10000 = 10000

// emaStep applies the round-half-up fixed-point EMA formula from spec.md
// §4.5/§9: new = (alpha*input + (100-alpha)*old + 50) / 100, clamped to
// [0, 10000].
func emaStep(old uint16, alpha uint8, inputScaled uint32) uint16 {
	a := int64(alpha)
	v := a*int64(inputScaled) + (100-a)*int64(old) + 50
	v /= 100
	return clampU16(v, 0, scale10000)
}

// absDiffU16 is |a - b| for two fixed-point EMA values.
func absDiffU16(a, b uint16) uint16 {
	if a > b {
		return a - b
	}
	return b - a
}

// entropyAmplifier computes min(cap, 1 + updatesSinceHLLChange/divisor), the
// multiplier applied to alpha_quality_down when the diversity estimator has
// stagnated (§4.5). It must only ever amplify, never dampen — the inverted
// direction is the "entropy-gate backfire" bug class spec.md names.
func entropyAmplifier(updatesSinceHLLChange uint16, divisor, cap uint16) uint16 {
	amp := 1 + updatesSinceHLLChange/divisor
	if amp > cap {
		return cap
	}
	return amp
}

// qualityEMAStep applies the asymmetric quality EMA: alpha_quality_up when
// the new score is at or above the previous EMA's score-equivalent,
// alpha_quality_down (amplified by the entropy gate) otherwise. Getting the
// up/down asymmetry backwards would let an agent's quality score ratchet
// upward forever regardless of later bad behavior, which spec.md forbids.
func qualityEMAStep(old uint16, score uint8, cfg Config, updatesSinceHLLChange uint16) uint16 {
	prevScoreEquivalent := uint32(old) / 100
	if uint32(score) >= prevScoreEquivalent {
		return emaStep(old, cfg.AlphaQualityUp, uint32(score)*100)
	}
	amp := entropyAmplifier(updatesSinceHLLChange, cfg.EntropyGateDivisor, cfg.EntropyGateMaxAmplification)
	effectiveDown := uint32(cfg.AlphaQualityDown) * uint32(amp)
	if effectiveDown > 100 {
		effectiveDown = 100
	}
	return emaStep(old, uint8(effectiveDown), uint32(score)*100)
}
