package atom

import "testing"

func TestQualityScoreReducedByVolatility(t *testing.T) {
	q1 := qualityScore(10000, 0)
	q2 := qualityScore(10000, 5000)
	if q2 >= q1 {
		t.Fatalf("higher volatility should reduce quality: q1=%d q2=%d", q1, q2)
	}
	if q1 != 10000 {
		t.Fatalf("zero volatility should leave quality at ema_quality, got %d", q1)
	}
}

func TestRiskScoreBounded(t *testing.T) {
	cfg := testConfig()
	r := riskScore(10000, 255, 0, 10000, 1000, cfg)
	if r > 100 {
		t.Fatalf("risk score must clamp to 100, got %d", r)
	}
}

func TestRiskScoreSybilTermGatedByMinimumSample(t *testing.T) {
	cfg := testConfig()
	lowSample := riskScore(0, 0, 0, 0, cfg.ColdStartMin-1, cfg)
	highSample := riskScore(0, 0, 0, 0, cfg.ColdStartMin, cfg)
	if lowSample != 0 {
		t.Fatalf("below minimum sample, sybil term must not contribute: got %d", lowSample)
	}
	if highSample == 0 {
		t.Fatalf("at minimum sample with diversity_ratio=0, sybil term should contribute risk")
	}
}

func TestConfidenceScorePenalizedByColdStartAndInactivity(t *testing.T) {
	cfg := testConfig()
	fresh := confidenceScore(1, 1, 0, cfg)
	mature := confidenceScore(1000, 500, 0, cfg)
	if fresh >= mature {
		t.Fatalf("a freshly initialized agent should have much lower confidence than a mature one: fresh=%d mature=%d", fresh, mature)
	}
	if fresh > 2000 {
		t.Fatalf("freshly initialized agents should have confidence <= 2000, got %d", fresh)
	}

	withDecay := confidenceScore(1000, 500, 10, cfg)
	if withDecay >= mature {
		t.Fatalf("inactivity decay should reduce confidence: mature=%d withDecay=%d", mature, withDecay)
	}
}

func TestNewcomerShieldCapsTierDuringColdStart(t *testing.T) {
	cfg := testConfig()
	tier := classifyTier(TierUnrated, 10000, 0, 10000, cfg.ColdStartMax-1, 255, cfg)
	if tier > TierBronze {
		t.Fatalf("newcomer shield should cap tier at Bronze during cold start, got %s", tier)
	}
}

func TestDiversityFloorCapsTierWhenCallerPoolIsConcentrated(t *testing.T) {
	cfg := testConfig()
	tier := classifyTier(TierUnrated, 10000, 0, 10000, cfg.ColdStartMax+10, cfg.DiversityThreshold-1, cfg)
	if tier != TierUnrated {
		t.Fatalf("low caller diversity should floor the tier at Unrated, got %s", tier)
	}
}

func TestPromotionRequiresMargin(t *testing.T) {
	cfg := testConfig()
	bronze := cfg.Tiers[0]
	// Exactly at Silver's plain threshold but not at Silver's margin-adjusted
	// threshold: should not promote past Bronze.
	silver := cfg.Tiers[1]
	quality := silver.QualityMin
	risk := silver.RiskMax
	confidence := silver.ConfidenceMin

	tier := classifyTier(TierBronze, quality, risk, confidence, cfg.ColdStartMax+10, 255, cfg)
	if tier != TierBronze {
		t.Fatalf("promotion without clearing the margin should retain the prior tier, got %s (bronze thresholds: %+v)", tier, bronze)
	}
}

func TestPromotionSucceedsPastMargin(t *testing.T) {
	cfg := testConfig()
	silver := cfg.Tiers[1]
	quality := silver.QualityMin + cfg.PromotionMarginQuality
	confidence := silver.ConfidenceMin + cfg.PromotionMarginConfidence
	var risk uint8
	if silver.RiskMax > cfg.PromotionMarginRisk {
		risk = silver.RiskMax - cfg.PromotionMarginRisk
	}

	tier := classifyTier(TierBronze, quality, risk, confidence, cfg.ColdStartMax+10, 255, cfg)
	if tier != TierSilver {
		t.Fatalf("clearing the promotion margin should promote to Silver, got %s", tier)
	}
}

func TestDemotionRequiresCrossingMargin(t *testing.T) {
	cfg := testConfig()
	bronze := cfg.Tiers[0]
	// Just below Bronze's plain threshold, but still within the demotion
	// margin: must retain Bronze, not fall straight to Unrated.
	quality := bronze.QualityMin - 1
	tier := classifyTier(TierBronze, quality, bronze.RiskMax, bronze.ConfidenceMin, cfg.ColdStartMax+10, 255, cfg)
	if tier != TierBronze {
		t.Fatalf("a single small dip below threshold should not demote within the margin, got %s", tier)
	}
}

func TestDemotionPastMarginDemotes(t *testing.T) {
	cfg := testConfig()
	tier := classifyTier(TierBronze, 0, 100, 0, cfg.ColdStartMax+10, 255, cfg)
	if tier != TierUnrated {
		t.Fatalf("collapsing well past the demotion margin should demote immediately, got %s", tier)
	}
}

func TestLoyaltyStepRewardsNewCallers(t *testing.T) {
	cfg := testConfig()
	newCaller := loyaltyStep(0, false, cfg)
	repeatCaller := loyaltyStep(0, true, cfg)
	if newCaller <= repeatCaller {
		t.Fatalf("a new caller should credit loyalty more than a repeat caller: new=%d repeat=%d", newCaller, repeatCaller)
	}
}
