package atom

import "testing"

func TestEmaStepRoundsHalfUp(t *testing.T) {
	// alpha=50, input=101 (scaled), old=0: (50*101 + 50*0 + 50)/100 = 5100/100 = 51
	got := emaStep(0, 50, 101)
	if got != 51 {
		t.Fatalf("emaStep rounding: got %d want 51", got)
	}
}

func TestEmaStepClampsToScale(t *testing.T) {
	got := emaStep(9999, 99, 10000)
	if got > scale10000 {
		t.Fatalf("emaStep exceeded scale: %d", got)
	}
}

func TestEntropyAmplifierNeverDampens(t *testing.T) {
	cfg := testConfig()
	prev := uint16(1)
	for updates := uint16(0); updates < 50; updates++ {
		amp := entropyAmplifier(updates, cfg.EntropyGateDivisor, cfg.EntropyGateMaxAmplification)
		if amp < prev {
			t.Fatalf("entropy amplifier decreased from %d to %d at updates=%d; must never dampen", prev, amp, updates)
		}
		prev = amp
	}
}

func TestEntropyAmplifierRespectsCap(t *testing.T) {
	cfg := testConfig()
	amp := entropyAmplifier(60000, cfg.EntropyGateDivisor, cfg.EntropyGateMaxAmplification)
	if amp != cfg.EntropyGateMaxAmplification {
		t.Fatalf("entropy amplifier should saturate at the configured cap, got %d want %d", amp, cfg.EntropyGateMaxAmplification)
	}
}

func TestQualityEMAEntropyAmplificationAntiBackfire(t *testing.T) {
	cfg := testConfig()
	// score below old/100 forces the down path.
	old := uint16(9000)
	withoutStagnation := qualityEMAStep(old, 0, cfg, 0)
	withStagnation := qualityEMAStep(old, 0, cfg, 6)
	if withStagnation >= withoutStagnation {
		t.Fatalf("stagnated entropy gate should push quality down harder, not softer: without=%d with=%d", withoutStagnation, withStagnation)
	}
}

func TestAsymmetricEMAConvergesBelow5000WithAlternatingScores(t *testing.T) {
	cfg := testConfig()
	var ema uint16
	for i := 0; i < 20; i++ {
		score := uint8(100)
		if i%2 == 1 {
			score = 0
		}
		ema = qualityEMAStep(ema, score, cfg, 0)
	}
	if ema >= 5000 {
		t.Fatalf("alternating 100/0 scores should keep ema_quality below 5000 when down-alpha > up-alpha, got %d", ema)
	}
}

func TestAbsDiffU16(t *testing.T) {
	if absDiffU16(3, 7) != 4 {
		t.Fatalf("absDiffU16(3,7) should be 4")
	}
	if absDiffU16(7, 3) != 4 {
		t.Fatalf("absDiffU16(7,3) should be 4")
	}
}
