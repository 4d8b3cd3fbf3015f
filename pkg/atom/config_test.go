package atom

import (
	"errors"
	"testing"
)

func TestDefaultConfigValidates(t *testing.T) {
	if err := testConfig().Validate(); err != nil {
		t.Fatalf("DefaultConfig should validate cleanly: %v", err)
	}
}

func TestConfigValidateRejectsBadAlpha(t *testing.T) {
	cfg := testConfig()
	cfg.AlphaFast = 0
	if err := cfg.Validate(); !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid, got %v", err)
	}
}

func TestConfigValidateRejectsBadWeightSum(t *testing.T) {
	cfg := testConfig()
	cfg.WeightBurst = 40
	if err := cfg.Validate(); !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid for weight sum, got %v", err)
	}
}

func TestConfigValidateRejectsNonMonotoneTiers(t *testing.T) {
	cfg := testConfig()
	cfg.Tiers[1].QualityMin = cfg.Tiers[0].QualityMin // Silver no longer stricter than Bronze
	if err := cfg.Validate(); !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid for non-monotone tiers, got %v", err)
	}
}

func TestConfigValidateRejectsQualityDownNotGreaterThanUp(t *testing.T) {
	cfg := testConfig()
	cfg.AlphaQualityDown = cfg.AlphaQualityUp
	if err := cfg.Validate(); !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid, got %v", err)
	}
}

func TestProposeCommitRoundTrip(t *testing.T) {
	authority := testAgent(1)
	current := DefaultConfig(authority)

	next := current
	next.BurstThreshold = 40

	proposal, err := Propose(current, authority, next)
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	committed, err := proposal.Commit(authority)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if committed.BurstThreshold != 40 {
		t.Fatalf("committed config did not carry the proposed change")
	}
}

func TestProposeRejectsWrongAuthority(t *testing.T) {
	authority := testAgent(1)
	impostor := testAgent(2)
	current := DefaultConfig(authority)

	if _, err := Propose(current, impostor, current); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestProposeRejectsInvalidNextConfig(t *testing.T) {
	authority := testAgent(1)
	current := DefaultConfig(authority)
	bad := current
	bad.WeightSybil = 0

	if _, err := Propose(current, authority, bad); !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid, got %v", err)
	}
}

func TestCommitRejectsWrongCommitter(t *testing.T) {
	authority := testAgent(1)
	current := DefaultConfig(authority)
	proposal, err := Propose(current, authority, current)
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if _, err := proposal.Commit(testAgent(2)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestCommitCannotBeReused(t *testing.T) {
	authority := testAgent(1)
	current := DefaultConfig(authority)
	proposal, err := Propose(current, authority, current)
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if _, err := proposal.Commit(authority); err != nil {
		t.Fatalf("first Commit: %v", err)
	}
	if _, err := proposal.Commit(authority); err == nil {
		t.Fatalf("expected second Commit on the same proposal to fail")
	}
}
