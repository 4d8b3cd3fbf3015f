package atom

import "testing"

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	cfg := testConfig()
	agent := testAgent(1)
	var s AtomStats
	var slot Slot
	for i := uint64(0); i < 30; i++ {
		slot += 10
		score := uint8(80)
		if i%3 == 0 {
			score = 20
		}
		mustApply(t, &s, FeedbackEvent{AgentID: agent, CallerHash: testCaller(i), Score: score, Slot: slot}, cfg)
	}

	b, err := s.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	if len(b) != StatsSerializedSize {
		t.Fatalf("marshaled length mismatch: got %d want %d", len(b), StatsSerializedSize)
	}

	var restored AtomStats
	if err := restored.UnmarshalBinary(b); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if restored != s {
		t.Fatalf("round trip did not reproduce the original state:\nwant %+v\ngot  %+v", s, restored)
	}
}

func TestMarshalZeroValueRoundTrips(t *testing.T) {
	var s AtomStats
	b, err := s.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	var restored AtomStats
	if err := restored.UnmarshalBinary(b); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if restored != s {
		t.Fatalf("zero value did not round trip")
	}
}

func TestUnmarshalRejectsWrongSize(t *testing.T) {
	var s AtomStats
	if err := s.UnmarshalBinary(make([]byte, StatsSerializedSize-1)); err == nil {
		t.Fatalf("expected an error for a short buffer")
	}
	if err := s.UnmarshalBinary(make([]byte, StatsSerializedSize+1)); err == nil {
		t.Fatalf("expected an error for an oversized buffer")
	}
}

func TestMarshalIsDeterministic(t *testing.T) {
	cfg := testConfig()
	agent := testAgent(1)
	var s AtomStats
	mustApply(t, &s, FeedbackEvent{AgentID: agent, CallerHash: testCaller(1), Score: 90, Slot: 5}, cfg)

	b1, _ := s.MarshalBinary()
	b2, _ := s.MarshalBinary()
	if string(b1) != string(b2) {
		t.Fatalf("MarshalBinary must be deterministic for the same state")
	}
}
