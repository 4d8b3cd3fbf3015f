package atom

import "encoding/binary"

func testAgent(i uint64) AgentID {
	var a AgentID
	binary.LittleEndian.PutUint64(a[:8], i)
	return a
}

func testCaller(i uint64) CallerHash {
	var h CallerHash
	binary.LittleEndian.PutUint64(h[:8], i)
	// Spread entropy across the remaining bytes too, since the HLL hash
	// folds in the whole 32 bytes.
	binary.LittleEndian.PutUint64(h[8:16], i*0x9E3779B97F4A7C15)
	return h
}

func testConfig() Config {
	return DefaultConfig(testAgent(1))
}

func mustApply(t interface {
	Fatalf(string, ...interface{})
}, state *AtomStats, event FeedbackEvent, cfg Config) TierChange {
	change, err := apply(state, event, cfg)
	if err != nil {
		t.Fatalf("apply: unexpected error: %v", err)
	}
	return change
}
