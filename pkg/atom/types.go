// Package atom implements ATOM, a Sybil-resistant agent reputation engine.
//
// The engine is a pure function from (prior AtomStats, FeedbackEvent,
// Config, current slot) to (new AtomStats, TierChange). It performs no I/O,
// holds no goroutines, and allocates nothing on a successful call. Identity,
// persistence, access control, and the wire format used to emit events to
// external indexers are the host's problem, not this package's.
package atom

import "encoding/hex"

// AgentID identifies the agent whose state is being mutated. The engine
// treats it as an opaque 32-byte value; registration and ownership belong to
// the host's agent registry.
type AgentID [32]byte

// String renders an AgentID as lowercase hex, for logging and as the
// natural map/column key a host stores it under.
func (a AgentID) String() string { return hex.EncodeToString(a[:]) }

// CallerHash identifies the party submitting a feedback event. The engine
// never sees raw caller identity, only this 32-byte hash supplied by the
// host with sufficient entropy.
type CallerHash [32]byte

// String renders a CallerHash as lowercase hex.
func (c CallerHash) String() string { return hex.EncodeToString(c[:]) }

// Slot is the host-supplied logical time unit. It is monotonically
// non-decreasing within a single agent's call stream.
type Slot uint64

// FeedbackEvent is one unit of input to update_stats. It is immutable.
type FeedbackEvent struct {
	AgentID    AgentID
	CallerHash CallerHash
	Score      uint8
	Slot       Slot
}

// Tier is the discrete trust classification derived from an agent's state.
type Tier uint8

const (
	TierUnrated Tier = iota
	TierBronze
	TierSilver
	TierGold
	TierPlatinum
)

func (t Tier) String() string {
	switch t {
	case TierUnrated:
		return "unrated"
	case TierBronze:
		return "bronze"
	case TierSilver:
		return "silver"
	case TierGold:
		return "gold"
	case TierPlatinum:
		return "platinum"
	default:
		return "unknown"
	}
}

// TierChange is returned by every successful update_stats call and is the
// payload an EventSink is handed to emit to the host's indexers.
type TierChange struct {
	AgentID       AgentID
	Before        Tier
	After         Tier
	Quality       uint16
	Risk          uint8
	Confidence    uint16
	Loyalty       uint16
	FeedbackCount uint64
}

// Bumped reports whether this update changed the agent's tier.
func (c TierChange) Bumped() bool { return c.Before != c.After }

// Fixed layout constants. These are load-bearing: AtomStats serializes
// deterministically in this shape (see serialize.go), and the host may rely
// on stable record sizing.
const (
	// HLLRegisters is the production register count. spec.md leaves 48 vs
	// 128 as a deployment-time choice; 128 keeps relative error low and is
	// what Engine uses. hll_param_test.go exercises 48 separately through a
	// parallel test-only register count, never by changing this constant at
	// runtime.
	HLLRegisters = 128

	// hllPackedBytes is ceil(HLLRegisters * 6 / 8): each register is a
	// 6-bit rank packed tightly into a byte slice.
	hllPackedBytes = (HLLRegisters*6 + 7) / 8

	// RingN is the size of the recent_callers ring buffer.
	RingN = 24

	// BypassN is the size of the bypass_fingerprints ring buffer.
	BypassN = 8
)
