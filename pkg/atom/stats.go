package atom

// recentRing is the recent_callers ring buffer: a bounded, head-indexed
// circular array of caller fingerprints. InsertSeq is a monotonic count of
// how many fingerprints have ever been written into this ring (not just the
// current RingN live ones); it is what the MRT heuristic in rings.go uses to
// judge how "mature" the ring's current rotation is. It is not one of
// spec.md §3's declared fields, but some monotonic counter is necessary to
// implement "recency age" at all, and it serializes as a fixed-width field
// like everything else (see serialize.go).
type recentRing struct {
	Entries   [RingN]uint64
	Head      uint8
	Count     uint8
	InsertSeq uint32
}

// bypassRing is bypass_fingerprints: a smaller ring with plain FIFO
// overwrite and no MRT decision of its own.
type bypassRing struct {
	Entries [BypassN]uint64
	Head    uint8
	Count   uint8
}

// AtomStats is the fixed-layout, per-agent statistical record spec.md §3
// describes. Every field here is declared-width; nothing is a slice or map.
type AtomStats struct {
	// Counters
	FeedbackCount     uint64
	NegCount          uint64
	LastFeedbackSlot  Slot
	FirstFeedbackSlot Slot

	// Score range
	MinScore    uint8
	MaxScore    uint8
	MinScoreSet bool

	// Diversity estimator
	HLLPacked             [hllPackedBytes]byte
	UpdatesSinceHLLChange uint16

	// Caller-recency rings
	RecentCallers      recentRing
	BypassFingerprints bypassRing

	// EMA bank (fixed-point, scale 10000)
	EMAScoreFast  uint16
	EMAScoreSlow  uint16
	EMAVolatility uint16
	EMAQuality    uint16
	NegPressure   uint16

	// Pressures
	BurstPressure      uint8
	VelocityBurstCount uint16

	// Derived cache, written only by derivation
	QualityScore   uint16
	RiskScore      uint8
	Confidence     uint16
	TrustTier      Tier
	DiversityRatio uint8
	LoyaltyScore   uint16
}

// NewAtomStats returns the zero-initialized state for an agent that has
// just become observable: all numeric fields zero, rings empty, tier
// Unrated. This is what initialize_stats installs.
func NewAtomStats() AtomStats {
	return AtomStats{}
}

// IsBursting is a convenience derived from BurstPressure against the
// config's burst_threshold; it is not part of the persisted record, purely
// a read-time classification for hosts rendering alerts.
func (s *AtomStats) IsBursting(cfg Config) bool {
	return s.BurstPressure >= cfg.BurstThreshold
}

// clampU16 clamps v into [lo, hi].
func clampU16(v int64, lo, hi uint16) uint16 {
	if v < int64(lo) {
		return lo
	}
	if v > int64(hi) {
		return hi
	}
	return uint16(v)
}

func clampU8(v int64, lo, hi uint8) uint8 {
	if v < int64(lo) {
		return lo
	}
	if v > int64(hi) {
		return hi
	}
	return uint8(v)
}

func satAddU8(a, b uint8) uint8 {
	sum := int64(a) + int64(b)
	if sum > 255 {
		return 255
	}
	return uint8(sum)
}

func satSubU8(a, b uint8) uint8 {
	if int64(a) < int64(b) {
		return 0
	}
	return a - b
}

func satIncU16(v uint16) uint16 {
	if v == 65535 {
		return v
	}
	return v + 1
}
