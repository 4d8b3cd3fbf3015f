package atom

import (
	"encoding/binary"
	"fmt"
)

// StatsSerializedSize is AtomStats's fixed on-the-wire size: 4 u64 counters,
// 3 score/flag bytes, the packed HLL register array, the stagnation
// counter, both rings (entries + head/count/insert-sequence), five EMA
// u16s, and the derived-cache fields. spec.md §3 calls for "total ≤ ~256
// bytes" as a soft hint; with HLLRegisters=128 and RingN=24 (both pinned by
// spec.md's own parameter ranges and by the §8 scenario 4 test), the two
// rings alone are 264 bytes, so the true fixed size is larger than the
// hint. What spec.md actually requires — fixed width, no heap allocation,
// byte-stable field order — holds exactly; see DESIGN.md.
const StatsSerializedSize = 8*4 + 1 + 1 + 1 + hllPackedBytes + 2 +
	(RingN*8 + 1 + 1 + 4) + (BypassN*8 + 1 + 1) +
	2*5 + 1 + 2 + 2 + 1 + 2 + 1 + 1 + 2

// MarshalBinary serializes AtomStats deterministically in the field order
// of spec.md §3, little-endian, per §6's "Persisted state layout".
func (s *AtomStats) MarshalBinary() ([]byte, error) {
	b := make([]byte, StatsSerializedSize)
	off := 0

	putU64 := func(v uint64) {
		binary.LittleEndian.PutUint64(b[off:], v)
		off += 8
	}
	putU32 := func(v uint32) {
		binary.LittleEndian.PutUint32(b[off:], v)
		off += 4
	}
	putU16 := func(v uint16) {
		binary.LittleEndian.PutUint16(b[off:], v)
		off += 2
	}
	putU8 := func(v uint8) {
		b[off] = v
		off++
	}
	putBool := func(v bool) {
		if v {
			putU8(1)
		} else {
			putU8(0)
		}
	}

	putU64(s.FeedbackCount)
	putU64(s.NegCount)
	putU64(uint64(s.LastFeedbackSlot))
	putU64(uint64(s.FirstFeedbackSlot))

	putU8(s.MinScore)
	putU8(s.MaxScore)
	putBool(s.MinScoreSet)

	copy(b[off:off+hllPackedBytes], s.HLLPacked[:])
	off += hllPackedBytes
	putU16(s.UpdatesSinceHLLChange)

	for _, v := range s.RecentCallers.Entries {
		putU64(v)
	}
	putU8(s.RecentCallers.Head)
	putU8(s.RecentCallers.Count)
	putU32(s.RecentCallers.InsertSeq)

	for _, v := range s.BypassFingerprints.Entries {
		putU64(v)
	}
	putU8(s.BypassFingerprints.Head)
	putU8(s.BypassFingerprints.Count)

	putU16(s.EMAScoreFast)
	putU16(s.EMAScoreSlow)
	putU16(s.EMAVolatility)
	putU16(s.EMAQuality)
	putU16(s.NegPressure)

	putU8(s.BurstPressure)
	putU16(s.VelocityBurstCount)

	putU16(s.QualityScore)
	putU8(s.RiskScore)
	putU16(s.Confidence)
	putU8(uint8(s.TrustTier))
	putU8(s.DiversityRatio)
	putU16(s.LoyaltyScore)

	return b, nil
}

// UnmarshalBinary is the inverse of MarshalBinary. It rejects any input
// whose length doesn't exactly match StatsSerializedSize, since a drifting
// layout is precisely the hazard spec.md §6 warns hosts against.
func (s *AtomStats) UnmarshalBinary(b []byte) error {
	if len(b) != StatsSerializedSize {
		return fmt.Errorf("atom: serialized AtomStats has wrong size: got %d want %d", len(b), StatsSerializedSize)
	}
	off := 0

	getU64 := func() uint64 {
		v := binary.LittleEndian.Uint64(b[off:])
		off += 8
		return v
	}
	getU32 := func() uint32 {
		v := binary.LittleEndian.Uint32(b[off:])
		off += 4
		return v
	}
	getU16 := func() uint16 {
		v := binary.LittleEndian.Uint16(b[off:])
		off += 2
		return v
	}
	getU8 := func() uint8 {
		v := b[off]
		off++
		return v
	}

	var next AtomStats

	next.FeedbackCount = getU64()
	next.NegCount = getU64()
	next.LastFeedbackSlot = Slot(getU64())
	next.FirstFeedbackSlot = Slot(getU64())

	next.MinScore = getU8()
	next.MaxScore = getU8()
	next.MinScoreSet = getU8() != 0

	copy(next.HLLPacked[:], b[off:off+hllPackedBytes])
	off += hllPackedBytes
	next.UpdatesSinceHLLChange = getU16()

	for i := range next.RecentCallers.Entries {
		next.RecentCallers.Entries[i] = getU64()
	}
	next.RecentCallers.Head = getU8()
	next.RecentCallers.Count = getU8()
	next.RecentCallers.InsertSeq = getU32()

	for i := range next.BypassFingerprints.Entries {
		next.BypassFingerprints.Entries[i] = getU64()
	}
	next.BypassFingerprints.Head = getU8()
	next.BypassFingerprints.Count = getU8()

	next.EMAScoreFast = getU16()
	next.EMAScoreSlow = getU16()
	next.EMAVolatility = getU16()
	next.EMAQuality = getU16()
	next.NegPressure = getU16()

	next.BurstPressure = getU8()
	next.VelocityBurstCount = getU16()

	next.QualityScore = getU16()
	next.RiskScore = getU8()
	next.Confidence = getU16()
	next.TrustTier = Tier(getU8())
	next.DiversityRatio = getU8()
	next.LoyaltyScore = getU16()

	*s = next
	return nil
}
