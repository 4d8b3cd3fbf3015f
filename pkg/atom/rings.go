package atom

// recencyResult is the outcome of classifying one caller fingerprint
// against the two rings, per spec.md §4.3.
type recencyResult struct {
	IsRecent bool
	IsNew    bool
}

func ringContains(entries []uint64, count uint8, fp uint64) bool {
	// Both rings' lookups MUST examine every live slot: classification must
	// never be short-circuited by which branch a fingerprint was routed
	// into on a prior update. Skipping bypass_fingerprints here is exactly
	// the "phantom swarm" bug class spec.md §4.3 calls out by name.
	for i := uint8(0); i < count; i++ {
		if entries[i] == fp {
			return true
		}
	}
	return false
}

func ringAppend(entries *[RingN]uint64, head, count *uint8, fp uint64) {
	entries[*head] = fp
	*head = (*head + 1) % RingN
	if *count < RingN {
		*count++
	}
}

func bypassAppend(entries *[BypassN]uint64, head, count *uint8, fp uint64) {
	entries[*head] = fp
	*head = (*head + 1) % BypassN
	if *count < BypassN {
		*count++
	}
}

// classifyCaller implements spec.md §4.3's recency tracker, including the
// MRT (most-recent-threshold) heuristic of §9's glossary entry.
//
// "Recency age" for the slot a new insertion would evict is not pinned down
// precisely by spec.md beyond "entries seen since"; this implementation
// tracks it as the number of full rotations recent_callers' insertion
// cursor has completed (RecentCallers.InsertSeq / RingN). A ring that has
// just become full for the first time has completed its first rotation
// (age 1, well under the default MRT threshold of RingN/2=12), so a burst
// of brand-new fingerprints arriving right as the ring fills is diverted
// into bypass_fingerprints rather than evicting the ring's still-young
// contents — and, critically, the diverted fingerprint is still recognized
// as recent on its next appearance, because classification always checks
// both rings. Once a ring has rotated past the MRT threshold many times,
// evictions are considered routine and go through recent_callers directly.
// See DESIGN.md for the scenario this resolves (spec.md §8 scenario 4).
func classifyCaller(s *AtomStats, fp uint64, mrtThreshold uint32) recencyResult {
	if ringContains(s.RecentCallers.Entries[:], s.RecentCallers.Count, fp) {
		return recencyResult{IsRecent: true, IsNew: false}
	}
	if ringContains(s.BypassFingerprints.Entries[:], s.BypassFingerprints.Count, fp) {
		return recencyResult{IsRecent: true, IsNew: false}
	}

	if s.RecentCallers.Count < RingN {
		// Ring not yet full: appending never evicts anything, so the MRT
		// heuristic has nothing to protect.
		ringAppend(&s.RecentCallers.Entries, &s.RecentCallers.Head, &s.RecentCallers.Count, fp)
		s.RecentCallers.InsertSeq++
		return recencyResult{IsRecent: false, IsNew: true}
	}

	lapAge := uint32(s.RecentCallers.InsertSeq) / RingN
	if lapAge < mrtThreshold {
		bypassAppend(&s.BypassFingerprints.Entries, &s.BypassFingerprints.Head, &s.BypassFingerprints.Count, fp)
		return recencyResult{IsRecent: false, IsNew: true}
	}

	ringAppend(&s.RecentCallers.Entries, &s.RecentCallers.Head, &s.RecentCallers.Count, fp)
	s.RecentCallers.InsertSeq++
	return recencyResult{IsRecent: false, IsNew: true}
}
