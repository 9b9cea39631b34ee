package resolver

import "github.com/nerrad567/slotline/internal/provider"

// assignmentInput is a point-in-time snapshot of everything the
// ownership policy needs. Snapshots keep the policy pure and easy to
// exercise in isolation.
type assignmentInput struct {
	// declared maps admitted candidate packages to their declared
	// feature sets. Candidates with an unresolved capability query have
	// whatever subset is known so far, possibly empty.
	declared map[string]provider.FeatureSet

	// overrides maps slot index to the overriding package.
	overrides map[int]string

	// deviceDefault is the package serving slots with no override.
	deviceDefault string

	// slotCount bounds valid slot indexes.
	slotCount int
}

// computeAssignment returns the feature pairs one candidate should
// serve under the current override table.
//
// Overriding packages win their slots outright. The device default
// fills the gaps: for overridden slots it keeps only the pairs the
// override does not declare, and for free slots it keeps everything it
// declares. Every other candidate gets nothing. Emergency pairs flow
// through like any declared pair; whether they produce a connection is
// the controller's concern.
func computeAssignment(in assignmentInput, pkg string) provider.FeatureSet {
	out := provider.NewFeatureSet()
	declared, ok := in.declared[pkg]
	if !ok {
		return out
	}

	overrideSlots := make(map[int]bool)
	for slot, owner := range in.overrides {
		if owner == pkg && slot >= 0 && slot < in.slotCount {
			overrideSlots[slot] = true
		}
	}

	if len(overrideSlots) > 0 {
		// An overriding package serves only the slots it overrides,
		// even if it declares pairs for others.
		for slot := range overrideSlots {
			out = out.Union(declared.ForSlot(slot))
		}
		return out
	}

	if pkg != in.deviceDefault {
		return out
	}

	for slot := 0; slot < in.slotCount; slot++ {
		slotPairs := declared.ForSlot(slot)
		if slotPairs.Len() == 0 {
			continue
		}
		owner, overridden := in.overrides[slot]
		if overridden && owner != pkg {
			if ownerDeclared, known := in.declared[owner]; known {
				slotPairs = slotPairs.Subtract(ownerDeclared.ForSlot(slot))
			}
			// An override naming an unknown package leaves the default
			// in place until the package appears.
		}
		out = out.Union(slotPairs)
	}
	return out
}
