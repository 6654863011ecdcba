package pmm

import "github.com/ultraos/hyper/internal/memtype"

// KnownTypes tracks which memory types this build of the loader understands,
// mirroring mm_declare_known_mm_types. Any firmware-reported type outside the
// known set downgrades to Reserved during fixup, except for
// LoaderReclaimable, which downgrades to Free when unrecognized — that range
// was memory the loader itself allocated and is safe to hand back.
type KnownTypes struct {
	mask             uint64
	knowsReclaimable bool
}

// DefaultKnownTypes returns the always-required minimum: Free and Reserved
// must be known by every protocol, or the fixup pipeline has nothing sound
// to fall back on.
func DefaultKnownTypes() KnownTypes {
	var k KnownTypes
	k.Declare([]memtype.Type{memtype.Free, memtype.Reserved})
	return k
}

// Declare records the set of standard types a boot protocol understands.
func (k *KnownTypes) Declare(types []memtype.Type) {
	var mask uint64
	knowsReclaim := false

	for _, t := range types {
		if t == memtype.LoaderReclaimable {
			knowsReclaim = true
			continue
		}
		if t > memtype.Max {
			continue
		}
		mask |= 1 << uint(t)
	}

	k.mask = mask
	k.knowsReclaimable = knowsReclaim
}

func (k KnownTypes) isSet(t memtype.Type) bool {
	if t > memtype.Max {
		return false
	}
	return k.mask&(1<<uint(t)) != 0
}

// resolve mirrors mme_resolve_type: protocol-specific types pass through
// unchanged, unknown LoaderReclaimable becomes Free, and any other unknown
// standard type is downgraded to Reserved so the loader never hands the
// kernel memory it doesn't understand the safety properties of.
func (k KnownTypes) resolve(t memtype.Type) memtype.Type {
	if t >= memtype.ProtoSpecificBase {
		return t
	}
	if t == memtype.LoaderReclaimable {
		if k.knowsReclaimable {
			return t
		}
		return memtype.Free
	}
	if k.isSet(t) {
		return t
	}
	return memtype.Reserved
}

// resolveOverlap splits two overlapping entries so the one with the higher
// type value wins the overlapping byte range outright, per the documented
// tie-break rule (firmware commonly misreports ACPI/NVS ranges as free, so a
// deterministic "higher type always wins" keeps those ranges safe). It
// returns between 1 and 3 non-overlapping, non-empty, alignment-fixed
// entries covering exactly [min(a.Base,b.Base), max(a.End(),b.End())).
func resolveOverlap(a, b Entry) []Entry {
	winner, loser := b, a
	if a.Type >= b.Type {
		winner, loser = a, b
	}

	var out []Entry

	if loser.Base < winner.Base {
		before := Entry{Base: loser.Base, Size: winner.Base - loser.Base, Type: loser.Type}
		before = alignIfNeeded(before)
		if isValid(before) {
			out = append(out, before)
		}
	}

	out = append(out, winner)

	if loser.End() > winner.End() {
		after := Entry{Base: winner.End(), Size: loser.End() - winner.End(), Type: loser.Type}
		after = alignIfNeeded(after)
		if isValid(after) {
			out = append(out, after)
		}
	}

	return out
}

// Fixup runs the four-step pipeline described in the design: sort, resolve
// type, sweep for overlaps (splitting the lower-priority entry around the
// higher one) and adjacent-same-type coalescing, and free-range alignment.
// It returns a new, independent slice; the input is left untouched.
func Fixup(entries []Entry, known KnownTypes) []Entry {
	work := make([]Entry, len(entries))
	copy(work, entries)
	sortEntries(work)

	for i := range work {
		work[i].Type = known.resolve(work[i].Type)
	}

	i := 0
	for i+1 < len(work) {
		a, b := work[i], work[i+1]

		if a.End() > b.Base {
			resolved := resolveOverlap(a, b)
			tail := append([]Entry{}, work[i+2:]...)
			work = append(work[:i], append(resolved, tail...)...)

			// The winning range may have just absorbed part of the
			// previous entry's neighbor; step back one slot so the
			// sweep re-examines the new boundary for a further merge,
			// same as the original cursor walking backwards.
			if i > 0 {
				i--
			}
			continue
		}

		if a.End() == b.Base && a.Type == b.Type {
			work[i].Size = b.End() - a.Base
			work = append(work[:i+1], work[i+2:]...)
			continue
		}

		i++
	}

	out := work[:0]
	for _, e := range work {
		if e = alignIfNeeded(e); isValid(e) {
			out = append(out, e)
		}
	}
	return out
}

// Fixup applies the fixup pipeline to the map in place.
func (m *Map) Fixup(known KnownTypes) {
	m.entries = Fixup(m.entries, known)
}
