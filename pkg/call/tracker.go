package call

import "sort"

// MaxMissingTracked caps the number of missing sequences recorded per call.
// Gaps beyond the cap are counted as overflow and logged by the caller;
// sequences that fall into an untracked gap can no longer be late-filled.
const MaxMissingTracked = 100

// Classification is the tracker's verdict for one incoming sequence.
type Classification string

const (
	// ClassInOrder marks the sequence the call was waiting for.
	ClassInOrder Classification = "in_order"

	// ClassGap marks a sequence ahead of expected_next; everything between
	// becomes missing.
	ClassGap Classification = "gap"

	// ClassLateFill marks a sequence that closes a previously recorded gap.
	ClassLateFill Classification = "late_fill"

	// ClassDuplicate marks a sequence already accepted.
	ClassDuplicate Classification = "duplicate"
)

// TrackResult carries the updated tracking fields for one classified
// sequence.
type TrackResult struct {
	Class        Classification
	ExpectedNext int64
	Missing      []int64

	// Overflow counts gap members that could not be recorded because the
	// missing set hit MaxMissingTracked.
	Overflow int64
}

// ClassifySequence applies one incoming sequence to the tracking fields and
// returns exactly one classification plus the updated (expected_next,
// missing) pair. It is a pure function: the input slice is never mutated,
// and the missing set stays sorted ascending.
//
// Rules:
//   - sequence == expectedNext: in_order, expectedNext advances by one.
//   - sequence > expectedNext: gap, [expectedNext, sequence) joins missing
//     (capped), expectedNext jumps past the sequence.
//   - sequence < expectedNext and recorded missing: late_fill, removed from
//     missing.
//   - sequence < expectedNext otherwise: duplicate, no change.
func ClassifySequence(expectedNext int64, missing []int64, sequence int64) TrackResult {
	switch {
	case sequence == expectedNext:
		return TrackResult{
			Class:        ClassInOrder,
			ExpectedNext: sequence + 1,
			Missing:      missing,
		}

	case sequence > expectedNext:
		gapLen := sequence - expectedNext
		room := int64(MaxMissingTracked - len(missing))
		if room < 0 {
			room = 0
		}
		take := gapLen
		if take > room {
			take = room
		}
		updated := make([]int64, len(missing), len(missing)+int(take))
		copy(updated, missing)
		for s := expectedNext; s < expectedNext+take; s++ {
			updated = append(updated, s)
		}
		return TrackResult{
			Class:        ClassGap,
			ExpectedNext: sequence + 1,
			Missing:      updated,
			Overflow:     gapLen - take,
		}

	default: // sequence < expectedNext
		idx := sort.Search(len(missing), func(i int) bool { return missing[i] >= sequence })
		if idx < len(missing) && missing[idx] == sequence {
			updated := make([]int64, 0, len(missing)-1)
			updated = append(updated, missing[:idx]...)
			updated = append(updated, missing[idx+1:]...)
			return TrackResult{
				Class:        ClassLateFill,
				ExpectedNext: expectedNext,
				Missing:      updated,
			}
		}
		return TrackResult{
			Class:        ClassDuplicate,
			ExpectedNext: expectedNext,
			Missing:      missing,
		}
	}
}
