package score

// clampInput carries everything the clamp chain needs to decide how much of
// a candidate award fits: the per-criterion ceiling, the optional window
// ceiling with the points already used inside the window, and the category
// ceiling with the points already used in the category. Used sums must
// exclude the entry being rewritten when an award updates in place.
type clampInput struct {
	Raw          int
	CriterionMax int

	WindowUsed    int
	WindowCeiling int // 0 = no window ceiling

	CategoryUsed int
	CategoryMax  int
}

// clampAward applies the ceilings in order: criterion, then window, then
// category. The accepted amount is never negative; an award against zero
// headroom comes back as (0, true) and is still recorded for audit.
func clampAward(in clampInput) (accepted int, adjusted bool) {
	accepted = in.Raw
	if in.CriterionMax > 0 && accepted > in.CriterionMax {
		accepted = in.CriterionMax
		adjusted = true
	}
	if in.WindowCeiling > 0 {
		room := in.WindowCeiling - in.WindowUsed
		if room < 0 {
			room = 0
		}
		if accepted > room {
			accepted = room
			adjusted = true
		}
	}
	if in.CategoryMax > 0 {
		room := in.CategoryMax - in.CategoryUsed
		if room < 0 {
			room = 0
		}
		if accepted > room {
			accepted = room
			adjusted = true
		}
	}
	return accepted, adjusted
}

type groupSum struct {
	GroupID  int64
	MaxScore int
	Sum      int
}

// cappedTotal folds per-group sums into the record total: each group is
// capped at its own ceiling first, the sum of groups at the overall one.
func cappedTotal(groups []groupSum, overallCeiling int) int {
	total := 0
	for _, g := range groups {
		s := g.Sum
		if g.MaxScore > 0 && s > g.MaxScore {
			s = g.MaxScore
		}
		total += s
	}
	if overallCeiling > 0 && total > overallCeiling {
		total = overallCeiling
	}
	return total
}
