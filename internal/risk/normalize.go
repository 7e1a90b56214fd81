package risk

// Normalize maps an observed quantity against configured thresholds onto a
// [0,1] risk fraction for the lower-is-worse shape: full risk at or below
// maxRisk, no risk at or above noRisk, linear in between. Equal thresholds
// degrade to a step function instead of dividing by zero.
func Normalize(observed, noRisk, maxRisk float64) float64 {
	if noRisk == maxRisk {
		if observed < noRisk {
			return 1
		}
		return 0
	}
	return clamp01((noRisk - observed) / (noRisk - maxRisk))
}

// Lateness maps days-late onto [0,1] for the lateness-is-worse shape: no
// risk up to graceDays, full risk from maxDays on. daysLate may be +Inf for
// a missing submission. Equal bounds degrade to a step at the boundary.
func Lateness(daysLate, graceDays, maxDays float64) float64 {
	if maxDays == graceDays {
		if daysLate <= graceDays {
			return 0
		}
		return 1
	}
	return clamp01((daysLate - graceDays) / (maxDays - graceDays))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
