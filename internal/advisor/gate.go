package advisor

// How far confidence must move, at an unchanged signal, to be worth a ping
const confidenceDelta = 2

// ShouldNotify decides whether a fresh recommendation is novel enough to
// interrupt the subscriber. The first recommendation after startup always
// notifies; afterwards only a changed signal or a meaningful confidence
// swing does.
func ShouldNotify(prev, next *Recommendation) (bool, string) {
	if next == nil {
		return false, "no recommendation"
	}
	if prev == nil {
		return true, "first recommendation"
	}
	if prev.Signal != next.Signal {
		return true, "signal changed from " + prev.Signal.String() + " to " + next.Signal.String()
	}
	if delta := abs(next.Confidence - prev.Confidence); delta >= confidenceDelta {
		return true, "confidence shifted"
	}
	return false, "unchanged from last notification"
}
