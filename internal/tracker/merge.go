package tracker

import "math"

// Merge applies a status payload to rec and returns the result.
// Fields absent from p are kept; present fields overwrite. Status is taken
// verbatim, even when it is unknown or moves backwards. Progress is
// normalised to -1 or [0,100].
func Merge(rec Record, p Payload) Record {
	if p.Status != nil {
		rec.Status = *p.Status
	}
	if p.Progress != nil {
		rec.Progress = NormalizeProgress(*p.Progress)
	}
	if p.AspectRatio != nil {
		rec.AspectRatio = *p.AspectRatio
	}
	return rec
}

// NormalizeProgress maps NaN and negative values to -1 and caps at 100.
func NormalizeProgress(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return IndeterminateProgress
	case v > 100:
		return 100
	}
	return v
}

// IsRegression reports whether applying p to rec would move its status
// off the allowed graph.
func IsRegression(rec Record, p Payload) bool {
	if p.Status == nil || !p.Status.IsKnown() || rec.Status.CanTransition(*p.Status) {
		return false
	}
	return rec.Status.IsTerminal() || rec.Status.rank() > p.Status.rank()
}
