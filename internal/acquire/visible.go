package acquire

// PickVisible returns the first candidate (in document order) for which visible returns true.
// Login forms may render several overlapping instances of the same field, so visibility rather than order decides.
// If no candidate is visible the first one is returned; false is only returned for an empty candidate list.
// Candidates whose visibility cannot be determined are treated as hidden.
func PickVisible[E any](candidates []E, visible func(E) (bool, error)) (E, bool) {
	if len(candidates) == 0 {
		var zero E
		return zero, false
	}
	for _, candidate := range candidates {
		if ok, err := visible(candidate); err == nil && ok {
			return candidate, true
		}
	}
	return candidates[0], true
}
