package model

// KeySet is a set of comparable keys. Composite keys are plain structs, so
// equality is field-wise rather than by identity.
type KeySet[K comparable] map[K]struct{}

// Add inserts k and reports whether it was not already present.
func (s KeySet[K]) Add(k K) bool {
	if _, ok := s[k]; ok {
		return false
	}
	s[k] = struct{}{}
	return true
}

// Has reports whether k is present.
func (s KeySet[K]) Has(k K) bool {
	_, ok := s[k]
	return ok
}
