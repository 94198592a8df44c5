// Package diff isolates the facts in a freshly fetched set that are absent
// from the previously cached snapshot of the same entity.
package diff

// New returns the live facts whose key is not in cached, preserving live
// order. Facts that vanished from live are not reported; callers replace the
// cached snapshot with live afterwards, so a fact that drops out and later
// returns is reported again.
func New[K comparable, F any](cached map[K]struct{}, live []F, key func(F) K) []F {
	var out []F
	for _, f := range live {
		if _, ok := cached[key(f)]; ok {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Keys builds the key set of a fact list.
func Keys[K comparable, F any](facts []F, key func(F) K) map[K]struct{} {
	set := make(map[K]struct{}, len(facts))
	for _, f := range facts {
		set[key(f)] = struct{}{}
	}
	return set
}
