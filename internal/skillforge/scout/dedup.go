package scout

// Dedup removes candidates whose normalized source URL was already seen,
// keeping the first occurrence. It reuses the backing array of candidates and
// preserves order. Candidates without a usable URL are dropped.
func Dedup(candidates []Candidate) []Candidate {
	seen := make(map[string]struct{}, len(candidates))
	out := candidates[:0]

	for _, c := range candidates {
		key := c.Key()
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}

	// Clear the tail so dropped candidates can be collected.
	for i := len(out); i < len(candidates); i++ {
		candidates[i] = Candidate{}
	}
	return out
}
