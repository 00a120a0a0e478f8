package matching

// Compatible reports whether two requests can be paired: distinct users,
// equal difficulty, equal language when both declare one (an absent language
// is a wildcard), and at least one shared category.
func Compatible(a, b *MatchRequest) bool {
	if a.UserID == b.UserID {
		return false
	}
	if a.Difficulty != b.Difficulty {
		return false
	}
	if a.Language != "" && b.Language != "" && a.Language != b.Language {
		return false
	}
	for _, c := range a.Categories {
		for _, other := range b.Categories {
			if c == other {
				return true
			}
		}
	}
	return false
}

// FirstCompatible returns the first candidate compatible with req, or nil.
// Candidates are expected in FIFO order, so the earliest-enqueued eligible
// candidate wins; repeated calls over the same inputs return the same
// candidate. The function never mutates its arguments — removal is the
// caller's job once a match is decided.
func FirstCompatible(req *MatchRequest, candidates []*MatchRequest) *MatchRequest {
	for _, c := range candidates {
		if Compatible(req, c) {
			return c
		}
	}
	return nil
}
