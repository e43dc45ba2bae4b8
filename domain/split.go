package domain

// SplitKey is the (color, key) pair a participant supplies to a split.
// Members sharing a color form a sub-group ordered by ascending key.
type SplitKey struct {
	Color int `json:"color"`
	Key   int `json:"key"`
}

// SplitPlan describes one sub-group derived from a parent session.
type SplitPlan struct {
	Color        int
	SessionID    SessionID
	Participants []Identity
}

// Contains reports whether id is a member of the planned sub-group.
func (p SplitPlan) Contains(id Identity) bool {
	for _, member := range p.Participants {
		if member == id {
			return true
		}
	}
	return false
}
