package models

// validTransitions enumerates the legal player status moves. on_block can
// fall back to available when the room resets the block, and drafted can only
// return to available through reconciliation of a cleared room.
var validTransitions = map[PlayerStatus][]PlayerStatus{
	StatusAvailable: {StatusOnBlock},
	StatusOnBlock:   {StatusDrafted, StatusAvailable},
	StatusDrafted:   {StatusAvailable},
}

// ValidTransition reports whether moving a player from one status to another
// is a legal lifecycle step. Identical from/to is always allowed.
func ValidTransition(from, to PlayerStatus) bool {
	if from == to {
		return true
	}
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
