package state

import "context"

// Store keeps the current State of every user.
//
// Get returns Empty for unknown users. Set replaces the stored value in one
// step; storing Empty removes the entry. A Store does not serialize a
// get-handle-set sequence on its own; the Engine locks each user around it.
type Store interface {
	Get(ctx context.Context, userID int64) (State, error)
	Set(ctx context.Context, userID int64, st State) error
}
