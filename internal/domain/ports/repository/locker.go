package repository

import "context"

// Locker serializes work on a single key (an invoice, a user). Lock blocks
// until the key is acquired or ctx is done and returns the release func.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}
