package idempotency

import (
	"context"

	"conductor/internal/types"

	"golang.org/x/sync/singleflight"
)

// Group allows at most one in-flight dispatch per client_turn_id. Callers
// that arrive while a dispatch is running wait for it and share its result.
type Group struct {
	sf singleflight.Group
}

// Do runs fn for key unless a call for key is already running, in which case
// it waits for that call. coalesced reports whether this caller received
// another caller's result; it is false for the caller whose fn ran. If ctx
// ends first, Do returns ctx.Err() and fn keeps running for
// the other waiters.
//
// fn must not panic.
func (g *Group) Do(ctx context.Context, key string, fn func() types.TurnResponse) (resp types.TurnResponse, coalesced bool, err error) {
	// led is written by fn before the result is delivered on ch.
	led := false
	ch := g.sf.DoChan(key, func() (interface{}, error) {
		led = true
		return fn(), nil
	})
	select {
	case <-ctx.Done():
		return types.TurnResponse{}, false, ctx.Err()
	case res := <-ch:
		return res.Val.(types.TurnResponse), !led, nil
	}
}
