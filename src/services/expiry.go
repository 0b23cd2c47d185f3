package services

import (
	"context"
	"errors"
	"hallpass/src/types"
	"log"
)

// SweepExpired persists EXPIRED for approved passes past their expiry, at most
// limit per call. Passes changed concurrently are skipped.
func (s *PassService) SweepExpired(ctx context.Context, limit int) (int, error) {
	passes, err := s.store.ListExpirable(ctx, s.now(), limit)
	if err != nil {
		return 0, err
	}
	count := 0
	for i := range passes {
		if _, err := s.expire(ctx, &passes[i]); err != nil {
			var conflict *types.ConflictError
			var notFound *types.NotFoundError
			if errors.As(err, &conflict) || errors.As(err, &notFound) {
				continue
			}
			return count, err
		}
		count++
	}
	if count > 0 {
		log.Printf("[expiry] Expired %d passes\n", count)
	}
	return count, nil
}
