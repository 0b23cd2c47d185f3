package services

import (
	"context"
	"errors"
	"hallpass/src/db"
	"hallpass/src/models"
	"hallpass/src/types"
	"log"
)

// refresh applies lazy expiry: an approved pass read past its expiry is moved
// to EXPIRED before anything is decided on it.
func (s *PassService) refresh(ctx context.Context, pass *models.Pass) (*models.Pass, error) {
	now := s.now()
	if !pass.Expired(now) {
		return pass, nil
	}
	updated, err := s.expire(ctx, pass)
	var conflict *types.ConflictError
	if errors.As(err, &conflict) {
		return s.store.GetPass(ctx, pass.ID)
	}
	if err != nil {
		// The read still reports the effective status; the sweep will persist it later.
		log.Printf("Error expiring pass %s: %s\n", pass.ID, err.Error())
		expired := *pass
		expired.Status = types.PASS_EXPIRED
		return &expired, nil
	}
	return updated, nil
}

func (s *PassService) refreshAll(ctx context.Context, passes []models.Pass) ([]models.Pass, error) {
	for i := range passes {
		p, err := s.refresh(ctx, &passes[i])
		if err != nil {
			return nil, err
		}
		passes[i] = *p
	}
	return passes, nil
}

func (s *PassService) expire(ctx context.Context, pass *models.Pass) (*models.Pass, error) {
	now := s.now()
	updated, err := s.store.UpdateStatus(ctx, pass.ID, db.StatusChange{
		Expected: types.PASS_APPROVED,
		Next:     types.PASS_EXPIRED,
		ActorID:  types.SYSTEM_ACTOR,
		At:       now,
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, PassEvent{
		Type:    types.PASS_EVENT_EXPIRED,
		Pass:    *updated,
		ActorID: types.SYSTEM_ACTOR,
		At:      now,
	})
	return updated, nil
}
