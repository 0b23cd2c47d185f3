package services

import (
	"context"
	"errors"
	"hallpass/src/types"
	"log"
	"strings"

	"github.com/google/uuid"
)

// Verification is the answer given to a scanner. Status is VERDICT_INVALID
// when the id is unknown or the hash does not match.
type Verification struct {
	IsValid bool
	Status  string
}

func (v *Verification) Response() types.APIResponseVerify {
	return types.APIResponseVerify{IsValid: v.IsValid, Status: v.Status}
}

func invalid() *Verification {
	return &Verification{IsValid: false, Status: types.VERDICT_INVALID}
}

// Verify checks a scanned pass code. Only store failures are returned as
// errors; every other failure is reported as an INVALID verification.
func (s *PassService) Verify(ctx context.Context, caller types.Caller, id string, hash string) (*Verification, error) {
	if !caller.IsTeacher {
		return nil, &types.AuthorizationError{Action: "verify passes"}
	}
	if s.throttle != nil && !s.throttle.Allow(ctx, caller.ID) {
		return nil, types.ErrThrottled
	}
	id = strings.TrimSpace(id)
	if _, err := uuid.Parse(id); err != nil {
		s.signer.MatchesNothing(hash)
		s.failed(ctx, caller, id)
		return invalid(), nil
	}

	pass, err := s.store.GetPass(ctx, id)
	var notFound *types.NotFoundError
	if errors.As(err, &notFound) {
		s.signer.MatchesNothing(hash)
		s.failed(ctx, caller, id)
		return invalid(), nil
	}
	if err != nil {
		return nil, err
	}
	if !s.signer.Matches(pass.VerificationToken, hash) {
		s.failed(ctx, caller, id)
		return invalid(), nil
	}

	pass, err = s.refresh(ctx, pass)
	if err != nil {
		return nil, err
	}
	return &Verification{
		IsValid: pass.Status == types.PASS_APPROVED,
		Status:  string(pass.Status),
	}, nil
}

func (s *PassService) failed(ctx context.Context, caller types.Caller, id string) {
	log.Printf("Rejected pass code for %q scanned by %s\n", id, caller.ID)
	if s.throttle != nil {
		s.throttle.RecordFailure(ctx, caller.ID)
	}
}
