package services

import (
	"context"
	"errors"
	"fmt"
	"hallpass/src/db"
	"hallpass/src/models"
	"hallpass/src/types"
	"hallpass/src/utils"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
)

type CreatePassInput struct {
	Type       string
	StartTime  string
	ReturnTime *string
	Reason     string
	TeacherID  string
}

func NewCreatePassInput(body *types.CreatePassRequestBody) CreatePassInput {
	return CreatePassInput{
		Type:       body.Type,
		StartTime:  body.StartTime,
		ReturnTime: body.ReturnTime,
		Reason:     body.Reason,
		TeacherID:  body.TeacherID,
	}
}

// Decision is the outcome of an approve or reject. Applied is false when the
// pass already carried the requested decision and nothing was written.
type Decision struct {
	View    *PassView
	Applied bool
}

func (d *Decision) Response() types.APIResponseDecision {
	return types.APIResponseDecision{Pass: d.View.Response(), Applied: d.Applied}
}

func (s *PassService) CreatePass(ctx context.Context, caller types.Caller, input CreatePassInput) (*PassView, error) {
	if caller.IsTeacher {
		return nil, &types.AuthorizationError{Action: "request a pass"}
	}
	passType := types.PassType(input.Type)
	if !passType.Valid() {
		return nil, &types.ValidationError{Field: "type", Message: "must be EARLY_LEAVE or OUTING"}
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, &types.ValidationError{Field: "reason", Message: "is required"}
	}
	start, err := utils.ParsePassTime(input.StartTime, s.policy.Location)
	if err != nil {
		return nil, &types.ValidationError{Field: "startTime", Message: err.Error()}
	}
	var returnTime *time.Time
	if passType == types.PASS_OUTING {
		if input.ReturnTime == nil || strings.TrimSpace(*input.ReturnTime) == "" {
			return nil, &types.ValidationError{Field: "returnTime", Message: "is required for an outing"}
		}
		rt, err := utils.ParsePassTime(*input.ReturnTime, s.policy.Location)
		if err != nil {
			return nil, &types.ValidationError{Field: "returnTime", Message: err.Error()}
		}
		if !rt.After(start) {
			return nil, &types.ValidationError{Field: "returnTime", Message: "must be after startTime"}
		}
		returnTime = &rt
	}

	teacher, err := s.store.GetUser(ctx, input.TeacherID)
	var notFound *types.NotFoundError
	if errors.As(err, &notFound) {
		return nil, &types.ValidationError{Field: "teacherId", Message: "unknown teacher"}
	}
	if err != nil {
		return nil, err
	}
	if !teacher.IsTeacher {
		return nil, &types.ValidationError{Field: "teacherId", Message: "is not a teacher"}
	}

	now := s.now()
	expiresAt := s.policy.ExpiresAt(passType, start, returnTime)
	if !expiresAt.After(now) {
		return nil, &types.ValidationError{Field: "startTime", Message: "the pass window has already ended"}
	}

	id := uuid.NewString()
	pass := &models.Pass{
		ID:                id,
		Type:              passType,
		StartTime:         start,
		ReturnTime:        returnTime,
		ExpiresAt:         expiresAt,
		Reason:            reason,
		Status:            types.PASS_PENDING,
		StudentID:         caller.ID,
		TeacherID:         teacher.ID,
		VerificationToken: s.signer.Token(id, start),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.store.CreatePass(ctx, pass); err != nil {
		log.Printf("Error creating pass: %s\n", err.Error())
		return nil, err
	}
	log.Printf("Pass %s requested by %s for %s\n", id, caller.ID, teacher.ID)

	view, err := s.view(ctx, pass, false)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, PassEvent{
		Type:    types.PASS_EVENT_CREATED,
		Pass:    *pass,
		Student: &view.Student,
		Teacher: &view.Teacher,
		ActorID: caller.ID,
		At:      now,
	})
	return view, nil
}

func (s *PassService) Approve(ctx context.Context, caller types.Caller, id string) (*Decision, error) {
	return s.decide(ctx, caller, id, types.PASS_APPROVED, nil)
}

func (s *PassService) Reject(ctx context.Context, caller types.Caller, id string, reason string) (*Decision, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, &types.ValidationError{Field: "reason", Message: "is required to reject a pass"}
	}
	return s.decide(ctx, caller, id, types.PASS_REJECTED, &reason)
}

func (s *PassService) decide(ctx context.Context, caller types.Caller, id string, next types.PassStatus, reason *string) (*Decision, error) {
	if !caller.IsTeacher {
		return nil, &types.AuthorizationError{Action: "decide on a pass"}
	}
	pass, err := s.store.GetPass(ctx, id)
	if err != nil {
		return nil, err
	}
	if pass.TeacherID != caller.ID {
		return nil, &types.AuthorizationError{Action: "decide on a pass assigned to another teacher"}
	}
	pass, err = s.refresh(ctx, pass)
	if err != nil {
		return nil, err
	}
	if pass.Status != types.PASS_PENDING {
		return s.settled(ctx, pass, next)
	}
	now := s.now()
	if next == types.PASS_APPROVED && now.After(pass.ExpiresAt) {
		return nil, &types.ValidationError{Field: "id", Message: "the pass window has already ended"}
	}

	updated, err := s.store.UpdateStatus(ctx, id, db.StatusChange{
		Expected:     types.PASS_PENDING,
		Next:         next,
		ActorID:      caller.ID,
		RejectReason: reason,
		DecidedAt:    &now,
		At:           now,
	})
	var conflict *types.ConflictError
	if errors.As(err, &conflict) {
		// Lost the race: re-read once and report what the winner did.
		current, err := s.store.GetPass(ctx, id)
		if err != nil {
			return nil, err
		}
		return s.settled(ctx, current, next)
	}
	if err != nil {
		return nil, err
	}
	log.Printf("Pass %s %s by %s\n", id, strings.ToLower(string(next)), caller.ID)

	view, err := s.view(ctx, updated, true)
	if err != nil {
		return nil, err
	}
	eventType := types.PASS_EVENT_APPROVED
	if next == types.PASS_REJECTED {
		eventType = types.PASS_EVENT_REJECTED
	}
	s.publish(ctx, PassEvent{
		Type:    eventType,
		Pass:    *updated,
		Student: &view.Student,
		Teacher: &view.Teacher,
		ActorID: caller.ID,
		At:      now,
	})
	return &Decision{View: view, Applied: true}, nil
}

// settled answers a decision on a pass that is no longer pending.
func (s *PassService) settled(ctx context.Context, pass *models.Pass, next types.PassStatus) (*Decision, error) {
	if pass.Status != next {
		return nil, &types.ConflictError{
			ID:       pass.ID,
			Expected: types.PASS_PENDING,
			Actual:   pass.Status,
			Message:  fmt.Sprintf("pass already decided (%s)", pass.Status),
		}
	}
	view, err := s.view(ctx, pass, true)
	if err != nil {
		return nil, err
	}
	return &Decision{View: view, Applied: false}, nil
}

// readable loads a pass the caller may see. Students only see their own;
// other students' passes are reported as missing.
func (s *PassService) readable(ctx context.Context, caller types.Caller, id string) (*models.Pass, error) {
	pass, err := s.store.GetPass(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.IsTeacher && pass.StudentID != caller.ID {
		return nil, &types.NotFoundError{Resource: "pass", ID: id}
	}
	return pass, nil
}

func (s *PassService) GetPass(ctx context.Context, caller types.Caller, id string) (*PassView, error) {
	pass, err := s.readable(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	pass, err = s.refresh(ctx, pass)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, pass, true)
}

// ListMine returns a student's own passes, or the passes assigned to a teacher.
func (s *PassService) ListMine(ctx context.Context, caller types.Caller) ([]PassView, error) {
	var passes []models.Pass
	var err error
	if caller.IsTeacher {
		passes, err = s.store.ListByTeacher(ctx, caller.ID)
	} else {
		passes, err = s.store.ListByStudent(ctx, caller.ID)
	}
	if err != nil {
		return nil, err
	}
	if passes, err = s.refreshAll(ctx, passes); err != nil {
		return nil, err
	}
	return s.views(ctx, passes, true)
}

func (s *PassService) ListPending(ctx context.Context, caller types.Caller) ([]PassView, error) {
	if !caller.IsTeacher {
		return nil, &types.AuthorizationError{Action: "list pending passes"}
	}
	passes, err := s.store.ListPendingForTeacher(ctx, caller.ID)
	if err != nil {
		return nil, err
	}
	if passes, err = s.refreshAll(ctx, passes); err != nil {
		return nil, err
	}
	return s.views(ctx, passes, false)
}

func (s *PassService) History(ctx context.Context, caller types.Caller, id string) ([]models.PassStatusChange, error) {
	if _, err := s.readable(ctx, caller, id); err != nil {
		return nil, err
	}
	return s.store.History(ctx, id)
}
