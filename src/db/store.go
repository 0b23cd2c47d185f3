package db

import (
	"context"
	"hallpass/src/models"
	"hallpass/src/types"
	"time"
)

// StatusChange describes one compare-and-set on a pass status.
type StatusChange struct {
	Expected     types.PassStatus
	Next         types.PassStatus
	ActorID      string
	RejectReason *string
	DecidedAt    *time.Time
	At           time.Time
}

// PassStore is the record of passes, users and status history.
// UpdateStatus is the only way a stored status changes.
type PassStore interface {
	CreatePass(ctx context.Context, pass *models.Pass) error
	GetPass(ctx context.Context, id string) (*models.Pass, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.Pass, error)
	ListByTeacher(ctx context.Context, teacherID string) ([]models.Pass, error)
	ListPendingForTeacher(ctx context.Context, teacherID string) ([]models.Pass, error)
	ListExpirable(ctx context.Context, now time.Time, limit int) ([]models.Pass, error)
	UpdateStatus(ctx context.Context, id string, change StatusChange) (*models.Pass, error)
	History(ctx context.Context, id string) ([]models.PassStatusChange, error)

	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUsers(ctx context.Context, ids []string) ([]models.User, error)
	ListTeachers(ctx context.Context) ([]models.User, error)
	SaveUser(ctx context.Context, user *models.User) error
}

func passNotFound(id string) error {
	return &types.NotFoundError{Resource: "pass", ID: id}
}

func userNotFound(id string) error {
	return &types.NotFoundError{Resource: "user", ID: id}
}

func historyRow(id string, from types.PassStatus, change StatusChange) models.PassStatusChange {
	return models.PassStatusChange{
		PassID:  id,
		From:    from,
		To:      change.Next,
		ActorID: change.ActorID,
		Reason:  change.RejectReason,
		At:      change.At,
	}
}
