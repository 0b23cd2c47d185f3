package db

import (
	"context"
	"errors"
	"hallpass/src/models"
	"hallpass/src/types"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore keeps passes in PostgreSQL. Every call runs under its own timeout.
type GormStore struct {
	db      *gorm.DB
	timeout time.Duration
}

func NewGormStore(db *gorm.DB, timeout time.Duration) *GormStore {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &GormStore{db: db, timeout: timeout}
}

func (s *GormStore) session(ctx context.Context) (*gorm.DB, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	return s.db.WithContext(ctx), cancel
}

// fail converts driver errors into the error taxonomy used by the services.
func fail(op string, err error) error {
	if err == nil {
		return nil
	}
	var notFound *types.NotFoundError
	var conflict *types.ConflictError
	if errors.As(err, &notFound) || errors.As(err, &conflict) {
		return err
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return &types.ConflictError{Message: "record already exists"}
	}
	if pgconn.Timeout(err) || errors.Is(err, context.DeadlineExceeded) {
		log.Printf("[store] %s timed out: %s\n", op, err.Error())
	} else {
		log.Printf("[store] %s failed: %s\n", op, err.Error())
	}
	return &types.InfrastructureError{Op: op, Err: err}
}

func (s *GormStore) CreatePass(ctx context.Context, pass *models.Pass) error {
	db, cancel := s.session(ctx)
	defer cancel()
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(pass).Error; err != nil {
			return err
		}
		row := historyRow(pass.ID, "", StatusChange{
			Next:    pass.Status,
			ActorID: pass.StudentID,
			At:      pass.CreatedAt,
		})
		return tx.Create(&row).Error
	})
	return fail("create pass", err)
}

func (s *GormStore) GetPass(ctx context.Context, id string) (*models.Pass, error) {
	db, cancel := s.session(ctx)
	defer cancel()
	var pass models.Pass
	err := db.Where("id = ?", id).First(&pass).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, passNotFound(id)
	}
	if err != nil {
		return nil, fail("get pass", err)
	}
	return &pass, nil
}

func (s *GormStore) listPasses(ctx context.Context, op string, query any, args ...any) ([]models.Pass, error) {
	db, cancel := s.session(ctx)
	defer cancel()
	passes := make([]models.Pass, 0)
	err := db.
		Where(query, args...).
		Order("start_time desc").
		Find(&passes).
		Error
	if err != nil {
		return nil, fail(op, err)
	}
	return passes, nil
}

func (s *GormStore) ListByStudent(ctx context.Context, studentID string) ([]models.Pass, error) {
	return s.listPasses(ctx, "list student passes", "student_id = ?", studentID)
}

func (s *GormStore) ListByTeacher(ctx context.Context, teacherID string) ([]models.Pass, error) {
	return s.listPasses(ctx, "list teacher passes", "teacher_id = ?", teacherID)
}

func (s *GormStore) ListPendingForTeacher(ctx context.Context, teacherID string) ([]models.Pass, error) {
	return s.listPasses(ctx, "list pending passes", "teacher_id = ? AND status = ?", teacherID, types.PASS_PENDING)
}

func (s *GormStore) ListExpirable(ctx context.Context, now time.Time, limit int) ([]models.Pass, error) {
	db, cancel := s.session(ctx)
	defer cancel()
	passes := make([]models.Pass, 0)
	q := db.
		Where("status = ? AND expires_at < ?", types.PASS_APPROVED, now).
		Order("expires_at asc")
	// a non-positive limit means no cap, as in the memory store
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&passes).Error
	if err != nil {
		return nil, fail("list expirable passes", err)
	}
	return passes, nil
}

func (s *GormStore) UpdateStatus(ctx context.Context, id string, change StatusChange) (*models.Pass, error) {
	db, cancel := s.session(ctx)
	defer cancel()
	var pass models.Pass
	err := db.Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{"status": change.Next}
		if change.RejectReason != nil {
			updates["reject_reason"] = *change.RejectReason
		}
		if change.DecidedAt != nil {
			updates["decided_at"] = *change.DecidedAt
		}
		res := tx.
			Model(&models.Pass{}).
			Where("id = ? AND status = ?", id, change.Expected).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			if err := tx.Where("id = ?", id).First(&pass).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return passNotFound(id)
				}
				return err
			}
			return &types.ConflictError{ID: id, Expected: change.Expected, Actual: pass.Status}
		}
		row := historyRow(id, change.Expected, change)
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).First(&pass).Error
	})
	if err != nil {
		return nil, fail("update pass status", err)
	}
	return &pass, nil
}

func (s *GormStore) History(ctx context.Context, id string) ([]models.PassStatusChange, error) {
	db, cancel := s.session(ctx)
	defer cancel()
	changes := make([]models.PassStatusChange, 0)
	err := db.
		Where("pass_id = ?", id).
		Order("at asc, id asc").
		Find(&changes).
		Error
	if err != nil {
		return nil, fail("pass history", err)
	}
	return changes, nil
}

func (s *GormStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	db, cancel := s.session(ctx)
	defer cancel()
	var user models.User
	err := db.Where("id = ?", id).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, userNotFound(id)
	}
	if err != nil {
		return nil, fail("get user", err)
	}
	return &user, nil
}

func (s *GormStore) GetUsers(ctx context.Context, ids []string) ([]models.User, error) {
	users := make([]models.User, 0)
	if len(ids) == 0 {
		return users, nil
	}
	db, cancel := s.session(ctx)
	defer cancel()
	if err := db.Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, fail("get users", err)
	}
	return users, nil
}

func (s *GormStore) ListTeachers(ctx context.Context) ([]models.User, error) {
	db, cancel := s.session(ctx)
	defer cancel()
	users := make([]models.User, 0)
	err := db.
		Where("is_teacher = ?", true).
		Order("last_name asc, first_name asc").
		Find(&users).
		Error
	if err != nil {
		return nil, fail("list teachers", err)
	}
	return users, nil
}

func (s *GormStore) SaveUser(ctx context.Context, user *models.User) error {
	db, cancel := s.session(ctx)
	defer cancel()
	err := db.
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"email", "first_name", "last_name", "is_teacher", "updated_at"}),
		}).
		Create(user).
		Error
	return fail("save user", err)
}
