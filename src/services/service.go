package services

import (
	"context"
	"hallpass/src/db"
	"hallpass/src/models"
	"hallpass/src/types"
	"hallpass/src/utils"
	"time"
)

// Policy holds the school rules that fix a pass's expiry at creation.
type Policy struct {
	Location    *time.Location
	DayEnd      time.Duration
	OutingGrace time.Duration
}

func (p Policy) ExpiresAt(passType types.PassType, start time.Time, returnTime *time.Time) time.Time {
	if passType == types.PASS_OUTING && returnTime != nil {
		return returnTime.Add(p.OutingGrace)
	}
	return utils.EndOfSchoolDay(start, p.Location, p.DayEnd)
}

type PassEvent struct {
	Type    types.PassEventType
	Pass    models.Pass
	Student *models.User
	Teacher *models.User
	ActorID string
	At      time.Time
}

// Publisher receives lifecycle events after the status write has committed.
// Implementations must not block the caller for long and cannot fail the operation.
type Publisher interface {
	Publish(ctx context.Context, event PassEvent)
}

type QRCodeRenderer interface {
	QRCode(ctx context.Context, passID string, payload string) (string, error)
}

type Throttle interface {
	Allow(ctx context.Context, userID string) bool
	RecordFailure(ctx context.Context, userID string)
}

type PassService struct {
	store     db.PassStore
	signer    *utils.Signer
	policy    Policy
	qr        QRCodeRenderer
	publisher Publisher
	throttle  Throttle
	now       func() time.Time
}

type Option func(*PassService)

func WithClock(now func() time.Time) Option {
	return func(s *PassService) { s.now = now }
}

func WithPublisher(p Publisher) Option {
	return func(s *PassService) { s.publisher = p }
}

func WithQRCodeRenderer(r QRCodeRenderer) Option {
	return func(s *PassService) { s.qr = r }
}

func WithThrottle(t Throttle) Option {
	return func(s *PassService) { s.throttle = t }
}

func NewPassService(store db.PassStore, signer *utils.Signer, policy Policy, opts ...Option) *PassService {
	if policy.Location == nil {
		policy.Location = time.UTC
	}
	s := &PassService{
		store:  store,
		signer: signer,
		policy: policy,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var passService *PassService

func GetPassService() *PassService {
	return passService
}

// SetPassService replaces the shared service, e.g. with one built on a test store.
func SetPassService(s *PassService) *PassService {
	passService = s
	return passService
}

func (s *PassService) Now() time.Time {
	return s.now()
}

func (s *PassService) Policy() Policy {
	return s.policy
}

func (s *PassService) publish(ctx context.Context, event PassEvent) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(ctx, event)
}

func (s *PassService) ListTeachers(ctx context.Context) ([]models.User, error) {
	return s.store.ListTeachers(ctx)
}

func (s *PassService) GetUser(ctx context.Context, id string) (*models.User, error) {
	return s.store.GetUser(ctx, id)
}
