package services

import (
	"context"
	"hallpass/src/db"
	"hallpass/src/models"
	"hallpass/src/types"
	"hallpass/src/utils"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type recorder struct {
	mu     sync.Mutex
	events []PassEvent
}

func (r *recorder) Publish(ctx context.Context, event PassEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) Types() []types.PassEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.PassEventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type countingThrottle struct {
	max      int
	failures atomic.Int32
}

func (t *countingThrottle) Allow(ctx context.Context, userID string) bool {
	return int(t.failures.Load()) < t.max
}

func (t *countingThrottle) RecordFailure(ctx context.Context, userID string) {
	t.failures.Add(1)
}

type fakeQRCode struct{}

func (fakeQRCode) QRCode(ctx context.Context, passID string, payload string) (string, error) {
	return "qr:" + payload, nil
}

type ServiceSuite struct {
	suite.Suite
	ctx      context.Context
	loc      *time.Location
	store    *db.MemoryStore
	clock    *clock
	events   *recorder
	throttle *countingThrottle
	service  *PassService

	student types.Caller
	other   types.Caller
	teacher types.Caller
	second  types.Caller
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	loc, err := time.LoadLocation("Asia/Seoul")
	s.Require().NoError(err)
	s.loc = loc
	s.store = db.NewMemoryStore()
	s.clock = &clock{now: time.Date(2024, 3, 1, 8, 0, 0, 0, loc)}
	s.events = &recorder{}
	s.throttle = &countingThrottle{max: 100}

	signer, err := utils.NewSigner([]byte(strings.Repeat("k", utils.MIN_SECRET_LENGTH)))
	s.Require().NoError(err)
	s.service = NewPassService(s.store, signer, Policy{
		Location:    loc,
		DayEnd:      17 * time.Hour,
		OutingGrace: 30 * time.Minute,
	},
		WithClock(s.clock.Now),
		WithPublisher(s.events),
		WithQRCodeRenderer(fakeQRCode{}),
		WithThrottle(s.throttle),
	)

	users := []models.User{
		{ID: "s1", Email: "dana@school.test", FirstName: "Dana", LastName: "Lee"},
		{ID: "s2", Email: "joon@school.test", FirstName: "Joon", LastName: "Park"},
		{ID: "t1", Email: "minho@school.test", FirstName: "Minho", LastName: "Kim", IsTeacher: true},
		{ID: "t2", Email: "sora@school.test", FirstName: "Sora", LastName: "Choi", IsTeacher: true},
	}
	for i := range users {
		s.Require().NoError(s.store.SaveUser(s.ctx, &users[i]))
	}
	s.student = types.Caller{ID: "s1", Email: "dana@school.test"}
	s.other = types.Caller{ID: "s2", Email: "joon@school.test"}
	s.teacher = types.Caller{ID: "t1", Email: "minho@school.test", IsTeacher: true}
	s.second = types.Caller{ID: "t2", Email: "sora@school.test", IsTeacher: true}
}

func ptr(s string) *string {
	return &s
}

func (s *ServiceSuite) outing() *PassView {
	view, err := s.service.CreatePass(s.ctx, s.student, CreatePassInput{
		Type:       string(types.PASS_OUTING),
		StartTime:  "2024-03-01T09:00",
		ReturnTime: ptr("2024-03-01T10:00"),
		Reason:     "hospital",
		TeacherID:  "t1",
	})
	s.Require().NoError(err)
	return view
}

func (s *ServiceSuite) TestOutingWorkedExample() {
	view := s.outing()
	s.Equal(types.PASS_PENDING, view.Pass.Status)
	s.Equal(time.Date(2024, 3, 1, 10, 30, 0, 0, s.loc), view.Pass.ExpiresAt.In(s.loc))
	s.True(view.Pass.ExpiresAt.After(view.Pass.StartTime))
	s.Empty(view.QRCode)
	s.Equal("Dana", view.Student.FirstName)
	s.Equal("Kim", view.Teacher.LastName)

	decision, err := s.service.Approve(s.ctx, s.teacher, view.Pass.ID)
	s.Require().NoError(err)
	s.True(decision.Applied)
	s.Equal(types.PASS_APPROVED, decision.View.Pass.Status)
	s.NotNil(decision.View.Pass.DecidedAt)

	hash := view.Pass.VerificationToken
	s.clock.Set(time.Date(2024, 3, 1, 9, 30, 0, 0, s.loc))
	result, err := s.service.Verify(s.ctx, s.teacher, view.Pass.ID, hash)
	s.Require().NoError(err)
	s.True(result.IsValid)
	s.Equal(string(types.PASS_APPROVED), result.Status)

	// Scanning again inside the window is still valid.
	result, err = s.service.Verify(s.ctx, s.second, view.Pass.ID, hash)
	s.Require().NoError(err)
	s.True(result.IsValid)

	s.clock.Set(view.Pass.ExpiresAt.Add(time.Second))
	result, err = s.service.Verify(s.ctx, s.teacher, view.Pass.ID, hash)
	s.Require().NoError(err)
	s.False(result.IsValid)
	s.Equal(string(types.PASS_EXPIRED), result.Status)

	stored, err := s.store.GetPass(s.ctx, view.Pass.ID)
	s.Require().NoError(err)
	s.Equal(types.PASS_EXPIRED, stored.Status)

	history, err := s.service.History(s.ctx, s.student, view.Pass.ID)
	s.Require().NoError(err)
	s.Require().Len(history, 3)
	s.Equal(types.PASS_PENDING, history[0].To)
	s.Equal(types.PASS_APPROVED, history[1].To)
	s.Equal(types.PASS_EXPIRED, history[2].To)
	s.Equal(types.SYSTEM_ACTOR, history[2].ActorID)

	s.Equal([]types.PassEventType{
		types.PASS_EVENT_CREATED,
		types.PASS_EVENT_APPROVED,
		types.PASS_EVENT_EXPIRED,
	}, s.events.Types())
}

func (s *ServiceSuite) TestCreateValidation() {
	cases := []struct {
		name  string
		input CreatePassInput
		field string
	}{
		{"unknown type", CreatePassInput{Type: "FIELD_TRIP", StartTime: "2024-03-01T09:00", Reason: "x", TeacherID: "t1"}, "type"},
		{"blank reason", CreatePassInput{Type: "EARLY_LEAVE", StartTime: "2024-03-01T09:00", Reason: "  ", TeacherID: "t1"}, "reason"},
		{"bad start", CreatePassInput{Type: "EARLY_LEAVE", StartTime: "tomorrow", Reason: "x", TeacherID: "t1"}, "startTime"},
		{"outing without return", CreatePassInput{Type: "OUTING", StartTime: "2024-03-01T09:00", Reason: "x", TeacherID: "t1"}, "returnTime"},
		{"return before start", CreatePassInput{Type: "OUTING", StartTime: "2024-03-01T09:00", ReturnTime: ptr("2024-03-01T08:00"), Reason: "x", TeacherID: "t1"}, "returnTime"},
		{"unknown teacher", CreatePassInput{Type: "EARLY_LEAVE", StartTime: "2024-03-01T09:00", Reason: "x", TeacherID: "nobody"}, "teacherId"},
		{"student as teacher", CreatePassInput{Type: "EARLY_LEAVE", StartTime: "2024-03-01T09:00", Reason: "x", TeacherID: "s2"}, "teacherId"},
		{"window over", CreatePassInput{Type: "OUTING", StartTime: "2024-03-01T06:00", ReturnTime: ptr("2024-03-01T07:00"), Reason: "x", TeacherID: "t1"}, "startTime"},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			_, err := s.service.CreatePass(s.ctx, s.student, tc.input)
			var validation *types.ValidationError
			s.Require().ErrorAs(err, &validation)
			s.Equal(tc.field, validation.Field)
		})
	}

	passes, err := s.store.ListByStudent(s.ctx, s.student.ID)
	s.Require().NoError(err)
	s.Empty(passes)
}

func (s *ServiceSuite) TestEarlyLeaveExpiresAtEndOfDay() {
	view, err := s.service.CreatePass(s.ctx, s.student, CreatePassInput{
		Type:       string(types.PASS_EARLY_LEAVE),
		StartTime:  "2024-03-01T13:00:00+09:00",
		ReturnTime: ptr("2024-03-01T14:00"),
		Reason:     "dentist",
		TeacherID:  "t1",
	})
	s.Require().NoError(err)
	s.Nil(view.Pass.ReturnTime)
	s.Equal(time.Date(2024, 3, 1, 17, 0, 0, 0, s.loc), view.Pass.ExpiresAt.In(s.loc))
}

func (s *ServiceSuite) TestTeachersCannotCreate() {
	_, err := s.service.CreatePass(s.ctx, s.teacher, CreatePassInput{Type: "EARLY_LEAVE", StartTime: "2024-03-01T09:00", Reason: "x", TeacherID: "t1"})
	var authz *types.AuthorizationError
	s.ErrorAs(err, &authz)
}

func (s *ServiceSuite) TestDecisionAuthorization() {
	view := s.outing()

	_, err := s.service.Approve(s.ctx, s.student, view.Pass.ID)
	var authz *types.AuthorizationError
	s.ErrorAs(err, &authz)

	_, err = s.service.Approve(s.ctx, s.second, view.Pass.ID)
	s.ErrorAs(err, &authz)

	_, err = s.service.Approve(s.ctx, s.teacher, uuid.NewString())
	var notFound *types.NotFoundError
	s.ErrorAs(err, &notFound)

	stored, err := s.store.GetPass(s.ctx, view.Pass.ID)
	s.Require().NoError(err)
	s.Equal(types.PASS_PENDING, stored.Status)
}

func (s *ServiceSuite) TestDuplicateDecisions() {
	view := s.outing()

	first, err := s.service.Approve(s.ctx, s.teacher, view.Pass.ID)
	s.Require().NoError(err)
	s.True(first.Applied)

	again, err := s.service.Approve(s.ctx, s.teacher, view.Pass.ID)
	s.Require().NoError(err)
	s.False(again.Applied)
	s.Equal(types.PASS_APPROVED, again.View.Pass.Status)

	_, err = s.service.Reject(s.ctx, s.teacher, view.Pass.ID, "changed my mind")
	var conflict *types.ConflictError
	s.Require().ErrorAs(err, &conflict)
	s.Equal(types.PASS_APPROVED, conflict.Actual)

	history, err := s.store.History(s.ctx, view.Pass.ID)
	s.Require().NoError(err)
	s.Len(history, 2)
}

func (s *ServiceSuite) TestReject() {
	view := s.outing()

	_, err := s.service.Reject(s.ctx, s.teacher, view.Pass.ID, "   ")
	var validation *types.ValidationError
	s.ErrorAs(err, &validation)

	decision, err := s.service.Reject(s.ctx, s.teacher, view.Pass.ID, " exam today ")
	s.Require().NoError(err)
	s.True(decision.Applied)
	s.Equal(types.PASS_REJECTED, decision.View.Pass.Status)
	s.Require().NotNil(decision.View.Pass.RejectReason)
	s.Equal("exam today", *decision.View.Pass.RejectReason)
	s.Empty(decision.View.QRCode)

	result, err := s.service.Verify(s.ctx, s.teacher, view.Pass.ID, view.Pass.VerificationToken)
	s.Require().NoError(err)
	s.False(result.IsValid)
	s.Equal(string(types.PASS_REJECTED), result.Status)
}

func (s *ServiceSuite) TestApproveAfterWindowEnded() {
	view := s.outing()
	s.clock.Set(view.Pass.ExpiresAt.Add(time.Minute))

	_, err := s.service.Approve(s.ctx, s.teacher, view.Pass.ID)
	var validation *types.ValidationError
	s.ErrorAs(err, &validation)

	decision, err := s.service.Reject(s.ctx, s.teacher, view.Pass.ID, "too late")
	s.Require().NoError(err)
	s.True(decision.Applied)
}

func (s *ServiceSuite) TestConcurrentApprovals() {
	view := s.outing()

	var wg sync.WaitGroup
	var applied atomic.Int32
	var failures atomic.Int32
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			decision, err := s.service.Approve(s.ctx, s.teacher, view.Pass.ID)
			if err != nil {
				failures.Add(1)
				return
			}
			if decision.Applied {
				applied.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), applied.Load())
	s.Equal(int32(0), failures.Load())
	history, err := s.store.History(s.ctx, view.Pass.ID)
	s.Require().NoError(err)
	s.Len(history, 2)
}

func (s *ServiceSuite) TestVerifyDoesNotLeakStatus() {
	view := s.outing()
	wrong := strings.Repeat("0", len(view.Pass.VerificationToken))

	pending, err := s.service.Verify(s.ctx, s.teacher, view.Pass.ID, wrong)
	s.Require().NoError(err)

	_, err = s.service.Approve(s.ctx, s.teacher, view.Pass.ID)
	s.Require().NoError(err)
	approved, err := s.service.Verify(s.ctx, s.teacher, view.Pass.ID, wrong)
	s.Require().NoError(err)

	missing, err := s.service.Verify(s.ctx, s.teacher, uuid.NewString(), wrong)
	s.Require().NoError(err)
	garbage, err := s.service.Verify(s.ctx, s.teacher, "../../etc", wrong)
	s.Require().NoError(err)

	for _, result := range []*Verification{pending, approved, missing, garbage} {
		s.False(result.IsValid)
		s.Equal(types.VERDICT_INVALID, result.Status)
	}
	s.Equal(int32(4), s.throttle.failures.Load())
}

func (s *ServiceSuite) TestVerifyRequiresTeacher() {
	view := s.outing()
	_, err := s.service.Verify(s.ctx, s.student, view.Pass.ID, view.Pass.VerificationToken)
	var authz *types.AuthorizationError
	s.ErrorAs(err, &authz)
}

func (s *ServiceSuite) TestVerifyThrottled() {
	s.throttle.max = 1
	view := s.outing()
	_, err := s.service.Verify(s.ctx, s.teacher, view.Pass.ID, "nope")
	s.Require().NoError(err)

	_, err = s.service.Verify(s.ctx, s.teacher, view.Pass.ID, view.Pass.VerificationToken)
	s.ErrorIs(err, types.ErrThrottled)
}

func (s *ServiceSuite) TestQRCodeRoundTrip() {
	view := s.outing()
	_, err := s.service.Approve(s.ctx, s.teacher, view.Pass.ID)
	s.Require().NoError(err)

	owned, err := s.service.GetPass(s.ctx, s.student, view.Pass.ID)
	s.Require().NoError(err)
	s.Require().True(strings.HasPrefix(owned.QRCode, "qr:"))

	payload, err := utils.DecodePayload(strings.TrimPrefix(owned.QRCode, "qr:"))
	s.Require().NoError(err)
	s.Equal(view.Pass.ID, payload.ID)

	for _, at := range []time.Time{
		time.Date(2024, 3, 1, 9, 30, 0, 0, s.loc),
		time.Date(2024, 3, 1, 11, 0, 0, 0, s.loc),
	} {
		s.clock.Set(at)
		result, err := s.service.Verify(s.ctx, s.teacher, payload.ID, payload.Hash)
		s.Require().NoError(err)
		direct, err := s.service.GetPass(s.ctx, s.teacher, view.Pass.ID)
		s.Require().NoError(err)
		s.Equal(string(direct.Pass.Status), result.Status)
		s.Equal(direct.Pass.Status == types.PASS_APPROVED, result.IsValid)
	}
}

func (s *ServiceSuite) TestReadAccess() {
	view := s.outing()

	_, err := s.service.GetPass(s.ctx, s.other, view.Pass.ID)
	var notFound *types.NotFoundError
	s.ErrorAs(err, &notFound)

	_, err = s.service.History(s.ctx, s.other, view.Pass.ID)
	s.ErrorAs(err, &notFound)

	got, err := s.service.GetPass(s.ctx, s.second, view.Pass.ID)
	s.Require().NoError(err)
	s.Equal(view.Pass.ID, got.Pass.ID)

	_, err = s.service.ListPending(s.ctx, s.student)
	var authz *types.AuthorizationError
	s.ErrorAs(err, &authz)
}

func (s *ServiceSuite) TestListsApplyLazyExpiry() {
	view := s.outing()
	_, err := s.service.Approve(s.ctx, s.teacher, view.Pass.ID)
	s.Require().NoError(err)

	pending, err := s.service.ListPending(s.ctx, s.teacher)
	s.Require().NoError(err)
	s.Empty(pending)

	s.clock.Set(time.Date(2024, 3, 1, 12, 0, 0, 0, s.loc))
	mine, err := s.service.ListMine(s.ctx, s.student)
	s.Require().NoError(err)
	s.Require().Len(mine, 1)
	s.Equal(types.PASS_EXPIRED, mine[0].Pass.Status)

	assigned, err := s.service.ListMine(s.ctx, s.teacher)
	s.Require().NoError(err)
	s.Require().Len(assigned, 1)
	s.Equal(types.PASS_EXPIRED, assigned[0].Pass.Status)
}

func (s *ServiceSuite) TestListsCarryQRCode() {
	approved := s.outing()
	_, err := s.service.Approve(s.ctx, s.teacher, approved.Pass.ID)
	s.Require().NoError(err)
	rejected := s.outing()
	_, err = s.service.Reject(s.ctx, s.teacher, rejected.Pass.ID, "exam today")
	s.Require().NoError(err)
	pending := s.outing()

	codes := func(views []PassView) map[string]string {
		out := make(map[string]string, len(views))
		for _, v := range views {
			out[v.Pass.ID] = v.QRCode
		}
		return out
	}

	mine, err := s.service.ListMine(s.ctx, s.student)
	s.Require().NoError(err)
	got := codes(mine)
	s.Require().Len(got, 3)
	s.True(strings.HasPrefix(got[approved.Pass.ID], "qr:"))
	s.Empty(got[rejected.Pass.ID])
	s.Empty(got[pending.Pass.ID])

	assigned, err := s.service.ListMine(s.ctx, s.teacher)
	s.Require().NoError(err)
	s.Equal(got[approved.Pass.ID], codes(assigned)[approved.Pass.ID])

	s.clock.Set(time.Date(2024, 3, 1, 23, 0, 0, 0, s.loc))
	mine, err = s.service.ListMine(s.ctx, s.student)
	s.Require().NoError(err)
	s.Equal(got[approved.Pass.ID], codes(mine)[approved.Pass.ID])

	detail, err := s.service.GetPass(s.ctx, s.student, approved.Pass.ID)
	s.Require().NoError(err)
	s.Equal(types.PASS_EXPIRED, detail.Pass.Status)
	s.Equal(got[approved.Pass.ID], detail.QRCode)

	payload, err := utils.DecodePayload(strings.TrimPrefix(detail.QRCode, "qr:"))
	s.Require().NoError(err)
	result, err := s.service.Verify(s.ctx, s.teacher, payload.ID, payload.Hash)
	s.Require().NoError(err)
	s.False(result.IsValid)
	s.Equal(string(types.PASS_EXPIRED), result.Status)
}

func (s *ServiceSuite) TestSweepExpired() {
	first := s.outing()
	second := s.outing()
	third := s.outing()
	for _, v := range []*PassView{first, second} {
		_, err := s.service.Approve(s.ctx, s.teacher, v.Pass.ID)
		s.Require().NoError(err)
	}

	count, err := s.service.SweepExpired(s.ctx, 10)
	s.Require().NoError(err)
	s.Equal(0, count)

	s.clock.Set(time.Date(2024, 3, 1, 12, 0, 0, 0, s.loc))
	count, err = s.service.SweepExpired(s.ctx, 1)
	s.Require().NoError(err)
	s.Equal(1, count)
	count, err = s.service.SweepExpired(s.ctx, 10)
	s.Require().NoError(err)
	s.Equal(1, count)

	for id, want := range map[string]types.PassStatus{
		first.Pass.ID:  types.PASS_EXPIRED,
		second.Pass.ID: types.PASS_EXPIRED,
		third.Pass.ID:  types.PASS_PENDING,
	} {
		stored, err := s.store.GetPass(s.ctx, id)
		s.Require().NoError(err)
		s.Equal(want, stored.Status)
	}
}

func (s *ServiceSuite) TestStoreUnavailable() {
	view := s.outing()
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	_, err := s.service.Verify(ctx, s.teacher, view.Pass.ID, view.Pass.VerificationToken)
	s.True(types.IsRetryable(err))
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}
