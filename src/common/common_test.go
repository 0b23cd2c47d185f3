package common

import (
	"context"
	"hallpass/src/config"
	"hallpass/src/lib"
	"hallpass/src/models"
	"hallpass/src/services"
	"hallpass/src/types"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEvent(eventType types.PassEventType, status types.PassStatus) services.PassEvent {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	ret := start.Add(time.Hour)
	return services.PassEvent{
		Type: eventType,
		Pass: models.Pass{
			ID:         "pass-1",
			Type:       types.PASS_OUTING,
			StartTime:  start,
			ReturnTime: &ret,
			ExpiresAt:  ret.Add(30 * time.Minute),
			Reason:     "hospital",
			Status:     status,
			StudentID:  "s1",
			TeacherID:  "t1",
		},
		Student: &models.User{ID: "s1", Email: "dana@school.test", FirstName: "Dana", LastName: "Lee"},
		Teacher: &models.User{ID: "t1", Email: "minho@school.test", FirstName: "Minho", LastName: "Kim", IsTeacher: true},
		ActorID: "t1",
		At:      start,
	}
}

func TestEventPayload(t *testing.T) {
	payload := EventPayload(testEvent(types.PASS_EVENT_APPROVED, types.PASS_APPROVED))
	assert.Equal(t, "pass.approved", payload["type"])
	assert.Equal(t, "pass-1", payload["id"])
	assert.Equal(t, "APPROVED", payload["status"])
	assert.Equal(t, "2024-03-01T01:00:00Z", payload["returnTime"])
	assert.NotContains(t, payload, "rejectReason")
	assert.NotContains(t, payload, "verificationToken")
}

func TestNotification(t *testing.T) {
	created := Notification(testEvent(types.PASS_EVENT_CREATED, types.PASS_PENDING), time.UTC)
	require.NotNil(t, created)
	assert.Equal(t, []string{"minho@school.test"}, created.To)

	approved := Notification(testEvent(types.PASS_EVENT_APPROVED, types.PASS_APPROVED), time.UTC)
	require.NotNil(t, approved)
	assert.Equal(t, []string{"dana@school.test"}, approved.To)

	expired := testEvent(types.PASS_EVENT_EXPIRED, types.PASS_EXPIRED)
	expired.Student, expired.Teacher = nil, nil
	assert.Nil(t, Notification(expired, time.UTC))
}

func TestPublishWithKafka(t *testing.T) {
	prev := lib.Settings()
	lib.Configure(&config.Config{KafkaBroker: "localhost:9092"})
	t.Cleanup(func() { lib.Configure(prev) })
	var mu sync.Mutex
	produced := make([]string, 0)
	sent := make([]string, 0)
	p := &EventPublisher{
		topic:    "pass-events",
		location: time.UTC,
		wait:     true,
		produce: func(topic string, key string, payload map[string]any) error {
			mu.Lock()
			defer mu.Unlock()
			produced = append(produced, topic+"/"+key)
			return nil
		},
		send: func(input *lib.SendMailInput) error {
			mu.Lock()
			defer mu.Unlock()
			sent = append(sent, input.Subject)
			return nil
		},
	}

	p.Publish(context.Background(), testEvent(types.PASS_EVENT_REJECTED, types.PASS_REJECTED))
	assert.Equal(t, []string{"pass-events/pass-1"}, produced)
	assert.Equal(t, []string{"Your pass was rejected"}, sent)
}

func TestParseEmail(t *testing.T) {
	input := parseEmail(`{"from":"no-reply@hallpass.local","from-name":"Hall Pass","to":["a@x.test","b@x.test"],"reply-to":"t@x.test","subject":"hi","body":"hello","html":false}`)
	require.NotNil(t, input)
	assert.Equal(t, []string{"a@x.test", "b@x.test"}, input.To)
	assert.Equal(t, "Hall Pass", input.FromName)
	assert.Equal(t, "t@x.test", input.ReplyTo)
	assert.Equal(t, "hello", input.Body)

	assert.Nil(t, parseEmail("{not json"))
}
