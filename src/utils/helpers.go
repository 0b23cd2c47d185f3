package utils

import (
	"context"
	"errors"
	"hallpass/src/config"
	"hallpass/src/types"
	"log"
	"strings"
	"time"
)

var passTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	config.LOCAL_TIME_FORMAT,
}

// ParsePassTime accepts ISO-8601 instants with an offset, or zone-less local
// times which are read in loc.
func ParsePassTime(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(passTimeLayouts[0], value); err == nil {
		return t, nil
	}
	for _, layout := range passTimeLayouts[1:] {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.New("expected an ISO-8601 date time")
}

// EndOfSchoolDay returns the instant the school day containing t ends, in loc.
// A t at or past the end of its day rolls over to the following midnight.
func EndOfSchoolDay(t time.Time, loc *time.Location, dayEnd time.Duration) time.Time {
	local := t.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	h := int(dayEnd / time.Hour)
	m := int((dayEnd % time.Hour) / time.Minute)
	end := time.Date(local.Year(), local.Month(), local.Day(), h, m, 0, 0, loc)
	if !local.Before(end) {
		return midnight.AddDate(0, 0, 1)
	}
	return end
}

// Retry runs fn up to attempts times while it fails with a retryable error.
// Only use it for operations that are safe to repeat.
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil || !types.IsRetryable(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		log.Printf("Retrying after error (%d/%d): %s\n", i+1, attempts, err.Error())
		select {
		case <-ctx.Done():
			return err
		case <-time.After(delay * time.Duration(i+1)):
		}
	}
	return err
}
