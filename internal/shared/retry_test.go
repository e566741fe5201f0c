package shared

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

var fast = RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond}

func TestIsSQLiteConflictError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{fmt.Errorf("insert lobby: %w", errors.New("database is locked")), true},
		{errors.New("UNIQUE constraint failed"), false},
	}
	for _, tt := range tests {
		if got := IsSQLiteConflictError(tt.err); got != tt.want {
			t.Errorf("IsSQLiteConflictError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestRetryOnBusyRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := RetryOnBusy(context.Background(), "test", fast, func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Errorf("Expected success on third attempt, got calls=%d err=%v", calls, err)
	}
}

func TestRetryOnBusyGivesUp(t *testing.T) {
	calls := 0
	err := RetryOnBusy(context.Background(), "test", fast, func() error {
		calls++
		return errors.New("SQLITE_BUSY")
	})
	if err == nil || calls != 3 {
		t.Errorf("Expected 3 attempts and an error, got calls=%d err=%v", calls, err)
	}
}

func TestRetryOnBusyStopsOnOtherErrors(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := RetryOnBusy(context.Background(), "test", fast, func() error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) || calls != 1 {
		t.Errorf("Expected one attempt returning boom, got calls=%d err=%v", calls, err)
	}
}

func TestRetryOnBusyHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := RetryOnBusy(ctx, "test", RetryPolicy{Attempts: 5, BaseDelay: time.Hour}, func() error {
		return errors.New("database is locked")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
