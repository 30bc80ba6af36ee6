package domain

import (
	"errors"
	"testing"
	"time"
)

func TestPlayerEntry(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	p := Player{
		ID:           "U1",
		Username:     "alice",
		Level:        5,
		XP:           500,
		MessageCount: 80,
	}

	entry := p.Entry(3, true, now)
	if entry.UserID != "U1" || entry.Username != "alice" {
		t.Errorf("identity not carried over: %+v", entry)
	}
	if entry.Rank != 3 {
		t.Errorf("rank = %d, want 3", entry.Rank)
	}
	if !entry.IsLive {
		t.Error("live flag not set")
	}
	if !entry.LastUpdated.Equal(now) {
		t.Errorf("last updated = %v, want %v", entry.LastUpdated, now)
	}
}

func TestPlayerEntryDefaultsUsername(t *testing.T) {
	p := Player{ID: "U2", XP: 10}
	entry := p.Entry(1, false, time.Now())
	if entry.Username != "Unknown" {
		t.Errorf("username = %q, want Unknown placeholder", entry.Username)
	}
}

func TestErrorClassification(t *testing.T) {
	if !IsNotFoundError(ErrEntryNotFound) {
		t.Error("ErrEntryNotFound should classify as not found")
	}
	if IsNotFoundError(ErrThrottled) {
		t.Error("ErrThrottled must not classify as not found")
	}
	if !IsFatalUpstreamError(ErrUnauthorized) {
		t.Error("ErrUnauthorized should be fatal")
	}
	if IsFatalUpstreamError(ErrThrottled) {
		t.Error("ErrThrottled is retryable, not fatal")
	}
	wrapped := errors.Join(errors.New("context"), ErrEntryNotFound)
	if !IsNotFoundError(wrapped) {
		t.Error("wrapped not-found error should still classify")
	}
}
