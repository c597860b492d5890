// internal/application/domain_test.go
package application

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{StatusPending, StatusAccepted, true},
		{StatusPending, StatusRejected, true},
		{StatusPending, StatusCancelled, true},
		{StatusAccepted, StatusRejected, true},
		{StatusAccepted, StatusCancelled, true},
		{StatusAccepted, StatusPending, false},
		{StatusRejected, StatusAccepted, false},
		{StatusRejected, StatusCancelled, false},
		{StatusCancelled, StatusPending, false},
		{StatusCancelled, StatusAccepted, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestCountsReserved(t *testing.T) {
	assert.True(t, CountsReserved(StatusPending))
	assert.True(t, CountsReserved(StatusAccepted))
	assert.False(t, CountsReserved(StatusRejected))
	assert.False(t, CountsReserved(StatusCancelled))
}

func TestInsideCutoff(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		start time.Time
		want  bool
	}{
		{"week ahead", now.Add(7 * 24 * time.Hour), true},
		{"exactly 48h ahead", now.Add(48 * time.Hour), true},
		{"one second under 48h", now.Add(48*time.Hour - time.Second), false},
		{"one hour ahead", now.Add(time.Hour), false},
		{"already started", now.Add(-time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InsideCutoff(tt.start, now))
		})
	}
}

func TestNewCheckInCode(t *testing.T) {
	for i := 0; i < 200; i++ {
		code := newCheckInCode()
		assert.Len(t, code, 6)
		for _, c := range code {
			assert.True(t, c >= '0' && c <= '9', "code %q contains non-digit", code)
		}
	}
}
