package cache

import (
	"testing"
	"time"
)

func TestEntry_Size(t *testing.T) {
	var nilEntry *Entry
	if got := nilEntry.Size(); got != 0 {
		t.Errorf("nil Size() = %d, want 0", got)
	}

	entry := &Entry{Data: []byte("12345")}
	if got := entry.Size(); got != 5 {
		t.Errorf("Size() = %d, want 5", got)
	}
}

func TestEntry_Age(t *testing.T) {
	tests := []struct {
		name      string
		createdAt time.Time
		wantMin   time.Duration
		wantMax   time.Duration
	}{
		{
			name:      "one hour old",
			createdAt: time.Now().Add(-1 * time.Hour),
			wantMin:   59 * time.Minute,
			wantMax:   61 * time.Minute,
		},
		{
			name:      "zero created at",
			createdAt: time.Time{},
			wantMin:   0,
			wantMax:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := &Entry{CreatedAt: tt.createdAt}
			got := entry.Age()
			if got < tt.wantMin || got > tt.wantMax {
				t.Errorf("Age() = %v, want between %v and %v", got, tt.wantMin, tt.wantMax)
			}
		})
	}
}
