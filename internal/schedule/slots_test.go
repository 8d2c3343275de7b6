package schedule

import (
	"sort"
	"testing"
	"time"
)

func TestGenerateSlotsCount(t *testing.T) {
	for _, n := range []int{1, 2, 15, 50} {
		slots := GenerateSlots(n, 15)
		if len(slots) != n {
			t.Fatalf("videosPerDay=%d: expected %d slots, got %d", n, n, len(slots))
		}
	}
	if slots := GenerateSlots(0, 15); slots != nil {
		t.Fatalf("expected no slots for videosPerDay=0, got %d", len(slots))
	}
}

func TestGenerateSlotsSpacing(t *testing.T) {
	// Base interval for 15/day is 96 minutes; +/-15 jitter keeps consecutive
	// gaps strictly inside (60, 130).
	for iter := 0; iter < 50; iter++ {
		slots := GenerateSlots(15, 15)
		for i := 1; i < len(slots); i++ {
			gap := slots[i].ScheduledAt.Sub(slots[i-1].ScheduledAt).Minutes()
			if gap <= 60 || gap >= 130 {
				t.Fatalf("iter %d: gap %v min between slot %d and %d out of range", iter, gap, i-1, i)
			}
		}
	}
}

func TestGenerateSlotsUnique(t *testing.T) {
	for iter := 0; iter < 50; iter++ {
		slots := GenerateSlots(15, 15)
		seen := make(map[int64]struct{}, len(slots))
		for _, s := range slots {
			ts := s.ScheduledAt.UnixMilli()
			if _, dup := seen[ts]; dup {
				t.Fatalf("iter %d: duplicate slot at %v", iter, s.ScheduledAt)
			}
			seen[ts] = struct{}{}
		}
	}
}

func TestGenerateSlotsSortedWithinDay(t *testing.T) {
	now := time.Now()
	slots := GenerateSlots(15, 15)

	if !sort.SliceIsSorted(slots, func(a, b int) bool {
		return slots[a].ScheduledAt.Before(slots[b].ScheduledAt)
	}) {
		t.Fatalf("slots not sorted ascending")
	}
	horizon := now.Add(24*time.Hour + 30*time.Minute)
	for _, s := range slots {
		if s.ScheduledAt.After(horizon) {
			t.Fatalf("slot %d at %v beyond the daily horizon", s.Index, s.ScheduledAt)
		}
	}
}

func TestGenerateSlotsZeroJitterCollides(t *testing.T) {
	// With zero jitter and 1 video/day the single slot lands at now+0m.
	slots := GenerateSlots(1, 0)
	if len(slots) != 1 {
		t.Fatalf("expected 1 slot, got %d", len(slots))
	}
	if slots[0].MinutesFromNow != 0 {
		t.Fatalf("expected first slot at 0 minutes, got %d", slots[0].MinutesFromNow)
	}
}
