package schedule

import (
	"math/rand"
	"sort"
	"sync/atomic"
	"time"
)

// Slot is a computed target timestamp for one video's publication.
// Slots are ephemeral: they exist only to produce queue jobs.
type Slot struct {
	Index          int
	ScheduledAt    time.Time
	MinutesFromNow int
}

// minutesPerDay spread across videosPerDay gives the base interval
// (96 minutes for the default 15/day).
const minutesPerDay = 24 * 60

var slotSeq uint64

// GenerateSlots produces videosPerDay distinct slots spread across the next
// 24 hours: evenly spaced base offsets with symmetric uniform jitter of
// +/-jitterMinutes, then whole-minute collision resolution by probing
// forward in 5-minute steps.
//
// Output is sorted by ScheduledAt ascending and pairwise distinct.
// Not deterministic across calls.
//
// Very large videosPerDay (beyond one slot per 5 minutes) would exhaust the
// probing space within a day; that is an accepted design limit.
func GenerateSlots(videosPerDay, jitterMinutes int) []Slot {
	if videosPerDay <= 0 {
		return nil
	}
	if jitterMinutes < 0 {
		jitterMinutes = 0
	}

	now := time.Now()
	seed := now.UnixNano() ^ int64(atomic.AddUint64(&slotSeq, 1))<<17
	rng := rand.New(rand.NewSource(seed))

	baseInterval := float64(minutesPerDay) / float64(videosPerDay)

	used := make(map[int]struct{}, videosPerDay)
	slots := make([]Slot, 0, videosPerDay)
	for i := 0; i < videosPerDay; i++ {
		jitter := rng.Intn(2*jitterMinutes+1) - jitterMinutes
		minutes := int(float64(i)*baseInterval) + jitter

		for {
			if _, taken := used[minutes]; !taken {
				break
			}
			minutes += 5
		}
		used[minutes] = struct{}{}

		slots = append(slots, Slot{
			Index:          i,
			ScheduledAt:    now.Add(time.Duration(minutes) * time.Minute),
			MinutesFromNow: minutes,
		})
	}

	sort.Slice(slots, func(a, b int) bool {
		return slots[a].ScheduledAt.Before(slots[b].ScheduledAt)
	})
	return slots
}
