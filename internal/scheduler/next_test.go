package scheduler

import (
	"errors"
	"testing"
	"time"

	"holidaybot/internal/holidays"
)

func TestNextFire(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		now  time.Time
		at   string
		want time.Time
	}{
		{"later today", time.Date(2024, 1, 7, 8, 0, 0, 0, msk), "09:00", time.Date(2024, 1, 7, 9, 0, 0, 0, msk)},
		{"exactly now rolls over", time.Date(2024, 1, 7, 9, 0, 0, 0, msk), "09:00", time.Date(2024, 1, 8, 9, 0, 0, 0, msk)},
		{"sub-second before", time.Date(2024, 1, 7, 8, 59, 59, 500, msk), "09:00", time.Date(2024, 1, 7, 9, 0, 0, 0, msk)},
		{"already passed", time.Date(2024, 1, 7, 9, 0, 1, 0, msk), "09:00", time.Date(2024, 1, 8, 9, 0, 0, 0, msk)},
		{"midnight", time.Date(2024, 12, 31, 23, 59, 0, 0, msk), "0:00", time.Date(2025, 1, 1, 0, 0, 0, 0, msk)},
		{"prefetch", time.Date(2024, 2, 28, 23, 50, 30, 0, msk), "23:50", time.Date(2024, 2, 29, 23, 50, 0, 0, msk)},
	}
	for _, tc := range cases {
		got, err := NextFire(tc.now, tc.at)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if !got.Equal(tc.want) {
			t.Fatalf("%s: got %s want %s", tc.name, got, tc.want)
		}
		if !got.After(tc.now) {
			t.Fatalf("%s: %s is not strictly after %s", tc.name, got, tc.now)
		}
	}
}

func TestNextFire_UsesZoneOfNow(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 7, 5, 30, 0, 0, time.UTC) // 08:30 MSK
	got, err := NextFire(now.In(msk), "09:00")
	if err != nil {
		t.Fatalf("NextFire: %v", err)
	}
	if got.Sub(now) != 30*time.Minute {
		t.Fatalf("got %s", got)
	}
}

func TestNextFire_InvalidTime(t *testing.T) {
	t.Parallel()
	for _, at := range []string{"", "24:00", "9", "aa:bb"} {
		if _, err := NextFire(time.Now(), at); !errors.Is(err, holidays.ErrInvalidTime) {
			t.Fatalf("NextFire(%q): want ErrInvalidTime, got %v", at, err)
		}
	}
}
