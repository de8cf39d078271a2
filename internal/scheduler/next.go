package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"holidaybot/internal/holidays"
)

var dailyParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Daily returns a schedule firing every day at hh:mm. The zone is taken
// from the time passed to Next.
func Daily(hhmm string) (cron.Schedule, error) {
	h, m, err := holidays.ParseClock(hhmm)
	if err != nil {
		return nil, err
	}
	return dailyParser.Parse(fmt.Sprintf("%d %d * * *", m, h))
}

// NextFire returns the first hh:mm instant strictly after now, in now's zone.
func NextFire(now time.Time, hhmm string) (time.Time, error) {
	sched, err := Daily(hhmm)
	if err != nil {
		return time.Time{}, err
	}
	next := sched.Next(now)
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("no upcoming run for %q", hhmm)
	}
	return next, nil
}
