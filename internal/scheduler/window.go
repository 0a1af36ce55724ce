package scheduler

import (
	"time"

	"github.com/acme/voice-outreach/internal/domain"
)

// WithinCallWindow reports whether the campaign may place calls at the given
// instant, evaluated in the business's local time. Both window bounds are
// inclusive. The result gates all work for the campaign this tick, dispatch
// and evaluation alike.
func WithinCallWindow(campaign *domain.Campaign, loc *time.Location, now time.Time) bool {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)

	if !campaign.AllowsWeekday(local.Weekday()) {
		return false
	}

	minuteOfDay := local.Hour()*60 + local.Minute()
	return minuteOfDay >= campaign.WindowStartMinutes && minuteOfDay <= campaign.WindowEndMinutes
}
