package period

import (
	"sort"
	"time"

	"github.com/attendly/attendly-backend-go/internal/domain/attendance"
	"github.com/attendly/attendly-backend-go/internal/domain/shift"
)

// Options tune the resolver. Zero values fall back to the defaults the
// rest of the engine assumes.
type Options struct {
	// Grace is how far past the window start a check-in may land before
	// it counts as late. Exactly start+grace is NOT late.
	Grace time.Duration
	// EarlyCheckInSlack is how long before the regular window start a
	// submission still resolves to the regular period.
	EarlyCheckInSlack time.Duration
	// LateCheckOutSlack is how long after the regular window end a
	// submission still resolves to the regular period, so a delayed
	// checkout finds its row.
	LateCheckOutSlack time.Duration
}

const (
	defaultGrace             = 5 * time.Minute
	defaultEarlyCheckInSlack = 1 * time.Hour
	defaultLateCheckOutSlack = 4 * time.Hour
)

// Resolver classifies a moment in time into the attendance period it
// belongs to. It is pure: all inputs arrive as values.
type Resolver struct {
	opts Options
}

func NewResolver(opts Options) *Resolver {
	if opts.Grace == 0 {
		opts.Grace = defaultGrace
	}
	if opts.EarlyCheckInSlack == 0 {
		opts.EarlyCheckInSlack = defaultEarlyCheckInSlack
	}
	if opts.LateCheckOutSlack == 0 {
		opts.LateCheckOutSlack = defaultLateCheckOutSlack
	}
	return &Resolver{opts: opts}
}

// Input carries everything the resolver needs about one employee's day.
// RegularState is the state of the day's regular attendance row, or ""
// when no row exists yet.
type Input struct {
	Shift        shift.Shift
	Holiday      *shift.Holiday
	Windows      []shift.OvertimeWindow
	RegularState attendance.State
}

// Resolution is the period a moment classifies into.
type Resolution struct {
	Type        attendance.PeriodType
	Seq         int
	WindowStart time.Time
	WindowEnd   time.Time
	IsHoliday   bool
	IsDayOff    bool
	IsLate      bool
	// Window is set for overtime resolutions.
	Window *shift.OvertimeWindow
}

// Resolve classifies now. It returns attendance.ErrPeriodNotFound when
// no regular window and no approved overtime window applies.
//
// Precedence when both a regular shift and a same-day overtime window
// could claim the moment: OVERTIME wins only when the regular period is
// already COMPLETE or the window is explicitly outside shift hours;
// otherwise REGULAR wins, so one physical presence is never classified
// twice.
func (r *Resolver) Resolve(in Input, now time.Time) (Resolution, error) {
	dayOff := in.Holiday != nil || !in.Shift.Workdays.WorksOn(now.Weekday())

	windows := make([]shift.OvertimeWindow, len(in.Windows))
	copy(windows, in.Windows)
	sort.Slice(windows, func(i, j int) bool {
		return windows[i].StartAt.Before(windows[j].StartAt)
	})

	overtime, seq := overlapping(windows, now)

	if dayOff {
		if overtime == nil {
			return Resolution{}, attendance.ErrPeriodNotFound
		}
		return r.overtimeResolution(overtime, seq, now, in.Holiday != nil, true), nil
	}

	windowStart, windowEnd := in.Shift.WindowOn(now)
	regularComplete := in.RegularState == attendance.StateComplete

	if overtime != nil && (regularComplete || !overtime.InsideShiftHours) {
		return r.overtimeResolution(overtime, seq, now, false, false), nil
	}

	if now.Before(windowStart.Add(-r.opts.EarlyCheckInSlack)) ||
		now.After(windowEnd.Add(r.opts.LateCheckOutSlack)) {
		// Too far from the regular window; an overtime window may still
		// claim the moment even when it overlaps shift hours.
		if overtime != nil {
			return r.overtimeResolution(overtime, seq, now, false, false), nil
		}
		return Resolution{}, attendance.ErrPeriodNotFound
	}

	return Resolution{
		Type:        attendance.PeriodRegular,
		Seq:         0,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		IsLate:      r.isLate(windowStart, now),
	}, nil
}

func (r *Resolver) overtimeResolution(w *shift.OvertimeWindow, seq int, now time.Time, holiday, dayOff bool) Resolution {
	return Resolution{
		Type:        attendance.PeriodOvertime,
		Seq:         seq,
		WindowStart: w.StartAt,
		WindowEnd:   w.EndAt,
		IsHoliday:   holiday,
		IsDayOff:    dayOff,
		IsLate:      r.isLate(w.StartAt, now),
		Window:      w,
	}
}

// isLate applies the closed lower bound: strictly after start+grace.
func (r *Resolver) isLate(windowStart, now time.Time) bool {
	return now.After(windowStart.Add(r.opts.Grace))
}

// overlapping returns the first window containing now and its 1-based
// chronological sequence, or nil.
func overlapping(sorted []shift.OvertimeWindow, now time.Time) (*shift.OvertimeWindow, int) {
	for i := range sorted {
		if sorted[i].Overlaps(now) {
			return &sorted[i], i + 1
		}
	}
	return nil, 0
}
