package rpn

import (
	"time"

	"github.com/rakunlabs/splot/internal/splotval"
)

// RTCOptions supplies the wall-clock reference an expression's rtc.*
// variables are computed against. Callers (the scheduler, automation
// engines) pass the scheduler's current time here rather than letting the
// engine call time.Now() itself, keeping evaluation deterministic for
// tests.
type RTCOptions struct {
	Now time.Time
}

// rtcState tracks the rtc.wss / rtc.utc flags, which are themselves
// variable tokens that push nothing but affect every subsequent rtc.*
// lookup within the same evaluation, per spec §6.
type rtcState struct {
	now time.Time
	wss bool // week starts Sunday
	utc bool
}

func newRTCState(opts RTCOptions) *rtcState {
	now := opts.Now
	if now.IsZero() {
		now = time.Unix(0, 0).UTC()
	}
	return &rtcState{now: now}
}

func (vm *VM) lookupRTC(name string) (splotval.Value, error) {
	r := vm.rtc
	t := r.now
	if r.utc {
		t = t.UTC()
	} else {
		t = t.Local()
	}
	switch name {
	case "rtc.tod":
		return splotval.Real(float64(t.Hour()) + float64(t.Minute())/60 + float64(t.Second())/3600), nil
	case "rtc.dow":
		return splotval.Int(int64(isoWeekday(t, r.wss))), nil
	case "rtc.dom":
		return splotval.Int(int64(t.Day() - 1)), nil
	case "rtc.moy":
		return splotval.Int(int64(t.Month() - 1)), nil
	case "rtc.y":
		return splotval.Int(int64(t.Year())), nil
	case "rtc.awm":
		return splotval.Int(int64((t.Day() - 1) / 7)), nil
	case "rtc.wom":
		return splotval.Int(int64(weekOfMonth(t, r.wss))), nil
	case "rtc.woy":
		return splotval.Int(int64(weekOfYear(t, r.wss))), nil
	default:
		return splotval.Value{}, splotval.NewError(splotval.ErrRPNUnknownVariable, "unknown rtc variable %q", name)
	}
}

// isoWeekday returns day-of-week with Mon=0 by default, or Sun=0 when wss.
func isoWeekday(t time.Time, wss bool) int {
	wd := int(t.Weekday()) // Sun=0 .. Sat=6
	if wss {
		return wd
	}
	return (wd + 6) % 7
}

func weekOfMonth(t time.Time, wss bool) int {
	firstOfMonth := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	offset := isoWeekday(firstOfMonth, wss)
	return (t.Day() - 1 + offset) / 7
}

func weekOfYear(t time.Time, wss bool) int {
	firstOfYear := time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location())
	offset := isoWeekday(firstOfYear, wss)
	dayOfYear := t.YearDay() - 1
	return (dayOfYear + offset) / 7
}
