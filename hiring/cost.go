package hiring

import (
	"fmt"
	"time"

	"github.com/pentedigital/extrashifty/client"
)

const clockLayout = "15:04"

// ShiftCost returns the total cost of a shift in cents: hourly rate times
// the elapsed span between its start and end times.
func ShiftCost(shift client.Shift) (int64, error) {
	minutes, err := spanMinutes(shift.StartTime, shift.EndTime)
	if err != nil {
		return 0, fmt.Errorf("shift %s: %w", shift.ID, err)
	}
	return shift.HourlyRate * minutes / 60, nil
}

// spanMinutes computes the elapsed minutes between two wall-clock times. An
// end time at or before the start time means the span crosses midnight, so
// the duration wraps modulo 24 hours. Zero-length spans are rejected.
func spanMinutes(start, end string) (int64, error) {
	st, err := time.Parse(clockLayout, start)
	if err != nil {
		return 0, fmt.Errorf("bad start time %q: %w", start, err)
	}
	et, err := time.Parse(clockLayout, end)
	if err != nil {
		return 0, fmt.Errorf("bad end time %q: %w", end, err)
	}

	span := et.Sub(st)
	if span <= 0 {
		span += 24 * time.Hour
	}
	if span == 24*time.Hour {
		return 0, fmt.Errorf("zero-length span %s-%s", start, end)
	}
	return int64(span / time.Minute), nil
}
