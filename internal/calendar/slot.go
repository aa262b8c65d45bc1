package calendar

import "time"

// NextOpenDate scans the window in ascending date order and returns the
// release timestamp of the first date not present in booked (keys as
// produced by Window.DateKey). ok is false when every date is booked or
// the window is empty.
//
// O(window length); the window is a handful of weeks, not a hot path.
func NextOpenDate(w Window, booked map[string]bool) (slot time.Time, ok bool) {
	for d := w.Start; !d.After(w.End); d = d.AddDate(0, 0, 1) {
		if booked[w.DateKey(d)] {
			continue
		}
		return w.SlotAt(d), true
	}
	return time.Time{}, false
}
