package world

// admit truncates an ordered candidate sequence to a per-frame cap,
// preserving order. Deferred candidates are not queued anywhere: the
// planner re-derives the full set next frame from current state, which is
// bounded by the active+hysteresis ring area and so cheap to recompute.
func admit[T any](candidates []T, cap int) (admitted, deferred []T) {
	if cap < 0 {
		cap = 0
	}
	if len(candidates) <= cap {
		return candidates, nil
	}
	return candidates[:cap], candidates[cap:]
}
