package queue

import "time"

// ArrivalWindow is the confidence band promised to a patient around their
// estimated call time.
type ArrivalWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func breaksBeforePosition(cfg SessionConfig, positionIndex int) int {
	if cfg.BreakEveryN <= 0 {
		return 0
	}
	return positionIndex / cfg.BreakEveryN
}

// EstimateCallTime computes the estimated call time for the token at the
// given zero-based position. Emergency debt up to the configured reserve is
// absorbed silently; only the overflow delays the estimate, and it delays
// every waiting token by the same amount. Pure for a given (cfg, position,
// now) triple.
func EstimateCallTime(cfg SessionConfig, positionIndex int, now time.Time) time.Time {
	perPatient := cfg.SlotMinutes + cfg.MicroBufferMinutes
	breaks := breaksBeforePosition(cfg, positionIndex)

	minutes := positionIndex*perPatient + breaks*cfg.BreakMinutes

	debt := cfg.EmergencyDebtMinutes
	if debt < 0 {
		debt = 0
	}
	absorbed := cfg.EmergencyReserveMinutes
	if absorbed > debt {
		absorbed = debt
	}
	minutes += debt - absorbed

	return now.Add(time.Duration(minutes) * time.Minute)
}

// ComputeArrivalWindow returns the symmetric band around the estimated call
// time: 20 minutes wide normally, 30 when emergency debt is outstanding.
// The window never ends before now+5m; when it would, the band is pushed to
// [now+5m, now+5m+width] instead of promising an already-past call time.
func ComputeArrivalWindow(cfg SessionConfig, positionIndex int, now time.Time) ArrivalWindow {
	callTime := EstimateCallTime(cfg, positionIndex, now)

	width := 20
	if cfg.EmergencyDebtMinutes > 0 {
		width = 30
	}

	half := time.Duration(width/2) * time.Minute
	start := callTime.Add(-half)
	end := callTime.Add(half)

	if floor := now.Add(5 * time.Minute); end.Before(floor) {
		start = floor
		end = start.Add(time.Duration(width) * time.Minute)
	}

	return ArrivalWindow{Start: start, End: end}
}
