package engine

import (
	"time"

	"github.com/railtwin/traincontrol/internal/domain/kpi"
)

// RefreshKPIs recomputes punctuality once the KPI interval has elapsed since
// the last refresh. The other cards keep their fixture values.
func RefreshKPIs(s *State, now time.Time) bool {
	if now.Sub(s.LastKPIUpdate) <= s.KPIInterval {
		return false
	}
	onTime := 0
	for _, t := range s.Trains {
		if t.IsOnTime() {
			onTime++
		}
	}
	s.KPIs.Punctuality = s.KPIs.Punctuality.Observe(kpi.Punctuality(onTime, len(s.Trains)))
	s.LastKPIUpdate = now
	return true
}
