package engine

import (
	"time"

	"github.com/railtwin/traincontrol/internal/domain/train"
)

// RaiseHoldAdvisories fires each region advisory whose train is halted,
// at most once per session.
func RaiseHoldAdvisories(s *State, now time.Time) {
	for _, adv := range s.Advisories {
		if s.Raised[adv.TrainID] {
			continue
		}
		t := s.FindTrain(adv.TrainID)
		if t == nil || t.Status != train.StatusHalted {
			continue
		}
		s.Feed.AddAlert(adv.Title, adv.Message, adv.Explanation, now)
		s.Raised[adv.TrainID] = true
	}
}
