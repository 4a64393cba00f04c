package events

// TickPayload is attached to each TRAIN_TICK event.
type TickPayload struct {
	TickNumber    int64 `json:"tick_number"`
	Trains        int   `json:"trains"`
	Halted        int   `json:"halted"`
	OccupiedBlock int   `json:"occupied_blocks"`
}

// TrainHaltedPayload records a train stopping at a red signal.
type TrainHaltedPayload struct {
	TrainID  string  `json:"train_id"`
	SignalID string  `json:"signal_id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

// RegionSwitchedPayload records a change of the controlled region.
type RegionSwitchedPayload struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// LoginAttemptPayload records a login check. Passwords are never recorded.
type LoginAttemptPayload struct {
	Username string `json:"username"`
	Success  bool   `json:"success"`
}
