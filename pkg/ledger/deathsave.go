package ledger

const (
	// DeathSaveTarget is the target number of a death save roll.
	DeathSaveTarget = 20
	// DeathSaveLimit is the success or mark count that ends the tracker.
	DeathSaveLimit = 3
	// HealingPerMark is how many healed points remove one death mark.
	HealingPerMark = 3
)

// DeathSaveStatus is the tracker state.
type DeathSaveStatus string

const (
	DeathSaveInactive   DeathSaveStatus = "inactive"
	DeathSaveActive     DeathSaveStatus = "active"
	DeathSaveStabilized DeathSaveStatus = "stabilized"
	DeathSaveDead       DeathSaveStatus = "dead"
)

// DeathSave tracks an incapacitated actor's saves.
type DeathSave struct {
	Successes  int  `json:"successes"`
	DeathMarks int  `json:"death_marks"`
	Stabilized bool `json:"stabilized"`
	Dead       bool `json:"dead"`
}

// Status derives the state; a nil tracker is inactive.
func (d *DeathSave) Status() DeathSaveStatus {
	switch {
	case d == nil:
		return DeathSaveInactive
	case d.Dead:
		return DeathSaveDead
	case d.Stabilized:
		return DeathSaveStabilized
	default:
		return DeathSaveActive
	}
}

// AddSuccess records a successful save; the third stabilizes.
func (d DeathSave) AddSuccess() DeathSave {
	if d.Stabilized || d.Dead {
		return d
	}
	d.Successes = min(DeathSaveLimit, d.Successes+1)
	d.Stabilized = d.Successes == DeathSaveLimit
	return d
}

// AddMarks records n death marks; the third kills.
func (d DeathSave) AddMarks(n int) DeathSave {
	if d.Stabilized || d.Dead || n <= 0 {
		return d
	}
	d.DeathMarks = min(DeathSaveLimit, d.DeathMarks+n)
	d.Dead = d.DeathMarks == DeathSaveLimit
	return d
}

// RemoveMarks clears one mark per HealingPerMark points healed.
// Remainders do not carry over between calls.
func (d DeathSave) RemoveMarks(healed int) (DeathSave, int) {
	if d.Dead || healed <= 0 {
		return d, 0
	}
	removed := min(d.DeathMarks, healed/HealingPerMark)
	d.DeathMarks -= removed
	return d, removed
}
