package score

import "math/rand"

// Motif is the randomized artifact pattern shown before the match.
// It is chosen once and always mirrored onto both alliances.
type Motif string

const (
	MotifPPG Motif = "PPG"
	MotifPGP Motif = "PGP"
	MotifGPP Motif = "GPP"
)

var motifs = []Motif{MotifPPG, MotifPGP, MotifGPP}

func ParseMotif(s string) (Motif, bool) {
	switch Motif(s) {
	case MotifPPG, MotifPGP, MotifGPP:
		return Motif(s), true
	}
	return "", false
}

// RandomMotif simulates the obelisk randomization.
func RandomMotif() Motif {
	return motifs[rand.Intn(len(motifs))]
}

// BaseStatus is a robot's end-game base return status.
type BaseStatus string

const (
	NotInBase       BaseStatus = "NOT_IN_BASE"
	PartiallyInBase BaseStatus = "PARTIALLY_IN_BASE"
	FullyInBase     BaseStatus = "FULLY_IN_BASE"
)

func ParseBaseStatus(s string) (BaseStatus, bool) {
	switch BaseStatus(s) {
	case NotInBase, PartiallyInBase, FullyInBase:
		return BaseStatus(s), true
	}
	return "", false
}

// Alliance holds one side's raw counters. All integer counters clamp to
// zero on assignment; use the setters rather than writing fields directly
// when the value can be negative.
type Alliance struct {
	Motif Motif

	Robot1Leave bool
	Robot2Leave bool

	AutoClassified int
	AutoOverflow   int
	AutoPattern    int

	TeleopClassified int
	TeleopOverflow   int
	TeleopDepot      int
	TeleopPattern    int

	Robot1Base BaseStatus
	Robot2Base BaseStatus

	MajorFouls int
	MinorFouls int
}

func NewAlliance() Alliance {
	return Alliance{
		Motif:      MotifPPG,
		Robot1Base: NotInBase,
		Robot2Base: NotInBase,
	}
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

func (a *Alliance) SetAutoClassified(v int)   { a.AutoClassified = clamp(v) }
func (a *Alliance) SetAutoOverflow(v int)     { a.AutoOverflow = clamp(v) }
func (a *Alliance) SetAutoPattern(v int)      { a.AutoPattern = clamp(v) }
func (a *Alliance) SetTeleopClassified(v int) { a.TeleopClassified = clamp(v) }
func (a *Alliance) SetTeleopOverflow(v int)   { a.TeleopOverflow = clamp(v) }
func (a *Alliance) SetTeleopDepot(v int)      { a.TeleopDepot = clamp(v) }
func (a *Alliance) SetTeleopPattern(v int)    { a.TeleopPattern = clamp(v) }
func (a *Alliance) SetMajorFouls(v int)       { a.MajorFouls = clamp(v) }
func (a *Alliance) SetMinorFouls(v int)       { a.MinorFouls = clamp(v) }

// BasePoints scores the end-game base return: 5 per partial, 10 per full,
// plus a 10 point bonus when both robots are fully in.
func (a Alliance) BasePoints() int {
	points := 0
	if a.Robot1Base == PartiallyInBase {
		points += 5
	}
	if a.Robot2Base == PartiallyInBase {
		points += 5
	}
	if a.Robot1Base == FullyInBase {
		points += 10
	}
	if a.Robot2Base == FullyInBase {
		points += 10
	}
	if a.Robot1Base == FullyInBase && a.Robot2Base == FullyInBase {
		points += 10
	}
	return points
}

// Points is the alliance's own match points, before opponent foul credit.
func (a Alliance) Points() int {
	total := 0
	if a.Robot1Leave {
		total += 3
	}
	if a.Robot2Leave {
		total += 3
	}
	total += a.AutoClassified * 3
	total += a.AutoOverflow
	total += a.AutoPattern * 2
	total += a.TeleopClassified * 3
	total += a.TeleopOverflow
	total += a.TeleopDepot
	total += a.TeleopPattern * 2
	total += a.BasePoints()
	return clamp(total)
}

// MovementPoints combines leave and base points for the movement rank point.
func (a Alliance) MovementPoints() int {
	points := 0
	if a.Robot1Leave {
		points += 3
	}
	if a.Robot2Leave {
		points += 3
	}
	return points + a.BasePoints()
}

// TotalClassified counts classified artifacts across both periods.
func (a Alliance) TotalClassified() int {
	return a.AutoClassified + a.TeleopClassified
}

// PatternPoints scores motif pattern matches for the pattern rank point.
func (a Alliance) PatternPoints() int {
	return (a.AutoPattern + a.TeleopPattern) * 2
}

func (a *Alliance) Reset() {
	*a = NewAlliance()
}
