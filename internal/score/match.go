package score

// Phase is the match state machine's position, replicated as match_state.
type Phase string

const (
	PhaseNotStarted  Phase = "NOT_STARTED"
	PhaseCountdown   Phase = "COUNTDOWN"
	PhaseAutonomous  Phase = "AUTONOMOUS"
	PhaseTransition  Phase = "TRANSITION"
	PhaseTeleop      Phase = "TELEOP"
	PhaseEndGame     Phase = "END_GAME"
	PhaseFinished    Phase = "FINISHED"
	PhaseUnderReview Phase = "UNDER_REVIEW"
)

func ParsePhase(s string) (Phase, bool) {
	switch Phase(s) {
	case PhaseNotStarted, PhaseCountdown, PhaseAutonomous, PhaseTransition,
		PhaseTeleop, PhaseEndGame, PhaseFinished, PhaseUnderReview:
		return Phase(s), true
	}
	return "", false
}

type MatchType string

const (
	TraditionalMatch MatchType = "TRADITIONAL_MATCH"
	SingleTeamDemo   MatchType = "SINGLE_TEAM_DEMO"
)

// Match is one scoring session: two alliances plus session metadata.
// It is a plain value; the arena owns the canonical copy and hands out
// copies in snapshots.
type Match struct {
	RedTeam1  string
	RedTeam2  string
	BlueTeam1 string
	BlueTeam2 string

	Red  Alliance
	Blue Alliance

	State     Phase
	Type      MatchType
	StartTime int64 // unix millis, 0 until started
}

func NewMatch() Match {
	return Match{
		Red:   NewAlliance(),
		Blue:  NewAlliance(),
		State: PhaseNotStarted,
		Type:  TraditionalMatch,
	}
}

// SetMotif mirrors the motif onto both alliances. Partial application is
// never valid, so this is the only way to change it.
func (m *Match) SetMotif(mt Motif) {
	m.Red.Motif = mt
	m.Blue.Motif = mt
}

// RandomizeMotif picks a fresh motif for both alliances.
func (m *Match) RandomizeMotif() {
	m.SetMotif(RandomMotif())
}

// RedTotal is red's score including blue's foul credit
// (15 per major, 5 per minor).
func (m Match) RedTotal() int {
	total := m.Red.Points()
	total += m.Blue.MajorFouls * 15
	total += m.Blue.MinorFouls * 5
	return clamp(total)
}

// BlueTotal is blue's score including red's foul credit.
func (m Match) BlueTotal() int {
	total := m.Blue.Points()
	total += m.Red.MajorFouls * 15
	total += m.Red.MinorFouls * 5
	return clamp(total)
}

func (m Match) SingleTeamMode() bool {
	return m.Type == SingleTeamDemo
}

func displayTeam(n string) string {
	if n == "" {
		return "----"
	}
	return n
}

// RedTeamsDisplay formats red's team numbers for overlays.
func (m Match) RedTeamsDisplay() string {
	if m.SingleTeamMode() {
		return displayTeam(m.RedTeam1)
	}
	return displayTeam(m.RedTeam1) + " + " + displayTeam(m.RedTeam2)
}

func (m Match) BlueTeamsDisplay() string {
	if m.SingleTeamMode() {
		return "N/A"
	}
	return displayTeam(m.BlueTeam1) + " + " + displayTeam(m.BlueTeam2)
}

// Reset zeroes both score records and returns the session to NOT_STARTED.
// Team numbers and match type survive a reset.
func (m *Match) Reset() {
	m.Red.Reset()
	m.Blue.Reset()
	m.State = PhaseNotStarted
	m.StartTime = 0
}
