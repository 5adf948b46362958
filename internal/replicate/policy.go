package replicate

import (
	"strings"

	"github.com/ftc-decode/scorer-backend/internal/score"
	"github.com/ftc-decode/scorer-backend/internal/wire"
)

// Apply merges a remote partial record into the local match. A field lands
// only when the source was allowed to publish it and the local session does
// not own it; everything else is dropped without touching the rest of the
// update. Returns true when any field changed local state.
func Apply(m *score.Match, u Update, local Role) bool {
	changed := false
	for name, v := range u.Fields {
		if name == "motif" {
			continue // handled below, both sides at once
		}
		if !u.Source.MayPublish(name) {
			continue
		}
		if local.Guards(name) {
			continue
		}
		if applyField(m, name, v) {
			changed = true
		}
	}

	if v, ok := u.Fields["motif"]; ok && u.Source != RoleRelay {
		if mt, ok := score.ParseMotif(str(v)); ok && m.Red.Motif != mt {
			m.SetMotif(mt)
			changed = true
		}
	}
	return changed
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

// applyField routes one flat wire field to its typed setter. Values are
// schema-valid by the time they get here; the setters still clamp counters.
func applyField(m *score.Match, name string, v any) bool {
	switch name {
	case "match_state":
		if p, ok := score.ParsePhase(str(v)); ok && m.State != p {
			m.State = p
			return true
		}
		return false
	case "red_team1":
		return setStr(&m.RedTeam1, v)
	case "red_team2":
		return setStr(&m.RedTeam2, v)
	case "blue_team1":
		return setStr(&m.BlueTeam1, v)
	case "blue_team2":
		return setStr(&m.BlueTeam2, v)
	}

	var a *score.Alliance
	var base string
	switch {
	case strings.HasPrefix(name, wire.RedPrefix):
		a, base = &m.Red, strings.TrimPrefix(name, wire.RedPrefix)
	case strings.HasPrefix(name, wire.BluePrefix):
		a, base = &m.Blue, strings.TrimPrefix(name, wire.BluePrefix)
	default:
		return false
	}
	return applySideField(a, base, v)
}

func applySideField(a *score.Alliance, base string, v any) bool {
	switch base {
	case "auto_classified":
		return setInt(&a.AutoClassified, v)
	case "auto_overflow":
		return setInt(&a.AutoOverflow, v)
	case "auto_pattern":
		return setInt(&a.AutoPattern, v)
	case "teleop_classified":
		return setInt(&a.TeleopClassified, v)
	case "teleop_overflow":
		return setInt(&a.TeleopOverflow, v)
	case "teleop_depot":
		return setInt(&a.TeleopDepot, v)
	case "teleop_pattern":
		return setInt(&a.TeleopPattern, v)
	case "robot1_leave":
		return setBool(&a.Robot1Leave, v)
	case "robot2_leave":
		return setBool(&a.Robot2Leave, v)
	case "major_fouls":
		return setInt(&a.MajorFouls, v)
	case "minor_fouls":
		return setInt(&a.MinorFouls, v)
	case "robot1_base":
		if s, ok := score.ParseBaseStatus(str(v)); ok && a.Robot1Base != s {
			a.Robot1Base = s
			return true
		}
	case "robot2_base":
		if s, ok := score.ParseBaseStatus(str(v)); ok && a.Robot2Base != s {
			a.Robot2Base = s
			return true
		}
	}
	return false
}

func setInt(dst *int, v any) bool {
	n, ok := v.(int)
	if !ok {
		return false
	}
	if n < 0 {
		n = 0
	}
	if *dst == n {
		return false
	}
	*dst = n
	return true
}

func setBool(dst *bool, v any) bool {
	b, ok := v.(bool)
	if !ok || *dst == b {
		return false
	}
	*dst = b
	return true
}

func setStr(dst *string, v any) bool {
	s, ok := v.(string)
	if !ok || *dst == s {
		return false
	}
	*dst = s
	return true
}
