// Package wire is the schema-aware field codec shared by both sync
// transports. It only knows the fixed replicated field set: side-prefixed
// score counters plus a handful of session-level fields. Anything outside
// the schema is ignored on decode, never an error, so peers running a
// slightly different build stay compatible.
package wire

import (
	"encoding/json"
	"errors"
	"math"

	"github.com/ftc-decode/scorer-backend/internal/score"
)

var ErrMalformed = errors.New("malformed payload")

type Kind int

const (
	KindInt Kind = iota
	KindBool
	KindEnum
	KindString
)

type Def struct {
	Name string
	Kind Kind
	Enum []string // allowed values for KindEnum
}

// Side-relative field definitions, replicated once per alliance under the
// red_ / blue_ prefixes.
var sideDefs = []Def{
	{Name: "auto_classified", Kind: KindInt},
	{Name: "auto_overflow", Kind: KindInt},
	{Name: "auto_pattern", Kind: KindInt},
	{Name: "teleop_classified", Kind: KindInt},
	{Name: "teleop_overflow", Kind: KindInt},
	{Name: "teleop_depot", Kind: KindInt},
	{Name: "teleop_pattern", Kind: KindInt},
	{Name: "robot1_leave", Kind: KindBool},
	{Name: "robot2_leave", Kind: KindBool},
	{Name: "robot1_base", Kind: KindEnum, Enum: []string{"NOT_IN_BASE", "PARTIALLY_IN_BASE", "FULLY_IN_BASE"}},
	{Name: "robot2_base", Kind: KindEnum, Enum: []string{"NOT_IN_BASE", "PARTIALLY_IN_BASE", "FULLY_IN_BASE"}},
	{Name: "major_fouls", Kind: KindInt},
	{Name: "minor_fouls", Kind: KindInt},
}

var sessionDefs = []Def{
	{Name: "motif", Kind: KindEnum, Enum: []string{"PPG", "PGP", "GPP"}},
	{Name: "match_state", Kind: KindEnum, Enum: []string{
		"NOT_STARTED", "COUNTDOWN", "AUTONOMOUS", "TRANSITION",
		"TELEOP", "END_GAME", "FINISHED", "UNDER_REVIEW"}},
	{Name: "red_team1", Kind: KindString},
	{Name: "red_team2", Kind: KindString},
	{Name: "blue_team1", Kind: KindString},
	{Name: "blue_team2", Kind: KindString},
}

const (
	RedPrefix  = "red_"
	BluePrefix = "blue_"
)

// schema maps every replicated flat field name to its definition.
var schema = buildSchema()

func buildSchema() map[string]Def {
	s := make(map[string]Def)
	for _, prefix := range []string{RedPrefix, BluePrefix} {
		for _, d := range sideDefs {
			full := d
			full.Name = prefix + d.Name
			s[full.Name] = full
		}
	}
	for _, d := range sessionDefs {
		s[d.Name] = d
	}
	return s
}

// SideFieldNames returns the prefixed field names for one alliance.
func SideFieldNames(prefix string) []string {
	names := make([]string, 0, len(sideDefs))
	for _, d := range sideDefs {
		names = append(names, prefix+d.Name)
	}
	return names
}

// SessionFieldNames returns the session-level field names, motif excluded.
// Motif is globally owned and handled separately by the merge policy.
func SessionFieldNames() []string {
	names := make([]string, 0, len(sessionDefs))
	for _, d := range sessionDefs {
		if d.Name == "motif" {
			continue
		}
		names = append(names, d.Name)
	}
	return names
}

func Known(name string) bool {
	_, ok := schema[name]
	return ok
}

// Fields is a partial record: flat field name to typed value
// (int, bool or string). Absent keys mean "no change".
type Fields map[string]any

// Encode serializes a partial record to its wire form. Field values are
// assumed to already satisfy the schema (they come from EncodeAlliance /
// EncodeSession or a decoded payload).
func Encode(f Fields) ([]byte, error) {
	return json.Marshal(f)
}

// Decode parses wire text back into a partial record. Unknown fields and
// fields whose value does not match the schema are dropped; only an
// unparseable payload is an error.
func Decode(data []byte) (Fields, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, ErrMalformed
	}
	return coerce(raw), nil
}

// coerce filters a decoded JSON object down to schema-valid fields.
func coerce(raw map[string]any) Fields {
	out := make(Fields, len(raw))
	for name, v := range raw {
		def, ok := schema[name]
		if !ok {
			continue
		}
		switch def.Kind {
		case KindInt:
			n, ok := v.(float64)
			if !ok || n != math.Trunc(n) {
				continue
			}
			out[name] = int(n)
		case KindBool:
			b, ok := v.(bool)
			if !ok {
				continue
			}
			out[name] = b
		case KindEnum:
			s, ok := v.(string)
			if !ok {
				continue
			}
			for _, allowed := range def.Enum {
				if s == allowed {
					out[name] = s
					break
				}
			}
		case KindString:
			s, ok := v.(string)
			if !ok {
				continue
			}
			out[name] = s
		}
	}
	return out
}

// EncodeAlliance flattens one alliance's record under the given prefix.
func EncodeAlliance(prefix string, a score.Alliance) Fields {
	return Fields{
		prefix + "auto_classified":   a.AutoClassified,
		prefix + "auto_overflow":     a.AutoOverflow,
		prefix + "auto_pattern":      a.AutoPattern,
		prefix + "teleop_classified": a.TeleopClassified,
		prefix + "teleop_overflow":   a.TeleopOverflow,
		prefix + "teleop_depot":      a.TeleopDepot,
		prefix + "teleop_pattern":    a.TeleopPattern,
		prefix + "robot1_leave":      a.Robot1Leave,
		prefix + "robot2_leave":      a.Robot2Leave,
		prefix + "robot1_base":       string(a.Robot1Base),
		prefix + "robot2_base":       string(a.Robot2Base),
		prefix + "major_fouls":       a.MajorFouls,
		prefix + "minor_fouls":       a.MinorFouls,
	}
}

// EncodeSession flattens the session-level fields, motif included.
func EncodeSession(m score.Match) Fields {
	return Fields{
		"motif":       string(m.Red.Motif),
		"match_state": string(m.State),
		"red_team1":   m.RedTeam1,
		"red_team2":   m.RedTeam2,
		"blue_team1":  m.BlueTeam1,
		"blue_team2":  m.BlueTeam2,
	}
}

// EncodeMatch flattens the full match record.
func EncodeMatch(m score.Match) Fields {
	f := EncodeSession(m)
	for name, v := range EncodeAlliance(RedPrefix, m.Red) {
		f[name] = v
	}
	for name, v := range EncodeAlliance(BluePrefix, m.Blue) {
		f[name] = v
	}
	return f
}

// Pick returns the subset of f limited to the given field names,
// plus motif which every device may carry.
func Pick(f Fields, names []string) Fields {
	out := make(Fields, len(names))
	for _, name := range names {
		if v, ok := f[name]; ok {
			out[name] = v
		}
	}
	if v, ok := f["motif"]; ok {
		out["motif"] = v
	}
	return out
}
