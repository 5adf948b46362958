package wire

import (
	"encoding/json"

	"github.com/ftc-decode/scorer-backend/internal/score"
)

// Direct transport message types. Each message is one JSON object per
// websocket text frame.
const (
	MsgAssign      = "ASSIGN"
	MsgScoreUpdate = "SCORE_UPDATE"
)

// Message is a parsed inbound direct-transport message.
type Message struct {
	Type     string
	Alliance string // "RED" or "BLUE", set on ASSIGN and client updates
	Fields   Fields // schema-valid fields carried by a SCORE_UPDATE
}

// ParseMessage decodes one line from the direct transport. The envelope
// keys (type, alliance) are pulled out; everything else goes through the
// field codec, so junk fields are dropped rather than fatal.
func ParseMessage(data []byte) (Message, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Message{}, ErrMalformed
	}
	msg := Message{}
	if t, ok := raw["type"].(string); ok {
		msg.Type = t
	}
	if a, ok := raw["alliance"].(string); ok {
		msg.Alliance = a
	}
	msg.Fields = coerce(raw)
	return msg, nil
}

// AssignMessage builds the client's one-time ownership request.
func AssignMessage(alliance string) []byte {
	data, _ := json.Marshal(map[string]string{
		"type":     MsgAssign,
		"alliance": alliance,
	})
	return data
}

// UpdateMessage builds a client score update carrying only the given fields.
func UpdateMessage(alliance string, f Fields) []byte {
	payload := make(map[string]any, len(f)+2)
	for name, v := range f {
		payload[name] = v
	}
	payload["type"] = MsgScoreUpdate
	payload["alliance"] = alliance
	data, _ := json.Marshal(payload)
	return data
}

// snapshotSide is the nested per-alliance object in the relay's outbound
// snapshot, unprefixed since the side is carried by the enclosing key.
type snapshotSide struct {
	AutoClassified   int    `json:"auto_classified"`
	AutoOverflow     int    `json:"auto_overflow"`
	AutoPattern      int    `json:"auto_pattern"`
	TeleopClassified int    `json:"teleop_classified"`
	TeleopOverflow   int    `json:"teleop_overflow"`
	TeleopDepot      int    `json:"teleop_depot"`
	TeleopPattern    int    `json:"teleop_pattern"`
	Robot1Leave      bool   `json:"robot1_leave"`
	Robot2Leave      bool   `json:"robot2_leave"`
	Robot1Base       string `json:"robot1_base"`
	Robot2Base       string `json:"robot2_base"`
	MajorFouls       int    `json:"major_fouls"`
	MinorFouls       int    `json:"minor_fouls"`
}

type snapshot struct {
	Type       string       `json:"type"`
	RedScore   int          `json:"redScore"`
	BlueScore  int          `json:"blueScore"`
	Motif      string       `json:"motif"`
	MatchState string       `json:"match_state"`
	RedTeam1   string       `json:"red_team1"`
	RedTeam2   string       `json:"red_team2"`
	BlueTeam1  string       `json:"blue_team1"`
	BlueTeam2  string       `json:"blue_team2"`
	Red        snapshotSide `json:"red"`
	Blue       snapshotSide `json:"blue"`
}

func encodeSide(a score.Alliance) snapshotSide {
	return snapshotSide{
		AutoClassified:   a.AutoClassified,
		AutoOverflow:     a.AutoOverflow,
		AutoPattern:      a.AutoPattern,
		TeleopClassified: a.TeleopClassified,
		TeleopOverflow:   a.TeleopOverflow,
		TeleopDepot:      a.TeleopDepot,
		TeleopPattern:    a.TeleopPattern,
		Robot1Leave:      a.Robot1Leave,
		Robot2Leave:      a.Robot2Leave,
		Robot1Base:       string(a.Robot1Base),
		Robot2Base:       string(a.Robot2Base),
		MajorFouls:       a.MajorFouls,
		MinorFouls:       a.MinorFouls,
	}
}

// EncodeSnapshot builds the relay's outbound full-state message, including
// the computed totals the overlay shows.
func EncodeSnapshot(m score.Match) []byte {
	data, _ := json.Marshal(snapshot{
		Type:       MsgScoreUpdate,
		RedScore:   m.RedTotal(),
		BlueScore:  m.BlueTotal(),
		Motif:      string(m.Red.Motif),
		MatchState: string(m.State),
		RedTeam1:   m.RedTeam1,
		RedTeam2:   m.RedTeam2,
		BlueTeam1:  m.BlueTeam1,
		BlueTeam2:  m.BlueTeam2,
		Red:        encodeSide(m.Red),
		Blue:       encodeSide(m.Blue),
	})
	return data
}

// DecodeSnapshot flattens a relay snapshot into prefixed fields. The nested
// side objects are re-prefixed and run through the codec like any other
// partial record.
func DecodeSnapshot(data []byte) (Fields, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, ErrMalformed
	}
	flat := make(map[string]any, len(raw)+2*len(sideDefs))
	for name, v := range raw {
		switch name {
		case "red", "blue":
			nested, ok := v.(map[string]any)
			if !ok {
				continue
			}
			for inner, iv := range nested {
				flat[name+"_"+inner] = iv
			}
		default:
			flat[name] = v
		}
	}
	return coerce(flat), nil
}
