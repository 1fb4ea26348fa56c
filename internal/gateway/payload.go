package gateway

import "encoding/json"

// опкоды шлюза
const (
	OpDispatch       = 0
	OpHeartbeat      = 1
	OpIdentify       = 2
	OpPresenceUpdate = 3
	OpReconnect      = 7
	OpInvalidSession = 9
	OpHello          = 10
	OpHeartbeatAck   = 11
)

// Intents — фиксированная маска: GUILDS | GUILD_MESSAGES.
const Intents = 513

// ActivityCustomStatus — тип активности "пользовательский статус".
const ActivityCustomStatus = 4

// Payload — исходящий кадр {op, d}.
type Payload struct {
	Op int `json:"op"`
	D  any `json:"d"`
}

// входящий кадр
type inbound struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d"`
	S  *int64          `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

type helloData struct {
	HeartbeatInterval int `json:"heartbeat_interval"`
}

type readyData struct {
	SessionID string `json:"session_id"`
	User      struct {
		ID string `json:"id"`
	} `json:"user"`
}

// Identity — то, чем представляемся при identify. Берётся из конфига в
// момент отправки.
type Identity struct {
	Token        string
	Status       string
	CustomStatus string
}

type Activity struct {
	Type  int    `json:"type"`
	State string `json:"state"`
	Name  string `json:"name"`
}

type Presence struct {
	Since      int64      `json:"since"`
	Activities []Activity `json:"activities"`
	Status     string     `json:"status"`
	AFK        bool       `json:"afk"`
}

type identifyProperties struct {
	OS      string `json:"$os"`
	Browser string `json:"$browser"`
	Device  string `json:"$device"`
}

type identifyData struct {
	Token      string             `json:"token"`
	Properties identifyProperties `json:"properties"`
	Presence   Presence           `json:"presence"`
	Intents    int                `json:"intents"`
}

// NewPresence — присутствие ровно с одной активностью типа 4.
func NewPresence(status, customStatus string) Presence {
	return Presence{
		Since: 0,
		Activities: []Activity{{
			Type:  ActivityCustomStatus,
			State: customStatus,
			Name:  "Custom Status",
		}},
		Status: status,
		AFK:    false,
	}
}

// IdentifyPayload собирает op 2.
func IdentifyPayload(id Identity) Payload {
	return Payload{Op: OpIdentify, D: identifyData{
		Token: id.Token,
		Properties: identifyProperties{
			OS:      "Windows",
			Browser: "Chrome",
			Device:  "",
		},
		Presence: NewPresence(id.Status, id.CustomStatus),
		Intents:  Intents,
	}}
}

// PresenceUpdatePayload собирает op 3.
func PresenceUpdatePayload(status, customStatus string) Payload {
	return Payload{Op: OpPresenceUpdate, D: NewPresence(status, customStatus)}
}

// HeartbeatPayload — {"op":1,"d":null}.
func HeartbeatPayload() Payload {
	return Payload{Op: OpHeartbeat, D: nil}
}
