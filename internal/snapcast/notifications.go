package snapcast

import "encoding/json"

// ServerNotification carries a raw Snapcast server-initiated event
// (Client.OnConnect, Client.OnDisconnect, Client.OnVolumeChanged,
// Group.OnStreamChanged, ...) for the mediator wiring layer to decode
// into a typed, Source=Internal command.
type ServerNotification struct {
	Method string
	Params json.RawMessage
}

func (ServerNotification) NotificationName() string { return "SnapcastServerNotification" }

// ClientHost mirrors the subset of Snapcast's "host" object a
// Client.OnConnect/OnDisconnect notification carries, enough to match
// the event to a configured client by MAC address.
type ClientHost struct {
	MAC  string `json:"mac"`
	Name string `json:"name"`
}

// ClientVolume mirrors Snapcast's nested volume object, shared by the
// client config embedded in Client.OnConnect/OnDisconnect and the
// top-level volume field of Client.OnVolumeChanged.
type ClientVolume struct {
	Percent int  `json:"percent"`
	Muted   bool `json:"muted"`
}

// ClientInfo mirrors the subset of Snapcast's client object relevant
// to connection tracking.
type ClientInfo struct {
	ID     string     `json:"id"`
	Host   ClientHost `json:"host"`
	Config struct {
		Volume ClientVolume `json:"volume"`
	} `json:"config"`
}

// ClientConnectionParams is the payload of Client.OnConnect and
// Client.OnDisconnect.
type ClientConnectionParams struct {
	ID     string     `json:"id"`
	Client ClientInfo `json:"client"`
}

// ClientVolumeParams is the payload of Client.OnVolumeChanged.
type ClientVolumeParams struct {
	ID     string       `json:"id"`
	Volume ClientVolume `json:"volume"`
}

// GroupStreamParams is the payload of Group.OnStreamChanged.
type GroupStreamParams struct {
	ID       string `json:"id"`
	StreamID string `json:"stream_id"`
}

// DecodeClientConnection unmarshals the params of a Client.OnConnect
// or Client.OnDisconnect notification.
func (n ServerNotification) DecodeClientConnection() (ClientConnectionParams, error) {
	var p ClientConnectionParams
	err := json.Unmarshal(n.Params, &p)
	return p, err
}

// DecodeClientVolume unmarshals the params of a Client.OnVolumeChanged
// notification.
func (n ServerNotification) DecodeClientVolume() (ClientVolumeParams, error) {
	var p ClientVolumeParams
	err := json.Unmarshal(n.Params, &p)
	return p, err
}

// DecodeGroupStream unmarshals the params of a Group.OnStreamChanged
// notification.
func (n ServerNotification) DecodeGroupStream() (GroupStreamParams, error) {
	var p GroupStreamParams
	err := json.Unmarshal(n.Params, &p)
	return p, err
}
