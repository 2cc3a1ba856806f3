// Package services connects the device to its guardian backend: a websocket
// link that reports device status, raises emergency alerts, sends money
// transfers and relays messages between the wearer and their guardian.
package services

import "encoding/json"

// Event names exchanged over the guardian link.
const (
	EventJoin        = "join_devices"
	EventStatus      = "device_status"
	EventEmergency   = "emergency_alert"
	EventSendMoney   = "send_money"
	EventReply       = "reply_message"
	EventSendMessage = "send_message"
	EventNewMessage  = "new_message"
	EventLocation    = "location_update"
)

// Envelope frames every websocket message.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Status is the periodic heartbeat.
type Status struct {
	DeviceID     string `json:"deviceId"`
	Status       string `json:"status"`
	BatteryLevel *int   `json:"batteryLevel,omitempty"`
	IsOnline     bool   `json:"isOnline"`
	Mode         string `json:"mode,omitempty"`
}

// EmergencyAlert is raised by the emergency mode.
type EmergencyAlert struct {
	DeviceID  string   `json:"deviceId"`
	AlertType string   `json:"alertType"`
	Severity  string   `json:"severity"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Message   string   `json:"message"`

	// VoiceFile is a base64 encoded WAV recording.
	VoiceFile string `json:"voiceFile,omitempty"`
}

// Payment is a money transfer request.
type Payment struct {
	Reference    string  `json:"reference"`
	Amount       float64 `json:"amount"`
	PayeeName    string  `json:"payeeName"`
	PayeeAccount string  `json:"payeeAccount"`
}

// Reply carries the wearer's answer to a guardian message.
type Reply struct {
	Content string `json:"content"`
	From    string `json:"from"`
}

// Message is a text message from the guardian.
type Message struct {
	DeviceID    string `json:"deviceId,omitempty"`
	Content     string `json:"content"`
	MessageType string `json:"messageType,omitempty"`
}
