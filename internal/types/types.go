package types

import (
	"encoding/json"
	"time"
)

// Role of an authenticated principal.
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

// Account status resolved at authentication time.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Principal is the authenticated identity attached to a connection.
// It is resolved once per connection and immutable afterwards.
type Principal struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Role   Role   `json:"role"`
	Status Status `json:"status"`
}

// Connection is the live transport session the routing core operates on.
// The production implementation lives in pkg/websocket; tests substitute
// in-memory fakes.
type Connection interface {
	PrincipalID() string
	PrincipalRole() Role
	Send(message []byte) error
	Close() error
}

// Event types
type EventType string

const (
	// Inbound
	EventMedicationTaken EventType = "medication:taken"
	EventVitalsUpdate    EventType = "vitals:update"
	EventMessageSend     EventType = "message:send"
	EventEmergencyAlert  EventType = "emergency:alert"
	EventPing            EventType = "ping"

	// Outbound
	EventConnectionReady    EventType = "connection:ready"
	EventMedicationAck      EventType = "medication:ack"
	EventMedicationRecorded EventType = "medication:recorded"
	EventVitalsRecorded     EventType = "vitals:recorded"
	EventVitalsCritical     EventType = "vitals:critical"
	EventMessageReceived    EventType = "message:received"
	EventMessageSent        EventType = "message:sent"
	EventEmergencyBroadcast EventType = "emergency:broadcast"
	EventPong               EventType = "pong"
	EventError              EventType = "error"
)

// Envelope is the wire frame for inbound client events. The payload is
// decoded per event type; unknown types are rejected explicitly.
type Envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Outbound is the wire frame for server-to-client events. The timestamp is
// server-assigned at publish time.
type Outbound struct {
	Type      EventType `json:"type"`
	Timestamp int64     `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// NewOutbound stamps an outbound event with the current server time.
func NewOutbound(t EventType, payload any) Outbound {
	return Outbound{
		Type:      t,
		Timestamp: time.Now().UnixMilli(),
		Payload:   payload,
	}
}

// Inbound payloads

type MedicationTakenPayload struct {
	MedicationID  string `json:"medicationId"`
	ScheduledTime string `json:"scheduledTime,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

// VitalsUpdatePayload carries one reading. Value is a pointer so a frame
// that omits it is distinguishable from a legitimate zero reading.
type VitalsUpdatePayload struct {
	Type     string   `json:"type"`
	Value    *float64 `json:"value"`
	Unit     string   `json:"unit,omitempty"`
	DeviceID string   `json:"deviceId,omitempty"`
}

type MessageSendPayload struct {
	RecipientID string `json:"recipientId"`
	Content     string `json:"content"`
	Type        string `json:"type,omitempty"`
	ThreadID    string `json:"threadId,omitempty"`
}

type EmergencyAlertPayload struct {
	Type     string `json:"type"`
	Message  string `json:"message"`
	Location string `json:"location,omitempty"`
}

// Outbound payloads

type ConnectionReadyPayload struct {
	PrincipalID string `json:"principalId"`
	Role        Role   `json:"role"`
	ServerTime  int64  `json:"serverTime"`
}

type MedicationAckPayload struct {
	MedicationID string `json:"medicationId"`
	RecordedAt   int64  `json:"recordedAt"`
}

type MedicationRecordedPayload struct {
	PatientID    string `json:"patientId"`
	MedicationID string `json:"medicationId"`
	TakenAt      int64  `json:"takenAt"`
	Notes        string `json:"notes,omitempty"`
}

type VitalsRecordedPayload struct {
	PatientID string  `json:"patientId"`
	Type      string  `json:"type"`
	Value     float64 `json:"value"`
	Unit      string  `json:"unit,omitempty"`
}

type VitalsCriticalPayload struct {
	PatientID string  `json:"patientId"`
	Type      string  `json:"type"`
	Value     float64 `json:"value"`
	Unit      string  `json:"unit,omitempty"`
	Timestamp int64   `json:"timestamp"`
}

type MessageReceivedPayload struct {
	MessageID string `json:"messageId"`
	SenderID  string `json:"senderId"`
	Content   string `json:"content"`
	Type      string `json:"type,omitempty"`
	ThreadID  string `json:"threadId,omitempty"`
	SentAt    int64  `json:"sentAt"`
}

type MessageSentPayload struct {
	MessageID   string `json:"messageId"`
	RecipientID string `json:"recipientId"`
	SentAt      int64  `json:"sentAt"`
}

type EmergencyBroadcastPayload struct {
	PatientID string `json:"patientId"`
	Type      string `json:"type"`
	Message   string `json:"message"`
	Location  string `json:"location,omitempty"`
	Severity  string `json:"severity"`
}

type PongPayload struct {
	ServerTime int64 `json:"serverTime"`
}

// Error codes carried by EventError payloads.
const (
	ErrCodeValidationFailed  = "validation_failed"
	ErrCodePersistenceFailed = "persistence_failed"
	ErrCodeUnknownEvent      = "unknown_event"
)

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
