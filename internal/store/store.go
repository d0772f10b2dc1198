package store

import (
	"context"
	"time"

	"carelink-ws-server/internal/types"
)

// MedicationLog records a medication intake reported over the socket.
type MedicationLog struct {
	ID            string
	PatientID     string
	MedicationID  string
	ScheduledTime string
	Notes         string
	TakenAt       time.Time
}

// VitalReading records a single vital sign measurement.
type VitalReading struct {
	ID        string
	PatientID string
	Type      string
	Value     float64
	Unit      string
	DeviceID  string
	Critical  bool
	TakenAt   time.Time
}

// Message is a chat message between two principals.
type Message struct {
	ID          string
	SenderID    string
	RecipientID string
	Content     string
	Type        string
	ThreadID    string
	SentAt      time.Time
}

// EmergencyAlert is a patient-raised emergency. Severity is always critical.
type EmergencyAlert struct {
	ID        string
	PatientID string
	Type      string
	Message   string
	Location  string
	Severity  string
	RaisedAt  time.Time
}

// Store is the narrow persistence contract the routing core depends on.
// The core never issues raw queries outside this interface.
type Store interface {
	// FindPrincipal resolves a credential subject to a principal.
	// Returns (nil, nil) when the subject is unknown.
	FindPrincipal(ctx context.Context, subject string) (*types.Principal, error)

	InsertMedicationLog(ctx context.Context, log MedicationLog) error
	InsertVitalReading(ctx context.Context, reading VitalReading) error
	// InsertMessage stores the message and returns its server-assigned
	// id and timestamp.
	InsertMessage(ctx context.Context, msg Message) (string, time.Time, error)
	InsertEmergencyAlert(ctx context.Context, alert EmergencyAlert) error

	// FindAssignedDoctor returns the id of the doctor assigned to the
	// patient, or "" when no assignment is on file.
	FindAssignedDoctor(ctx context.Context, patientID string) (string, error)
}
