package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"carelink-ws-server/internal/config"
	"carelink-ws-server/internal/types"
)

// PostgresStore implements Store on top of PostgreSQL.
type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresStore opens a connection pool and verifies connectivity.
func NewPostgresStore(cfg config.DatabaseConfig, logger *zap.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{db: db, logger: logger}, nil
}

// NewPostgresStoreWithDB wraps an existing handle. Used by tests.
func NewPostgresStoreWithDB(db *sql.DB, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger}
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) FindPrincipal(ctx context.Context, subject string) (*types.Principal, error) {
	query := `
		SELECT id, name, role, status
		FROM users
		WHERE id = $1`

	var p types.Principal
	err := s.db.QueryRowContext(ctx, query, subject).Scan(&p.ID, &p.Name, &p.Role, &p.Status)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		s.logger.Error("find principal failed", zap.String("subject", subject), zap.Error(err))
		return nil, fmt.Errorf("find principal: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) InsertMedicationLog(ctx context.Context, log MedicationLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	query := `
		INSERT INTO medication_logs (id, patient_id, medication_id, scheduled_time, notes, taken_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.db.ExecContext(ctx, query,
		log.ID, log.PatientID, log.MedicationID, log.ScheduledTime, log.Notes, log.TakenAt)
	if err != nil {
		s.logger.Error("insert medication log failed",
			zap.String("patient_id", log.PatientID),
			zap.String("medication_id", log.MedicationID),
			zap.Error(err),
		)
		return fmt.Errorf("insert medication log: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertVitalReading(ctx context.Context, reading VitalReading) error {
	if reading.ID == "" {
		reading.ID = uuid.NewString()
	}
	query := `
		INSERT INTO vital_readings (id, patient_id, type, value, unit, device_id, critical, taken_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.db.ExecContext(ctx, query,
		reading.ID, reading.PatientID, reading.Type, reading.Value,
		reading.Unit, reading.DeviceID, reading.Critical, reading.TakenAt)
	if err != nil {
		s.logger.Error("insert vital reading failed",
			zap.String("patient_id", reading.PatientID),
			zap.String("type", reading.Type),
			zap.Error(err),
		)
		return fmt.Errorf("insert vital reading: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertMessage(ctx context.Context, msg Message) (string, time.Time, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}
	query := `
		INSERT INTO messages (id, sender_id, recipient_id, content, type, thread_id, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.db.ExecContext(ctx, query,
		msg.ID, msg.SenderID, msg.RecipientID, msg.Content, msg.Type, msg.ThreadID, msg.SentAt)
	if err != nil {
		s.logger.Error("insert message failed",
			zap.String("sender_id", msg.SenderID),
			zap.String("recipient_id", msg.RecipientID),
			zap.Error(err),
		)
		return "", time.Time{}, fmt.Errorf("insert message: %w", err)
	}
	return msg.ID, msg.SentAt, nil
}

func (s *PostgresStore) InsertEmergencyAlert(ctx context.Context, alert EmergencyAlert) error {
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	if alert.Severity == "" {
		alert.Severity = "critical"
	}
	query := `
		INSERT INTO emergency_alerts (id, patient_id, type, message, location, severity, raised_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.db.ExecContext(ctx, query,
		alert.ID, alert.PatientID, alert.Type, alert.Message, alert.Location, alert.Severity, alert.RaisedAt)
	if err != nil {
		s.logger.Error("insert emergency alert failed",
			zap.String("patient_id", alert.PatientID),
			zap.Error(err),
		)
		return fmt.Errorf("insert emergency alert: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindAssignedDoctor(ctx context.Context, patientID string) (string, error) {
	query := `
		SELECT doctor_id
		FROM care_assignments
		WHERE patient_id = $1`

	var doctorID string
	err := s.db.QueryRowContext(ctx, query, patientID).Scan(&doctorID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		s.logger.Error("find assigned doctor failed", zap.String("patient_id", patientID), zap.Error(err))
		return "", fmt.Errorf("find assigned doctor: %w", err)
	}
	return doctorID, nil
}
