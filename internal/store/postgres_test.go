package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"carelink-ws-server/internal/types"
)

func setupMockStore(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresStore) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	return db, mock, NewPostgresStoreWithDB(db, zap.NewNop())
}

func TestFindPrincipal_Success(t *testing.T) {
	db, mock, st := setupMockStore(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "name", "role", "status"}).
		AddRow("u-1", "Ada", "doctor", "active")

	mock.ExpectQuery(`SELECT`).
		WithArgs("u-1").
		WillReturnRows(rows)

	p, err := st.FindPrincipal(context.Background(), "u-1")

	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "u-1", p.ID)
	assert.Equal(t, types.RoleDoctor, p.Role)
	assert.Equal(t, types.StatusActive, p.Status)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindPrincipal_UnknownSubject(t *testing.T) {
	db, mock, st := setupMockStore(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT`).
		WithArgs("nobody").
		WillReturnError(sql.ErrNoRows)

	p, err := st.FindPrincipal(context.Background(), "nobody")

	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestInsertMedicationLog(t *testing.T) {
	db, mock, st := setupMockStore(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO medication_logs`).
		WithArgs(sqlmock.AnyArg(), "p-1", "med-9", "08:00", "with food", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := st.InsertMedicationLog(context.Background(), MedicationLog{
		PatientID:     "p-1",
		MedicationID:  "med-9",
		ScheduledTime: "08:00",
		Notes:         "with food",
		TakenAt:       time.Now(),
	})

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertVitalReading_StorageError(t *testing.T) {
	db, mock, st := setupMockStore(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO vital_readings`).
		WillReturnError(sql.ErrConnDone)

	err := st.InsertVitalReading(context.Background(), VitalReading{
		PatientID: "p-1",
		Type:      "heart_rate",
		Value:     130,
		Critical:  true,
		TakenAt:   time.Now(),
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, sql.ErrConnDone)
}

func TestInsertMessage_AssignsIDAndTimestamp(t *testing.T) {
	db, mock, st := setupMockStore(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO messages`).
		WithArgs(sqlmock.AnyArg(), "p-1", "d-1", "hello", "text", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, sentAt, err := st.InsertMessage(context.Background(), Message{
		SenderID:    "p-1",
		RecipientID: "d-1",
		Content:     "hello",
		Type:        "text",
	})

	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.False(t, sentAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertEmergencyAlert_DefaultsSeverityCritical(t *testing.T) {
	db, mock, st := setupMockStore(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO emergency_alerts`).
		WithArgs(sqlmock.AnyArg(), "p-1", "fall", "down in hallway", "", "critical", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := st.InsertEmergencyAlert(context.Background(), EmergencyAlert{
		PatientID: "p-1",
		Type:      "fall",
		Message:   "down in hallway",
		RaisedAt:  time.Now(),
	})

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindAssignedDoctor(t *testing.T) {
	db, mock, st := setupMockStore(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"doctor_id"}).AddRow("d-1")
	mock.ExpectQuery(`SELECT`).
		WithArgs("p-1").
		WillReturnRows(rows)

	doctorID, err := st.FindAssignedDoctor(context.Background(), "p-1")

	require.NoError(t, err)
	assert.Equal(t, "d-1", doctorID)
}

func TestFindAssignedDoctor_NoAssignment(t *testing.T) {
	db, mock, st := setupMockStore(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT`).
		WithArgs("p-1").
		WillReturnError(sql.ErrNoRows)

	doctorID, err := st.FindAssignedDoctor(context.Background(), "p-1")

	require.NoError(t, err)
	assert.Empty(t, doctorID)
}
