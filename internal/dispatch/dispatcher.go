// Package dispatch routes inbound connection events: validates the payload,
// persists through the storage interface, decides which rooms receive the
// derived notification, and triggers threshold evaluation.
package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"carelink-ws-server/internal/metrics"
	"carelink-ws-server/internal/notify"
	"carelink-ws-server/internal/rooms"
	"carelink-ws-server/internal/store"
	"carelink-ws-server/internal/threshold"
	"carelink-ws-server/internal/types"
)

// Dispatcher holds one handler per event kind. Handlers for different
// connections run concurrently; a single connection's events arrive through
// its read loop and are therefore handled sequentially, in order.
type Dispatcher struct {
	store    store.Store
	router   *rooms.Router
	engine   *threshold.Engine
	notifier notify.Notifier
	metrics  *metrics.Registry
	logger   *zap.Logger
}

func NewDispatcher(
	st store.Store,
	router *rooms.Router,
	engine *threshold.Engine,
	notifier notify.Notifier,
	m *metrics.Registry,
	logger *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		store:    st,
		router:   router,
		engine:   engine,
		notifier: notifier,
		metrics:  m,
		logger:   logger,
	}
}

// HandleMessage decodes one inbound frame from the origin connection and
// runs the handler for its event kind. A failure only ever affects the
// origin: error acknowledgments are never broadcast.
func (d *Dispatcher) HandleMessage(ctx context.Context, origin types.Connection, raw []byte) {
	var env types.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		d.rejectValidation(origin, "malformed event envelope")
		return
	}

	if d.metrics != nil {
		d.metrics.EventsReceived.WithLabelValues(string(env.Type)).Inc()
	}

	switch env.Type {
	case types.EventMedicationTaken:
		d.handleMedicationTaken(ctx, origin, env.Payload)
	case types.EventVitalsUpdate:
		d.handleVitalsUpdate(ctx, origin, env.Payload)
	case types.EventMessageSend:
		d.handleMessageSend(ctx, origin, env.Payload)
	case types.EventEmergencyAlert:
		d.handleEmergencyAlert(ctx, origin, env.Payload)
	case types.EventPing:
		d.handlePing(origin)
	default:
		d.logger.Warn("unknown event kind",
			zap.String("type", string(env.Type)),
			zap.String("principal_id", origin.PrincipalID()),
		)
		d.sendTo(origin, types.EventError, types.ErrorPayload{
			Code:    types.ErrCodeUnknownEvent,
			Message: "unknown event type: " + string(env.Type),
		})
	}
}

func (d *Dispatcher) handleMedicationTaken(ctx context.Context, origin types.Connection, payload json.RawMessage) {
	var p types.MedicationTakenPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.MedicationID == "" {
		d.rejectValidation(origin, "medication:taken requires medicationId")
		return
	}

	takenAt := time.Now().UTC()
	err := d.store.InsertMedicationLog(ctx, store.MedicationLog{
		PatientID:     origin.PrincipalID(),
		MedicationID:  p.MedicationID,
		ScheduledTime: p.ScheduledTime,
		Notes:         p.Notes,
		TakenAt:       takenAt,
	})
	if err != nil {
		d.rejectPersistence(origin, err)
		return
	}

	d.sendTo(origin, types.EventMedicationAck, types.MedicationAckPayload{
		MedicationID: p.MedicationID,
		RecordedAt:   takenAt.UnixMilli(),
	})

	// Patients additionally notify their assigned doctor. Publishing to
	// the doctor's user room is attempted regardless of whether the
	// doctor is online; an empty room makes offline harmless.
	if origin.PrincipalRole() != types.RolePatient {
		return
	}
	doctorID, err := d.store.FindAssignedDoctor(ctx, origin.PrincipalID())
	if err != nil {
		d.logger.Warn("assigned doctor lookup failed",
			zap.String("patient_id", origin.PrincipalID()),
			zap.Error(err),
		)
		return
	}
	if doctorID == "" {
		return
	}
	d.publish(rooms.User(doctorID), types.EventMedicationRecorded, types.MedicationRecordedPayload{
		PatientID:    origin.PrincipalID(),
		MedicationID: p.MedicationID,
		TakenAt:      takenAt.UnixMilli(),
		Notes:        p.Notes,
	})
}

func (d *Dispatcher) handleVitalsUpdate(ctx context.Context, origin types.Connection, payload json.RawMessage) {
	var p types.VitalsUpdatePayload
	if err := json.Unmarshal(payload, &p); err != nil || p.Type == "" || p.Value == nil {
		d.rejectValidation(origin, "vitals:update requires type and value")
		return
	}
	value := *p.Value

	classification := d.engine.Classify(p.Type, value)
	takenAt := time.Now().UTC()

	err := d.store.InsertVitalReading(ctx, store.VitalReading{
		PatientID: origin.PrincipalID(),
		Type:      p.Type,
		Value:     value,
		Unit:      p.Unit,
		DeviceID:  p.DeviceID,
		Critical:  classification == threshold.Critical,
		TakenAt:   takenAt,
	})
	if err != nil {
		d.rejectPersistence(origin, err)
		return
	}

	d.publish(rooms.User(origin.PrincipalID()), types.EventVitalsRecorded, types.VitalsRecordedPayload{
		PatientID: origin.PrincipalID(),
		Type:      p.Type,
		Value:     value,
		Unit:      p.Unit,
	})

	if classification != threshold.Critical {
		return
	}

	// Escalation goes to staff rooms in addition to the per-user
	// republish above.
	d.logger.Warn("critical vital reading",
		zap.String("patient_id", origin.PrincipalID()),
		zap.String("type", p.Type),
		zap.Float64("value", value),
	)
	if d.metrics != nil {
		d.metrics.Escalations.Inc()
	}
	critical := types.VitalsCriticalPayload{
		PatientID: origin.PrincipalID(),
		Type:      p.Type,
		Value:     value,
		Unit:      p.Unit,
		Timestamp: takenAt.UnixMilli(),
	}
	d.publishToAny(rooms.StaffRooms(), types.EventVitalsCritical, critical)

	if doctorID, err := d.store.FindAssignedDoctor(ctx, origin.PrincipalID()); err == nil && doctorID != "" {
		d.notifier.Dispatch(doctorID, string(types.EventVitalsCritical), critical)
	}
}

func (d *Dispatcher) handleMessageSend(ctx context.Context, origin types.Connection, payload json.RawMessage) {
	var p types.MessageSendPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.RecipientID == "" || p.Content == "" {
		d.rejectValidation(origin, "message:send requires recipientId and content")
		return
	}

	id, sentAt, err := d.store.InsertMessage(ctx, store.Message{
		SenderID:    origin.PrincipalID(),
		RecipientID: p.RecipientID,
		Content:     p.Content,
		Type:        p.Type,
		ThreadID:    p.ThreadID,
	})
	if err != nil {
		d.rejectPersistence(origin, err)
		return
	}

	d.publish(rooms.User(p.RecipientID), types.EventMessageReceived, types.MessageReceivedPayload{
		MessageID: id,
		SenderID:  origin.PrincipalID(),
		Content:   p.Content,
		Type:      p.Type,
		ThreadID:  p.ThreadID,
		SentAt:    sentAt.UnixMilli(),
	})
	d.publish(rooms.User(origin.PrincipalID()), types.EventMessageSent, types.MessageSentPayload{
		MessageID:   id,
		RecipientID: p.RecipientID,
		SentAt:      sentAt.UnixMilli(),
	})
}

func (d *Dispatcher) handleEmergencyAlert(ctx context.Context, origin types.Connection, payload json.RawMessage) {
	var p types.EmergencyAlertPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.Type == "" {
		d.rejectValidation(origin, "emergency:alert requires type")
		return
	}

	err := d.store.InsertEmergencyAlert(ctx, store.EmergencyAlert{
		PatientID: origin.PrincipalID(),
		Type:      p.Type,
		Message:   p.Message,
		Location:  p.Location,
		Severity:  "critical",
		RaisedAt:  time.Now().UTC(),
	})
	if err != nil {
		d.rejectPersistence(origin, err)
		return
	}

	// Emergencies reach every staff room unconditionally, with no
	// threshold gating.
	d.logger.Warn("emergency alert",
		zap.String("patient_id", origin.PrincipalID()),
		zap.String("type", p.Type),
	)
	if d.metrics != nil {
		d.metrics.Escalations.Inc()
	}
	d.publishToAny(rooms.StaffRooms(), types.EventEmergencyBroadcast, types.EmergencyBroadcastPayload{
		PatientID: origin.PrincipalID(),
		Type:      p.Type,
		Message:   p.Message,
		Location:  p.Location,
		Severity:  "critical",
	})
}

func (d *Dispatcher) handlePing(origin types.Connection) {
	d.sendTo(origin, types.EventPong, types.PongPayload{
		ServerTime: time.Now().UnixMilli(),
	})
}

func (d *Dispatcher) rejectValidation(origin types.Connection, msg string) {
	if d.metrics != nil {
		d.metrics.ValidationErrors.Inc()
	}
	d.sendTo(origin, types.EventError, types.ErrorPayload{
		Code:    types.ErrCodeValidationFailed,
		Message: msg,
	})
}

func (d *Dispatcher) rejectPersistence(origin types.Connection, err error) {
	d.logger.Error("persistence failed",
		zap.String("principal_id", origin.PrincipalID()),
		zap.Error(err),
	)
	if d.metrics != nil {
		d.metrics.PersistenceErrors.Inc()
	}
	d.sendTo(origin, types.EventError, types.ErrorPayload{
		Code:    types.ErrCodePersistenceFailed,
		Message: "event could not be recorded",
	})
}

// sendTo delivers directly to the origin connection, bypassing rooms.
func (d *Dispatcher) sendTo(conn types.Connection, t types.EventType, payload any) {
	data, err := json.Marshal(types.NewOutbound(t, payload))
	if err != nil {
		d.logger.Error("outbound marshal failed", zap.String("type", string(t)), zap.Error(err))
		return
	}
	if err := conn.Send(data); err != nil {
		d.logger.Debug("ack dropped",
			zap.String("principal_id", conn.PrincipalID()),
			zap.Error(err),
		)
	}
}

func (d *Dispatcher) publish(key rooms.Key, t types.EventType, payload any) {
	data, err := json.Marshal(types.NewOutbound(t, payload))
	if err != nil {
		d.logger.Error("outbound marshal failed", zap.String("type", string(t)), zap.Error(err))
		return
	}
	d.router.Publish(key, data)
}

func (d *Dispatcher) publishToAny(keys []rooms.Key, t types.EventType, payload any) {
	data, err := json.Marshal(types.NewOutbound(t, payload))
	if err != nil {
		d.logger.Error("outbound marshal failed", zap.String("type", string(t)), zap.Error(err))
		return
	}
	d.router.PublishToAny(keys, data)
}
