package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types appended to the assessment audit log.
const (
	AssessmentCreated   = "assessment.created"
	AssessmentUpdated   = "assessment.updated"
	AssessmentCancelled = "assessment.cancelled"
	AssessmentCompleted = "assessment.completed"
	InviteUpdated       = "invite.updated"
	InviteQualified     = "invite.qualified"
	ResponseRecorded    = "response.recorded"
	MetricCompleted     = "metric.completed"
)

// Channels through which a write arrived.
const (
	ChannelOwner      = "owner"
	ChannelRespondent = "respondent"
)

type Writer struct {
	Now func() time.Time
}

type EventPayload map[string]any

// Append inserts an event row inside tx so it commits or rolls back with the write it records.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, assessmentID, channel, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO assessment_events(ts,type,assessment_id,channel,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
		ts, evtType, assessmentID, channel, nullable(actorID), string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
