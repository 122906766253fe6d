// Package jobs runs invitation delivery and expiry on asynq.
package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TypeInvitationSendEmail   = "invitation:send_email"
	TypeInvitationExpireSweep = "invitation:expire_sweep"

	queueDefault = "default"
	queueLow     = "low"
)

// InvitationEmailPayload carries the raw token because only its hash is
// stored; the task is the one place the acceptance link can be built.
type InvitationEmailPayload struct {
	InvitationID string    `json:"invitation_id"`
	CompanyID    string    `json:"company_id"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	RawToken     string    `json:"raw_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func NewInvitationEmailTask(payload InvitationEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeInvitationSendEmail, data,
		asynq.Queue(queueDefault),
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Second),
		asynq.TaskID("invitation-email:"+payload.InvitationID),
	), nil
}

func NewExpireSweepTask() *asynq.Task {
	return asynq.NewTask(TypeInvitationExpireSweep, nil,
		asynq.Queue(queueLow),
		asynq.MaxRetry(1),
	)
}
