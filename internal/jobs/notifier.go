package jobs

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"
	membershipdomain "github.com/smallbiznis/plantops/internal/membership/domain"
	seatservice "github.com/smallbiznis/plantops/internal/seat/service"
	"go.uber.org/zap"
)

// Enqueuer is the part of *asynq.Client the notifier needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type queueNotifier struct {
	log   *zap.Logger
	queue Enqueuer
}

// NewNotifier enqueues invitation emails. Without a queue client it only
// logs, so invitations still work in deployments without redis.
func NewNotifier(client *asynq.Client, log *zap.Logger) seatservice.Notifier {
	log = log.Named("jobs.notifier")
	if client == nil {
		return &logNotifier{log: log}
	}
	return &queueNotifier{log: log, queue: client}
}

func (n *queueNotifier) InvitationCreated(ctx context.Context, invitation membershipdomain.Invitation, rawToken string) error {
	task, err := NewInvitationEmailTask(InvitationEmailPayload{
		InvitationID: invitation.ID.String(),
		CompanyID:    invitation.CompanyID.String(),
		Email:        invitation.Email,
		Role:         string(invitation.Role),
		RawToken:     rawToken,
		ExpiresAt:    invitation.ExpiresAt,
	})
	if err != nil {
		return err
	}
	info, err := n.queue.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return err
	}
	n.log.Debug("invitation email enqueued",
		zap.String("invitation_id", invitation.ID.String()),
		zap.String("task_id", info.ID),
	)
	return nil
}

type logNotifier struct {
	log *zap.Logger
}

func (n *logNotifier) InvitationCreated(_ context.Context, invitation membershipdomain.Invitation, _ string) error {
	n.log.Info("job queue not configured, invitation email not sent",
		zap.String("invitation_id", invitation.ID.String()),
		zap.String("company_id", invitation.CompanyID.String()),
	)
	return nil
}
