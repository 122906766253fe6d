package jobs

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"
	"github.com/smallbiznis/plantops/internal/config"
	"github.com/smallbiznis/plantops/internal/observability/errorreport"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrQueueNotConfigured = errors.New("job queue requires redis")

func redisOpt(cfg config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
}

// NewClient returns nil when redis is not configured.
func NewClient(lc fx.Lifecycle, cfg config.Config) *asynq.Client {
	if !cfg.Redis.Enabled() {
		return nil
	}
	client := asynq.NewClient(redisOpt(cfg))
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client
}

func NewServer(cfg config.Config, log *zap.Logger, reporter *errorreport.Reporter) (*asynq.Server, error) {
	if !cfg.Redis.Enabled() {
		return nil, ErrQueueNotConfigured
	}
	log = log.Named("jobs.worker")
	return asynq.NewServer(redisOpt(cfg), asynq.Config{
		Concurrency: 10,
		Queues: map[string]int{
			"critical":   6,
			queueDefault: 3,
			queueLow:     1,
		},
		Logger: log.Sugar(),
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.Error("job failed", zap.String("type", task.Type()), zap.Error(err))
			reporter.Capture(err, map[string]string{"job": task.Type()})
		}),
	}), nil
}

func NewScheduler(cfg config.Config, log *zap.Logger) (*asynq.Scheduler, error) {
	if !cfg.Redis.Enabled() {
		return nil, ErrQueueNotConfigured
	}
	return asynq.NewScheduler(redisOpt(cfg), &asynq.SchedulerOpts{
		Logger: log.Named("jobs.scheduler").Sugar(),
	}), nil
}

type runParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Cfg       config.Config
	Log       *zap.Logger
	Server    *asynq.Server
	Scheduler *asynq.Scheduler
	Handler   *Handler
}

func run(p runParams) error {
	log := p.Log.Named("jobs")
	mux := asynq.NewServeMux()
	p.Handler.RegisterHandlers(mux)

	entryID, err := p.Scheduler.Register(p.Cfg.Invitation.SweepSpec, NewExpireSweepTask())
	if err != nil {
		return err
	}
	log.Info("expire sweep scheduled", zap.String("spec", p.Cfg.Invitation.SweepSpec), zap.String("entry_id", entryID))

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if err := p.Server.Start(mux); err != nil {
				return err
			}
			return p.Scheduler.Start()
		},
		OnStop: func(context.Context) error {
			p.Scheduler.Shutdown()
			p.Server.Shutdown()
			return nil
		},
	})
	return nil
}
