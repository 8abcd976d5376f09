package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/cinevault/cinevault-backend/pkg/logger"
)

type expiredTokenDeleter interface {
	DeleteExpiredActivationTokens(ctx context.Context, cutoff time.Time) (int64, error)
}

// TokenCleanupJobParams configure the activation token sweeper.
type TokenCleanupJobParams struct {
	Logger *logger.Logger
	Users  expiredTokenDeleter
}

// NewTokenCleanupJob builds the job that deletes expired activation tokens.
func NewTokenCleanupJob(params TokenCleanupJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("user repository required")
	}
	return &tokenCleanupJob{
		logg:  params.Logger,
		users: params.Users,
		now:   time.Now,
	}, nil
}

type tokenCleanupJob struct {
	logg  *logger.Logger
	users expiredTokenDeleter
	now   func() time.Time
}

func (j *tokenCleanupJob) Name() string { return "activation-token-cleanup" }

func (j *tokenCleanupJob) Run(ctx context.Context) error {
	deleted, err := j.users.DeleteExpiredActivationTokens(ctx, j.now().UTC())
	if err != nil {
		return fmt.Errorf("delete expired tokens: %w", err)
	}
	j.logg.Info(j.logg.WithField(ctx, "deleted", deleted), "expired activation tokens removed")
	return nil
}
