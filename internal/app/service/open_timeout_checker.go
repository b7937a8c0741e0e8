package service

import (
	"context"
	"time"

	apprepository "github.com/kvasserman/fadelink/internal/app/repository"
	"go.uber.org/zap"
)

// OpenTimeoutChecker periodically marks open events that stayed pending for
// too long as failed.
type OpenTimeoutChecker struct {
	logger   *zap.Logger
	repo     apprepository.OpenEventStore
	ttl      time.Duration
	interval time.Duration
	stopChan chan struct{}
}

// NewOpenTimeoutChecker creates a new open timeout checker.
func NewOpenTimeoutChecker(logger *zap.Logger, repo apprepository.OpenEventStore, ttl time.Duration) *OpenTimeoutChecker {
	return &OpenTimeoutChecker{
		logger:   logger,
		repo:     repo,
		ttl:      ttl,
		interval: 30 * time.Second,
		stopChan: make(chan struct{}),
	}
}

// Start begins the periodic checking for expired pending open events.
func (c *OpenTimeoutChecker) Start() {
	go c.run()
}

// Stop stops the periodic checking.
func (c *OpenTimeoutChecker) Stop() {
	close(c.stopChan)
}

func (c *OpenTimeoutChecker) run() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.checkExpiredPendingEvents()
		case <-c.stopChan:
			c.logger.Info("open timeout checker stopped")
			return
		}
	}
}

func (c *OpenTimeoutChecker) checkExpiredPendingEvents() {
	ctx := context.Background()
	expiredBefore := time.Now().Add(-c.ttl)

	affected, err := c.repo.UpdateExpiredPendingStatus(ctx, expiredBefore)
	if err != nil {
		c.logger.Error("failed to update expired pending open events", zap.Error(err))
		return
	}

	if affected > 0 {
		c.logger.Info("updated expired pending open events to failed",
			zap.Int64("count", affected),
			zap.Time("expired_before", expiredBefore),
		)
	}
}
