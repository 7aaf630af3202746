package engine

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// StartSweeper re-analyzes conversations whose unseen messages reached the
// re-analysis threshold: once at startup, then every interval until Stop.
func (e *Engine) StartSweeper(interval time.Duration) {
	if interval <= 0 {
		interval = e.cfg.Analysis.SweepInterval
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.sweep()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.sweep()
			case <-e.stopCh:
				return
			}
		}
	}()
}

// sweep analyzes every pending conversation. Failures are logged and the
// sweep moves on.
func (e *Engine) sweep() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-e.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	pending, err := e.DB.PendingConversations(ctx, e.policy.Threshold)
	if err != nil {
		e.log.Warn("sweep: pending conversations", zap.Error(err))
		return
	}
	analyzed := 0
	for _, c := range pending {
		if ctx.Err() != nil {
			return
		}
		if _, err := e.AnalyzeConversation(ctx, c.ID, nil, false); err != nil {
			e.log.Warn("sweep: analysis failed", zap.String("conversation", c.ID), zap.Error(err))
			continue
		}
		analyzed++
	}
	if analyzed > 0 {
		e.log.Info("sweep: re-analyzed conversations", zap.Int("count", analyzed))
	}
}
