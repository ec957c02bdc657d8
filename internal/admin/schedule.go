package admin

import (
	"context"
	"fmt"
	"strings"
	"time"

	cronlib "github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// RunPurgeSchedule runs PurgeExpired on the standard five-field cron
// expression spec until ctx is done. A blank spec disables the schedule and
// returns immediately.
func (s *Service) RunPurgeSchedule(ctx context.Context, spec string, retention time.Duration) error {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil
	}
	scheduler := cronlib.New()
	_, err := scheduler.AddFunc(spec, func() {
		n, err := s.PurgeExpired(ctx, retention)
		if err != nil {
			s.logger.Warn("scheduled purge failed", zap.Error(err))
			return
		}
		s.logger.Debug("scheduled purge finished", zap.Int64("removed", n))
	})
	if err != nil {
		return fmt.Errorf("invalid purge schedule %q: %w", spec, err)
	}

	s.logger.Info("purge schedule started", zap.String("spec", spec), zap.Duration("retention", retention))
	scheduler.Start()
	<-ctx.Done()
	<-scheduler.Stop().Done()
	return nil
}

// ValidateSchedule reports whether spec parses as a five-field cron
// expression.
func ValidateSchedule(spec string) error {
	if strings.TrimSpace(spec) == "" {
		return nil
	}
	if _, err := cronlib.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid purge schedule %q: %w", spec, err)
	}
	return nil
}
