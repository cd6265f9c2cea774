package keeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/alanyoungcy/updown/internal/domain"
)

// ArchiveJob copies finished rounds to cold storage on a cron schedule.
// Each run re-scans the last lookback epochs; the archiver skips epochs it
// already wrote.
type ArchiveJob struct {
	archiver domain.Archiver
	op       Operator
	lookback int64
	logger   *slog.Logger
}

// NewArchiveJob creates an ArchiveJob.
func NewArchiveJob(archiver domain.Archiver, op Operator, lookback int64, logger *slog.Logger) *ArchiveJob {
	if lookback <= 0 {
		lookback = 1000
	}
	return &ArchiveJob{
		archiver: archiver,
		op:       op,
		lookback: lookback,
		logger:   logger.With(slog.String("component", "archiver")),
	}
}

// RunOnce archives the lookback window ending at the current epoch.
func (a *ArchiveJob) RunOnce(ctx context.Context) (int64, error) {
	st, err := a.op.State(ctx)
	if err != nil {
		return 0, fmt.Errorf("keeper: archive state: %w", err)
	}
	if st.CurrentEpoch == 0 {
		return 0, nil
	}
	from := max(st.CurrentEpoch-a.lookback+1, 1)
	n, err := a.archiver.ArchiveRounds(ctx, from, st.CurrentEpoch)
	if err != nil {
		return n, fmt.Errorf("keeper: archive epochs %d..%d: %w", from, st.CurrentEpoch, err)
	}
	a.logger.InfoContext(ctx, "archive run complete",
		slog.Int64("from", from),
		slog.Int64("to", st.CurrentEpoch),
		slog.Int64("archived", n),
	)
	return n, nil
}

// RunCron runs the job on a standard 5-field cron schedule (UTC) until ctx
// is cancelled. Runs never overlap.
func (a *ArchiveJob) RunCron(ctx context.Context, spec string) error {
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := c.AddFunc(spec, func() {
		if _, err := a.RunOnce(ctx); err != nil {
			a.logger.ErrorContext(ctx, "archive run failed", slog.String("error", err.Error()))
		}
	}); err != nil {
		return fmt.Errorf("keeper: parsing cron expression %q: %w", spec, err)
	}

	a.logger.InfoContext(ctx, "archiver cron started", slog.String("cron", spec))
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	a.logger.Info("archiver cron stopped")
	return ctx.Err()
}

// ValidateSchedule reports whether spec parses as a 5-field cron schedule.
func ValidateSchedule(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("keeper: invalid cron expression %q: %w", spec, err)
	}
	return nil
}
