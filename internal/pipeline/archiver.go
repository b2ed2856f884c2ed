// Package pipeline schedules background data jobs.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/pumpbot/internal/domain"
)

const day = 24 * time.Hour

// Archiver exports closed positions to cold storage one UTC day at a time.
type Archiver struct {
	blobArchiver domain.Archiver
	lookbackDays int
	logger       *slog.Logger
	now          func() time.Time
}

// NewArchiver creates an Archiver that, on every run, exports each of the
// last lookbackDays completed UTC days. Days already exported are skipped by
// the blob archiver, so overlapping runs are harmless.
func NewArchiver(blobArchiver domain.Archiver, lookbackDays int, logger *slog.Logger) *Archiver {
	if lookbackDays < 1 {
		lookbackDays = 1
	}
	return &Archiver{
		blobArchiver: blobArchiver,
		lookbackDays: lookbackDays,
		logger:       logger.With(slog.String("component", "archiver")),
		now:          time.Now,
	}
}

// Run executes a single archive pass and returns the number of positions
// exported. It stops at the first failing day.
func (a *Archiver) Run(ctx context.Context) (int64, error) {
	today := a.now().UTC().Truncate(day)
	a.logger.InfoContext(ctx, "starting archive run",
		slog.Time("until", today),
		slog.Int("lookback_days", a.lookbackDays),
	)

	var total int64
	for i := a.lookbackDays; i >= 1; i-- {
		since := today.Add(-time.Duration(i) * day)
		n, err := a.blobArchiver.ArchiveClosed(ctx, since, since.Add(day))
		if err != nil {
			return total, fmt.Errorf("archiving positions closed on %s: %w", since.Format("2006-01-02"), err)
		}
		if n > 0 {
			a.logger.InfoContext(ctx, "archived positions",
				slog.String("day", since.Format("2006-01-02")),
				slog.Int64("count", n),
			)
		}
		total += n
	}

	a.logger.InfoContext(ctx, "archive run complete", slog.Int64("positions_archived", total))
	return total, nil
}

// RunCron runs the archiver on a cron schedule until ctx is cancelled. The
// expression uses the standard 5-field format
// "minute hour day-of-month month day-of-week", evaluated in UTC.
func (a *Archiver) RunCron(ctx context.Context, cronExpr string) error {
	cron, err := parseCron(cronExpr)
	if err != nil {
		return fmt.Errorf("parsing cron expression %q: %w", cronExpr, err)
	}
	a.logger.InfoContext(ctx, "archiver cron started", slog.String("cron", cronExpr))

	for {
		next, err := cron.next(a.now().UTC())
		if err != nil {
			return err
		}

		wait := time.Until(next)
		a.logger.DebugContext(ctx, "archiver waiting for next trigger",
			slog.Time("next_run", next),
			slog.Duration("wait", wait),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			a.logger.InfoContext(ctx, "archiver cron stopped")
			return ctx.Err()
		case <-timer.C:
			if _, err := a.Run(ctx); err != nil {
				a.logger.ErrorContext(ctx, "archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}

// cronField matches one field of a cron expression.
type cronField struct {
	wildcard bool
	values   map[int]bool
}

func (f cronField) matches(val int) bool {
	return f.wildcard || f.values[val]
}

// parseCronField parses "*", "5", "1,15", "1-5" and "*/10" (or "0-30/10").
func parseCronField(field string, lo, hi int) (cronField, error) {
	if field == "*" {
		return cronField{wildcard: true}, nil
	}

	values := make(map[int]bool)
	for _, part := range strings.Split(field, ",") {
		part = strings.TrimSpace(part)

		step := 1
		if base, s, ok := strings.Cut(part, "/"); ok {
			n, err := strconv.Atoi(s)
			if err != nil || n < 1 {
				return cronField{}, fmt.Errorf("invalid cron step %q", part)
			}
			step = n
			part = base
		}

		start, end := lo, hi
		switch {
		case part == "*":
		case strings.Contains(part, "-"):
			a, b, _ := strings.Cut(part, "-")
			var err error
			if start, err = strconv.Atoi(a); err != nil {
				return cronField{}, fmt.Errorf("invalid cron range %q: %w", part, err)
			}
			if end, err = strconv.Atoi(b); err != nil {
				return cronField{}, fmt.Errorf("invalid cron range %q: %w", part, err)
			}
		default:
			v, err := strconv.Atoi(part)
			if err != nil {
				return cronField{}, fmt.Errorf("invalid cron field value %q: %w", part, err)
			}
			start, end = v, v
		}

		if start < lo || end > hi || start > end {
			return cronField{}, fmt.Errorf("cron field %q out of range %d-%d", part, lo, hi)
		}
		for v := start; v <= end; v += step {
			values[v] = true
		}
	}
	return cronField{values: values}, nil
}

type parsedCron struct {
	minute     cronField
	hour       cronField
	dayOfMonth cronField
	month      cronField
	dayOfWeek  cronField
}

func parseCron(expr string) (parsedCron, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return parsedCron{}, fmt.Errorf("cron expression must have 5 fields, got %d", len(fields))
	}

	bounds := [5][2]int{{0, 59}, {0, 23}, {1, 31}, {1, 12}, {0, 6}}
	names := [5]string{"minute", "hour", "day-of-month", "month", "day-of-week"}
	var parsed [5]cronField
	for i, f := range fields {
		cf, err := parseCronField(f, bounds[i][0], bounds[i][1])
		if err != nil {
			return parsedCron{}, fmt.Errorf("parsing %s field: %w", names[i], err)
		}
		parsed[i] = cf
	}

	return parsedCron{
		minute:     parsed[0],
		hour:       parsed[1],
		dayOfMonth: parsed[2],
		month:      parsed[3],
		dayOfWeek:  parsed[4],
	}, nil
}

// cronHorizon covers two leap cycles, so "29 2" style schedules are found.
const cronHorizon = 8 * 366 * day

// next returns the first minute strictly after 'after' that matches, in
// after's location. Days and hours that cannot match are skipped whole.
func (c parsedCron) next(after time.Time) (time.Time, error) {
	candidate := after.Truncate(time.Minute).Add(time.Minute)
	limit := after.Add(cronHorizon)

	for candidate.Before(limit) {
		if !c.month.matches(int(candidate.Month())) ||
			!c.dayOfMonth.matches(candidate.Day()) ||
			!c.dayOfWeek.matches(int(candidate.Weekday())) {
			y, m, d := candidate.Date()
			candidate = time.Date(y, m, d+1, 0, 0, 0, 0, candidate.Location())
			continue
		}
		if !c.hour.matches(candidate.Hour()) {
			candidate = candidate.Truncate(time.Hour).Add(time.Hour)
			continue
		}
		if c.minute.matches(candidate.Minute()) {
			return candidate, nil
		}
		candidate = candidate.Add(time.Minute)
	}
	return time.Time{}, fmt.Errorf("cron expression never matches")
}

// ValidateCron reports whether expr parses and fires at least once.
func ValidateCron(expr string) error {
	c, err := parseCron(expr)
	if err != nil {
		return err
	}
	_, err = c.next(time.Now().UTC())
	return err
}
