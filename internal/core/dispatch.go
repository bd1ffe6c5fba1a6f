package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tavola/printbridge/internal/db"
)

// StatusReporter is notified of terminal job transitions so producers can be
// told what happened to the work they submitted.
type StatusReporter interface {
	ReportJobDone(job *db.PrintJob)
	ReportJobFailed(job *db.PrintJob)
	ReportJobReclaimed(job *db.PrintJob)
}

// Dispatcher owns the job state machine: creation, the atomic claim
// transition, acknowledgments, and stale-job reclamation.
type Dispatcher struct {
	db         *sql.DB
	registry   *Registry
	reporter   StatusReporter
	claimBatch int
	log        zerolog.Logger
}

func NewDispatcher(database *sql.DB, registry *Registry, reporter StatusReporter, claimBatch int, logger zerolog.Logger) *Dispatcher {
	if claimBatch < 1 {
		claimBatch = 5
	}
	return &Dispatcher{
		db:         database,
		registry:   registry,
		reporter:   reporter,
		claimBatch: claimBatch,
		log:        logger,
	}
}

type CreateJobParams struct {
	TenantID     int64
	RestaurantID int64
	Role         Role
	PayloadType  string
	Payload      string
	DeviceID     *int64
	OrderID      *int64
}

func (d *Dispatcher) CreateJob(ctx context.Context, params CreateJobParams) (*db.PrintJob, error) {
	if params.TenantID <= 0 || params.RestaurantID <= 0 {
		return nil, fmt.Errorf("%w: tenant and restaurant are required", ErrValidation)
	}
	if !ValidRole(params.Role) {
		return nil, fmt.Errorf("%w: invalid role %q", ErrValidation, params.Role)
	}
	if params.Payload == "" {
		return nil, fmt.Errorf("%w: payload is required", ErrValidation)
	}

	if params.DeviceID != nil {
		device, err := db.Devices.GetDeviceByID(ctx, *params.DeviceID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("%w: target device %d", ErrNotFound, *params.DeviceID)
			}
			return nil, err
		}
		if device.TenantID != params.TenantID || device.RestaurantID != params.RestaurantID {
			return nil, fmt.Errorf("%w: target device %d", ErrNotFound, *params.DeviceID)
		}
	}

	payloadType := params.PayloadType
	if payloadType == "" {
		payloadType = "text"
	}

	job := &db.PrintJob{
		TenantID:     params.TenantID,
		RestaurantID: params.RestaurantID,
		OrderID:      params.OrderID,
		DeviceID:     params.DeviceID,
		Role:         string(params.Role),
		PayloadType:  payloadType,
		Payload:      params.Payload,
	}
	if err := db.Jobs.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	d.log.Debug().Int64("job_id", job.ID).Str("role", job.Role).Msg("job created")
	return job, nil
}

// Claim atomically assigns up to claimBatch eligible pending jobs to the
// polling device. Candidates are taken oldest first; each is claimed with a
// conditional update that re-checks the pending status, so a concurrent
// poller that loses the race simply sees zero rows affected and the job is
// skipped. A poll with no eligible work returns an empty slice, not an error.
// The device's network config is frozen onto each claimed job.
func (d *Dispatcher) Claim(ctx context.Context, device *db.Device) ([]*db.PrintJob, error) {
	now := time.Now().UTC()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim transaction: %w", err)
	}
	defer tx.Rollback()

	// Visibility is filtered in SQL so an eligible job can never hide behind
	// an arbitrarily long backlog of jobs addressed to other devices or roles.
	// Headroom over the batch size absorbs candidates lost to claim races.
	candidateLimit := d.claimBatch * 4
	if candidateLimit < 20 {
		candidateLimit = 20
	}

	rows, err := tx.QueryContext(ctx, db.ClaimCandidateJobs,
		device.TenantID, device.RestaurantID, device.ID, device.Role, device.Role, candidateLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to query claim candidates: %w", err)
	}

	var candidates []*db.PrintJob
	for rows.Next() {
		j := &db.PrintJob{}
		if err := rows.Scan(
			&j.ID, &j.TenantID, &j.RestaurantID, &j.OrderID, &j.DeviceID,
			&j.Role, &j.PayloadType, &j.Payload, &j.Status,
			&j.TargetIP, &j.TargetPort, &j.ErrorMessage, &j.Attempts,
			&j.CreatedAt, &j.UpdatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan claim candidate: %w", err)
		}
		candidates = append(candidates, j)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to read claim candidates: %w", err)
	}
	rows.Close()

	var claimed []*db.PrintJob
	for _, job := range candidates {
		if len(claimed) >= d.claimBatch {
			break
		}
		if !Eligible(job, device) {
			continue
		}
		result, err := tx.ExecContext(ctx, db.ClaimJob,
			device.ID, device.PrinterIP, device.PrinterPort, now, job.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to claim job %d: %w", job.ID, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to get affected rows: %w", err)
		}
		if affected == 0 {
			// Lost the race to a concurrent poller.
			continue
		}

		job.Status = string(JobStatusPrinting)
		deviceID := device.ID
		job.DeviceID = &deviceID
		job.TargetIP = device.PrinterIP
		job.TargetPort = device.PrinterPort
		job.UpdatedAt = now
		claimed = append(claimed, job)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim transaction: %w", err)
	}

	// A successful poll counts as a heartbeat.
	if err := db.Devices.UpdateLastSeen(ctx, device.ID, now); err != nil {
		d.log.Warn().Err(err).Int64("device_id", device.ID).Msg("failed to update last seen")
	}

	if len(claimed) > 0 {
		d.log.Info().
			Int64("device_id", device.ID).
			Int("count", len(claimed)).
			Msg("jobs claimed")
	}

	return claimed, nil
}

// AckSuccess marks an in-flight job as done. The job must currently be held
// by the acknowledging device; anything else is a conflict, not a silent
// second success.
func (d *Dispatcher) AckSuccess(ctx context.Context, device *db.Device, jobID int64) error {
	now := time.Now().UTC()
	result, err := d.db.ExecContext(ctx, db.AckJobDone, now, jobID, device.ID)
	if err != nil {
		return fmt.Errorf("failed to ack job %d: %w", jobID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return d.ackConflict(ctx, device, jobID)
	}

	if err := db.Counters.IncrementDailyCounter(ctx, device.ID, now); err != nil {
		d.log.Warn().Err(err).Int64("device_id", device.ID).Msg("failed to increment print counter")
	}

	d.log.Info().Int64("job_id", jobID).Int64("device_id", device.ID).Msg("job done")

	if d.reporter != nil {
		if job, err := db.Jobs.GetJobByID(ctx, device.TenantID, device.RestaurantID, jobID); err == nil {
			d.reporter.ReportJobDone(job)
		}
	}
	return nil
}

// AckFailure marks an in-flight job as failed and records the error on the
// device. Failed jobs are terminal; resubmission is an upstream decision.
func (d *Dispatcher) AckFailure(ctx context.Context, device *db.Device, jobID int64, message string) error {
	now := time.Now().UTC()
	result, err := d.db.ExecContext(ctx, db.AckJobFailed, message, now, jobID, device.ID)
	if err != nil {
		return fmt.Errorf("failed to ack job %d: %w", jobID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return d.ackConflict(ctx, device, jobID)
	}

	if err := d.registry.RecordError(ctx, device.ID, message); err != nil {
		d.log.Warn().Err(err).Int64("device_id", device.ID).Msg("failed to record device error")
	}

	d.log.Warn().
		Int64("job_id", jobID).
		Int64("device_id", device.ID).
		Str("error", message).
		Msg("job failed")

	if d.reporter != nil {
		if job, err := db.Jobs.GetJobByID(ctx, device.TenantID, device.RestaurantID, jobID); err == nil {
			d.reporter.ReportJobFailed(job)
		}
	}
	return nil
}

// ackConflict distinguishes an unknown job from a job no longer held by the
// device, so callers can tell a race from a typo.
func (d *Dispatcher) ackConflict(ctx context.Context, device *db.Device, jobID int64) error {
	_, err := db.Jobs.GetJobByID(ctx, device.TenantID, device.RestaurantID, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: job %d", ErrNotFound, jobID)
		}
		return err
	}
	return fmt.Errorf("%w: job %d", ErrConflict, jobID)
}

// ReclaimStale returns jobs stuck in printing past the timeout to the
// pending pool, clearing their device assignment and dispatch snapshot and
// incrementing attempts. This is the only automatic retry path: it covers
// silent device disappearance, never explicit failure reports.
func (d *Dispatcher) ReclaimStale(ctx context.Context, timeout time.Duration) (int, error) {
	if timeout <= 0 {
		return 0, fmt.Errorf("%w: timeout must be positive", ErrValidation)
	}

	now := time.Now().UTC()
	cutoff := now.Add(-timeout)
	marker := fmt.Sprintf("reclaimed: no acknowledgment within %s", timeout)

	stale, err := db.Jobs.StaleJobs(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	reclaimed := 0
	for _, job := range stale {
		result, err := d.db.ExecContext(ctx, db.RequeueStaleJob, marker, now, job.ID)
		if err != nil {
			return reclaimed, fmt.Errorf("failed to requeue job %d: %w", job.ID, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return reclaimed, fmt.Errorf("failed to get affected rows: %w", err)
		}
		if affected == 0 {
			// Acknowledged between the sweep select and the requeue.
			continue
		}
		reclaimed++

		if d.reporter != nil {
			job.Status = string(JobStatusPending)
			job.DeviceID = nil
			job.TargetIP = ""
			job.TargetPort = 0
			job.ErrorMessage = marker
			job.Attempts++
			d.reporter.ReportJobReclaimed(job)
		}
	}

	d.log.Info().
		Int("reclaimed", reclaimed).
		Dur("timeout", timeout).
		Msg("stale job sweep complete")

	return reclaimed, nil
}

// PurgeTerminal deletes done/failed jobs older than the cutoff. Retention
// housekeeping, triggered by the maintenance endpoint.
func (d *Dispatcher) PurgeTerminal(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("%w: retention must be positive", ErrValidation)
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	purged, err := db.Jobs.PurgeTerminal(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if purged > 0 {
		d.log.Info().Int64("purged", purged).Msg("terminal jobs purged")
	}
	return purged, nil
}
