package backup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/api/option"
	sqladmin "google.golang.org/api/sqladmin/v1"
)

// ErrOperationTimeout is returned when an operation is still running after
// the last polling attempt.
var ErrOperationTimeout = errors.New("operation did not finish in time")

// Run is a database backup run.
type Run struct {
	ID      int64
	Status  string
	Started time.Time
}

// Operation is a pending database operation.
type Operation struct {
	Name  string
	RunID int64
}

// DatabaseBackups is the managed database backup API.
type DatabaseBackups interface {
	CreateRun(ctx context.Context, description string) (Operation, error)
	RestoreRun(ctx context.Context, runID int64) (Operation, error)
	// OperationDone reports whether name finished; a failed operation
	// returns an error.
	OperationDone(ctx context.Context, name string) (bool, error)
	LatestRun(ctx context.Context) (*Run, error)
}

// CloudSQL runs backups of one Cloud SQL instance.
type CloudSQL struct {
	svc      *sqladmin.Service
	project  string
	instance string
}

// NewCloudSQL creates the Cloud SQL Admin client.
func NewCloudSQL(ctx context.Context, project, instance, credentialsFile string) (*CloudSQL, error) {
	if project == "" || instance == "" {
		return nil, errors.New("GCP_PROJECT_ID and CLOUDSQL_INSTANCE are required for database backups")
	}
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	svc, err := sqladmin.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Cloud SQL admin client: %w", err)
	}
	return &CloudSQL{svc: svc, project: project, instance: instance}, nil
}

func (c *CloudSQL) CreateRun(ctx context.Context, description string) (Operation, error) {
	op, err := c.svc.BackupRuns.Insert(c.project, c.instance, &sqladmin.BackupRun{
		Description: description,
	}).Context(ctx).Do()
	if err != nil {
		return Operation{}, fmt.Errorf("failed to start backup run: %w", err)
	}
	out := Operation{Name: op.Name}
	if op.BackupContext != nil {
		out.RunID = op.BackupContext.BackupId
	}
	return out, nil
}

func (c *CloudSQL) RestoreRun(ctx context.Context, runID int64) (Operation, error) {
	op, err := c.svc.Instances.RestoreBackup(c.project, c.instance, &sqladmin.InstancesRestoreBackupRequest{
		RestoreBackupContext: &sqladmin.RestoreBackupContext{
			BackupRunId: runID,
			InstanceId:  c.instance,
			Project:     c.project,
		},
	}).Context(ctx).Do()
	if err != nil {
		return Operation{}, fmt.Errorf("failed to start restore of backup %d: %w", runID, err)
	}
	return Operation{Name: op.Name, RunID: runID}, nil
}

func (c *CloudSQL) OperationDone(ctx context.Context, name string) (bool, error) {
	op, err := c.svc.Operations.Get(c.project, name).Context(ctx).Do()
	if err != nil {
		return false, fmt.Errorf("failed to read operation %s: %w", name, err)
	}
	if op.Status != "DONE" {
		return false, nil
	}
	if op.Error != nil && len(op.Error.Errors) > 0 {
		msgs := make([]string, 0, len(op.Error.Errors))
		for _, e := range op.Error.Errors {
			msgs = append(msgs, e.Code+": "+e.Message)
		}
		return true, fmt.Errorf("operation %s failed: %s", name, strings.Join(msgs, "; "))
	}
	return true, nil
}

func (c *CloudSQL) LatestRun(ctx context.Context) (*Run, error) {
	resp, err := c.svc.BackupRuns.List(c.project, c.instance).MaxResults(1).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list backup runs: %w", err)
	}
	if len(resp.Items) == 0 {
		return nil, nil
	}
	item := resp.Items[0]
	started, _ := time.Parse(time.RFC3339, item.StartTime)
	if started.IsZero() {
		started, _ = time.Parse(time.RFC3339, item.EnqueuedTime)
	}
	return &Run{ID: item.Id, Status: item.Status, Started: started}, nil
}

// Waiter polls an operation at a fixed delay.
type Waiter struct {
	Delay       time.Duration
	MaxAttempts int
	// Sleep is replaced in tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Wait polls until the operation is done, fails, or attempts run out.
func (w Waiter) Wait(ctx context.Context, db DatabaseBackups, name string) error {
	sleep := w.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	attempts := max(w.MaxAttempts, 1)
	for i := 0; i < attempts; i++ {
		if err := sleep(ctx, w.Delay); err != nil {
			return err
		}
		done, err := db.OperationDone(ctx, name)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
	return fmt.Errorf("%w: %s after %d attempts", ErrOperationTimeout, name, attempts)
}
