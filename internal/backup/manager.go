package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/pantrynav/pantrynav/internal/config"
)

// Section names.
const (
	SectionDatabase      = "database"
	SectionFiles         = "files"
	SectionConfiguration = "configuration"
)

// Status values.
const (
	StatusOK      = "OK"
	StatusUnknown = "UNKNOWN"
)

const timestampLayout = "20060102_150405"

// ErrSectionDisabled is returned by operations on a disabled section.
var ErrSectionDisabled = errors.New("backup section disabled")

// ErrMissingRunID is returned when Cloud SQL reports a backup operation
// without the id of the run it created.
var ErrMissingRunID = errors.New("backup operation has no run id")

// Section configures one kind of backup.
type Section struct {
	Enabled       bool   `json:"enabled"`
	RetentionDays int    `json:"retention_days"`
	Schedule      string `json:"schedule"`
	Prefix        string `json:"bucket_prefix"`
}

// Options configures a Manager.
type Options struct {
	Database      Section
	Files         Section
	Configuration Section
	Directories   []string
	Waiter        Waiter
}

// OptionsFromConfig maps the environment configuration to Options.
func OptionsFromConfig(cfg *config.BackupConfig) (Options, error) {
	dirs, err := cfg.BackupDirectories()
	if err != nil {
		return Options{}, err
	}
	return Options{
		Database: Section{
			Enabled: cfg.DatabaseEnabled, RetentionDays: cfg.DatabaseRetention,
			Schedule: cfg.DatabaseSchedule, Prefix: "database-backups",
		},
		Files: Section{
			Enabled: cfg.FilesEnabled, RetentionDays: cfg.FilesRetention,
			Schedule: cfg.FilesSchedule, Prefix: "file-backups",
		},
		Configuration: Section{
			Enabled: cfg.ConfigEnabled, RetentionDays: cfg.ConfigRetention,
			Schedule: cfg.ConfigSchedule, Prefix: "config-backups",
		},
		Directories: dirs,
		Waiter:      Waiter{Delay: cfg.WaitDelay, MaxAttempts: cfg.WaitMaxAttempts},
	}, nil
}

// Manager performs backups. db may be nil when database backups are disabled.
type Manager struct {
	store  ObjectStore
	db     DatabaseBackups
	opts   Options
	logger *slog.Logger

	now     func() time.Time
	environ func() []string
}

// NewManager creates a Manager.
func NewManager(store ObjectStore, db DatabaseBackups, opts Options, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:   store,
		db:      db,
		opts:    opts,
		logger:  logger.With("component", "backup.manager"),
		now:     func() time.Time { return time.Now().UTC() },
		environ: os.Environ,
	}
}

func (m *Manager) sections() map[string]Section {
	return map[string]Section{
		SectionDatabase:      m.opts.Database,
		SectionFiles:         m.opts.Files,
		SectionConfiguration: m.opts.Configuration,
	}
}

func (m *Manager) key(s Section, kind, ext string) string {
	return fmt.Sprintf("%s/%s_%s%s", s.Prefix, kind, m.now().Format(timestampLayout), ext)
}

type databaseMarker struct {
	BackupID  int64     `json:"backup_id"`
	Operation string    `json:"operation"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateDatabaseBackup starts a backup run, waits for it and records a
// marker object. It returns the backup run id.
func (m *Manager) CreateDatabaseBackup(ctx context.Context) (string, error) {
	s := m.opts.Database
	if !s.Enabled {
		m.logger.Info("database backup disabled")
		return "", ErrSectionDisabled
	}
	if m.db == nil {
		return "", errors.New("database backups are not configured")
	}

	op, err := m.db.CreateRun(ctx, "pantrynav "+m.now().Format(timestampLayout))
	if err != nil {
		return "", err
	}
	if err := m.opts.Waiter.Wait(ctx, m.db, op.Name); err != nil {
		return "", fmt.Errorf("database backup %s: %w", op.Name, err)
	}
	if op.RunID == 0 {
		m.logger.Error("database backup finished without a run id, marker not written", "operation", op.Name)
		return "", fmt.Errorf("database backup %s: %w", op.Name, ErrMissingRunID)
	}

	id := strconv.FormatInt(op.RunID, 10)
	marker, err := json.Marshal(databaseMarker{BackupID: op.RunID, Operation: op.Name, CreatedAt: m.now()})
	if err != nil {
		return "", fmt.Errorf("marshal marker: %w", err)
	}
	key := m.key(s, "database", ".json")
	if err := m.store.Put(ctx, key, "application/json", bytes.NewReader(marker)); err != nil {
		return "", err
	}

	m.logger.Info("database backup created", "backup_id", id, "marker", key)
	return id, nil
}

// CreateFileBackup archives the configured directories that exist into one
// .tar.gz object and returns its key. It returns "" when nothing exists.
func (m *Manager) CreateFileBackup(ctx context.Context) (string, error) {
	s := m.opts.Files
	if !s.Enabled {
		m.logger.Info("file backup disabled")
		return "", ErrSectionDisabled
	}

	var dirs []string
	for _, d := range m.opts.Directories {
		info, err := os.Stat(d)
		if err != nil || !info.IsDir() {
			m.logger.Warn("backup directory does not exist", "directory", d)
			continue
		}
		dirs = append(dirs, d)
	}
	if len(dirs) == 0 {
		m.logger.Info("no directories to back up")
		return "", nil
	}

	key := m.key(s, "files", ".tar.gz")
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(WriteTarGz(pw, dirs))
	}()
	if err := m.store.Put(ctx, key, "application/gzip", pr); err != nil {
		_ = pr.CloseWithError(err)
		return "", err
	}

	m.logger.Info("file backup created", "directories", dirs, "backup_key", key)
	return key, nil
}

// CreateConfigBackup uploads a redacted environment snapshot.
func (m *Manager) CreateConfigBackup(ctx context.Context) (string, error) {
	s := m.opts.Configuration
	if !s.Enabled {
		m.logger.Info("configuration backup disabled")
		return "", ErrSectionDisabled
	}

	var buf bytes.Buffer
	if err := WriteSnapshot(&buf, NewSnapshot(m.environ())); err != nil {
		return "", err
	}
	key := m.key(s, "config", ".json.zst")
	if err := m.store.Put(ctx, key, "application/zstd", &buf); err != nil {
		return "", err
	}

	m.logger.Info("configuration backup created", "backup_key", key)
	return key, nil
}

// CleanupOldBackups deletes objects older than each section's retention and
// returns how many were deleted.
func (m *Manager) CleanupOldBackups(ctx context.Context) (int, error) {
	now := m.now()
	deleted := 0
	var errs []error

	for name, s := range m.sections() {
		if s.RetentionDays <= 0 {
			continue
		}
		cutoff := now.AddDate(0, 0, -s.RetentionDays)
		objs, err := m.store.List(ctx, s.Prefix+"/")
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, o := range objs {
			if !o.Created.Before(cutoff) {
				continue
			}
			if err := m.store.Delete(ctx, o.Key); err != nil {
				errs = append(errs, err)
				continue
			}
			deleted++
			m.logger.Debug("deleted old backup", "section", name, "key", o.Key)
		}
	}

	m.logger.Info("old backups cleaned", "deleted_count", deleted)
	return deleted, errors.Join(errs...)
}

// RestoreDatabaseBackup restores backup run id into the instance and waits.
func (m *Manager) RestoreDatabaseBackup(ctx context.Context, id string) error {
	if m.db == nil {
		return errors.New("database backups are not configured")
	}
	runID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid backup id %q: %w", id, err)
	}
	op, err := m.db.RestoreRun(ctx, runID)
	if err != nil {
		return err
	}
	if err := m.opts.Waiter.Wait(ctx, m.db, op.Name); err != nil {
		return fmt.Errorf("restore %s: %w", id, err)
	}
	m.logger.Info("database restored from backup", "backup_id", id)
	return nil
}

// SectionStatus is the last known backup of a section.
type SectionStatus struct {
	LastBackup *time.Time `json:"last_backup"`
	Status     string     `json:"status"`
}

// Status reports the latest backup of each enabled section. Lookup failures
// leave the section UNKNOWN.
func (m *Manager) Status(ctx context.Context) map[string]SectionStatus {
	out := map[string]SectionStatus{
		SectionDatabase:      {Status: StatusUnknown},
		SectionFiles:         {Status: StatusUnknown},
		SectionConfiguration: {Status: StatusUnknown},
	}

	if m.opts.Database.Enabled && m.db != nil {
		run, err := m.db.LatestRun(ctx)
		if err != nil {
			m.logger.Warn("failed to read database backup status", "error", err)
		} else if run != nil {
			t := run.Started
			out[SectionDatabase] = SectionStatus{LastBackup: &t, Status: StatusOK}
		}
	}

	for _, name := range []string{SectionFiles, SectionConfiguration} {
		s := m.sections()[name]
		if !s.Enabled {
			continue
		}
		objs, err := m.store.List(ctx, s.Prefix+"/")
		if err != nil {
			m.logger.Warn("failed to read backup status", "section", name, "error", err)
			continue
		}
		if len(objs) == 0 {
			continue
		}
		sort.Slice(objs, func(i, j int) bool { return objs[i].Created.After(objs[j].Created) })
		t := objs[0].Created
		out[name] = SectionStatus{LastBackup: &t, Status: StatusOK}
	}
	return out
}

// RunResult summarizes one invocation of Run.
type RunResult struct {
	ID             string   `json:"id"`
	DatabaseBackup string   `json:"database_backup,omitempty"`
	FileBackup     string   `json:"file_backup,omitempty"`
	ConfigBackup   string   `json:"config_backup,omitempty"`
	Deleted        int      `json:"deleted"`
	Errors         []string `json:"errors,omitempty"`
}

// Run performs every enabled backup, then prunes old ones. Section failures
// are collected rather than aborting the run.
func (m *Manager) Run(ctx context.Context) RunResult {
	res := RunResult{ID: ulid.Make().String()}
	logger := m.logger.With("run_id", res.ID)

	record := func(section string, err error) {
		if err == nil || errors.Is(err, ErrSectionDisabled) {
			return
		}
		logger.Error("backup failed", "section", section, "error", err)
		res.Errors = append(res.Errors, section+": "+err.Error())
	}

	var err error
	res.DatabaseBackup, err = m.CreateDatabaseBackup(ctx)
	record(SectionDatabase, err)
	res.FileBackup, err = m.CreateFileBackup(ctx)
	record(SectionFiles, err)
	res.ConfigBackup, err = m.CreateConfigBackup(ctx)
	record(SectionConfiguration, err)
	res.Deleted, err = m.CleanupOldBackups(ctx)
	record("cleanup", err)

	logger.Info("backup run finished", "errors", len(res.Errors))
	return res
}
