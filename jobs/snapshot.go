package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/hibiken/asynq"

	"github.com/procura-erp/procura-erp/internal/backup"
	jobmetrics "github.com/procura-erp/procura-erp/internal/jobs"
)

// BackupSnapshotJob periodically serialises the whole database to a
// JSON file under a local directory and prunes old snapshots.
type BackupSnapshotJob struct {
	service *backup.Service
	dir     string
	retain  int
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewBackupSnapshotJob constructs the snapshot job. retain is the
// number of snapshot files kept on disk; older files are removed after
// each run.
func NewBackupSnapshotJob(service *backup.Service, dir string, retain int, logger *slog.Logger, metrics *jobmetrics.Metrics) *BackupSnapshotJob {
	if retain < 1 {
		retain = 7
	}
	return &BackupSnapshotJob{service: service, dir: dir, retain: retain, logger: logger, metrics: metrics}
}

// Handle implements the asynq handler for TaskTypeBackupSnapshot.
func (j *BackupSnapshotJob) Handle(ctx context.Context, _ *asynq.Task) error {
	tracker := j.metrics.Track("backup_snapshot")
	return tracker.End(j.run(ctx))
}

func (j *BackupSnapshotJob) run(ctx context.Context) error {
	doc, err := j.service.Backup(ctx)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("snapshot: encode: %w", err)
	}
	if err := os.MkdirAll(j.dir, 0o755); err != nil {
		return fmt.Errorf("snapshot: create dir: %w", err)
	}
	name := fmt.Sprintf("backup-%s.json", time.Now().UTC().Format("20060102-150405"))
	path := filepath.Join(j.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("snapshot: write %s: %w", path, err)
	}
	j.logger.Info("backup snapshot written", slog.String("path", path), slog.Int("bytes", len(data)))

	if err := j.prune(); err != nil {
		j.logger.Warn("snapshot retention sweep failed", slog.Any("error", err))
	}
	return nil
}

// prune removes the oldest snapshots beyond the retention count.
// Snapshot names embed a sortable UTC timestamp, so lexical order is
// chronological order.
func (j *BackupSnapshotJob) prune() error {
	matches, err := filepath.Glob(filepath.Join(j.dir, "backup-*.json"))
	if err != nil {
		return err
	}
	if len(matches) <= j.retain {
		return nil
	}
	sort.Strings(matches)
	for _, stale := range matches[:len(matches)-j.retain] {
		if err := os.Remove(stale); err != nil {
			return err
		}
		j.logger.Info("backup snapshot removed", slog.String("path", stale))
	}
	return nil
}
