package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strconv"
	"sync"
	"time"

	"telemetry-hub/internal/metrics"
	"telemetry-hub/internal/storage"
	"telemetry-hub/internal/store"

	"go.uber.org/zap"
)

const (
	ActionCreate = "create"
	ActionUpdate = "update"

	fingerprintKeyPrefix = "archive:fp:"
)

// FileSource lists log files touched since a point in time.
type FileSource interface {
	RecentFiles(since time.Time) ([]storage.FileInfo, error)
}

// Ledger records completed uploads.
type Ledger interface {
	Record(ctx context.Context, e LedgerEntry) error
}

// Options configures the uploader.
type Options struct {
	Prefix   string
	Interval time.Duration
	Window   time.Duration
}

// Report summarizes one pass.
type Report struct {
	Scanned int `json:"scanned"`
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Uploader periodically mirrors recently modified device-day logs into an
// object store. A file is uploaded again only when its fingerprint changed.
type Uploader struct {
	files   FileSource
	objects ObjectStore
	kv      store.KV
	ledger  Ledger
	opts    Options
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time

	mu   sync.Mutex // one pass at a time
	done chan struct{}
}

// NewUploader creates an Uploader. ledger may be nil.
func NewUploader(
	files FileSource,
	objects ObjectStore,
	kv store.KV,
	ledger Ledger,
	opts Options,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Uploader {
	if opts.Interval <= 0 {
		opts.Interval = time.Hour
	}
	if opts.Window <= 0 {
		opts.Window = 48 * time.Hour
	}
	return &Uploader{
		files:   files,
		objects: objects,
		kv:      kv,
		ledger:  ledger,
		opts:    opts,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// ObjectKey returns the object key for a device-day log. The device segment
// uses the same encoding as the log directory.
func (u *Uploader) ObjectKey(deviceID, day string) string {
	return path.Join(u.opts.Prefix, storage.DirName(deviceID), day+".csv")
}

// Fingerprint identifies one version of a log file.
func Fingerprint(fi storage.FileInfo) string {
	return strconv.FormatInt(fi.Size, 10) + ":" + strconv.FormatInt(fi.ModTime.UnixNano(), 10)
}

// Start runs a pass immediately and then every Interval until ctx is done.
func (u *Uploader) Start(ctx context.Context) {
	u.done = make(chan struct{})
	go func() {
		defer close(u.done)

		ticker := time.NewTicker(u.opts.Interval)
		defer ticker.Stop()

		for {
			u.runLogged(ctx)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// Wait blocks until the loop started by Start has exited or ctx expires.
func (u *Uploader) Wait(ctx context.Context) error {
	if u.done == nil {
		return nil
	}
	select {
	case <-u.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (u *Uploader) runLogged(ctx context.Context) {
	report, err := u.RunOnce(ctx)
	if err != nil {
		u.logger.Error("Archive pass failed", zap.Error(err))
		return
	}
	u.logger.Info("Archive pass complete",
		zap.Int("scanned", report.Scanned),
		zap.Int("created", report.Created),
		zap.Int("updated", report.Updated),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
	)
}

// RunOnce uploads every changed file modified within Window. Per-file
// failures are counted in the report and retried on the next pass; only a
// failure to list files is returned as an error.
func (u *Uploader) RunOnce(ctx context.Context) (Report, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	start := u.now()
	defer func() { u.metrics.ArchivePass(u.now().Sub(start)) }()

	files, err := u.files.RecentFiles(start.Add(-u.opts.Window))
	if err != nil {
		return Report{}, fmt.Errorf("failed to list recent files: %w", err)
	}

	var report Report
	for _, fi := range files {
		if ctx.Err() != nil {
			break
		}
		report.Scanned++

		outcome, err := u.uploadFile(ctx, fi)
		if err != nil {
			outcome = "failed"
			u.logger.Warn("Failed to archive log",
				zap.String("device_id", fi.DeviceID),
				zap.String("day", fi.Day),
				zap.Error(err),
			)
		}
		u.metrics.ArchiveFile(outcome)

		switch outcome {
		case ActionCreate:
			report.Created++
		case ActionUpdate:
			report.Updated++
		case "skipped":
			report.Skipped++
		default:
			report.Failed++
		}
	}
	return report, nil
}

func (u *Uploader) uploadFile(ctx context.Context, fi storage.FileInfo) (string, error) {
	fp := Fingerprint(fi)
	cacheKey := fingerprintKeyPrefix + fi.DeviceID + "/" + fi.Day

	cached, err := u.kv.Get(ctx, cacheKey)
	switch {
	case err == nil && cached == fp:
		return "skipped", nil
	case err != nil && !errors.Is(err, store.ErrMiss):
		u.logger.Warn("Fingerprint lookup failed", zap.String("key", cacheKey), zap.Error(err))
	}

	body, err := os.ReadFile(fi.Path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", fi.Path, err)
	}

	key := u.ObjectKey(fi.DeviceID, fi.Day)
	action := ActionUpdate
	if _, err := u.objects.Stat(ctx, key); err != nil {
		if !errors.Is(err, ErrObjectNotFound) {
			return "", err
		}
		action = ActionCreate
	}

	if err := u.objects.Put(ctx, key, body); err != nil {
		return "", err
	}

	if u.ledger != nil {
		entry := LedgerEntry{
			ObjectKey:   key,
			DeviceID:    fi.DeviceID,
			Day:         fi.Day,
			Size:        int64(len(body)),
			Fingerprint: fp,
			Action:      action,
			UploadedAt:  u.now().UTC(),
		}
		if err := u.ledger.Record(ctx, entry); err != nil {
			u.logger.Warn("Upload not recorded in ledger", zap.String("key", key), zap.Error(err))
		}
	}

	if err := u.kv.Set(ctx, cacheKey, fp, 2*u.opts.Window); err != nil {
		u.logger.Warn("Failed to cache fingerprint", zap.String("key", cacheKey), zap.Error(err))
	}

	u.logger.Debug("Archived log",
		zap.String("key", key),
		zap.String("action", action),
		zap.Int("size", len(body)),
	)
	return action, nil
}
