// Package storage keeps per-device, per-day CSV sample logs on disk:
//
//	<root>/<DirName(deviceId)>/<YYYY-MM-DD>.csv
//
// with the header time,x,y,z,lat,lon,ip. Missing coordinates are empty cells.
// Device ids are opaque strings and are percent-encoded into directory names.
package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"telemetry-hub/internal/models"

	"go.uber.org/zap"
)

var (
	ErrInvalidDevice = errors.New("invalid device id")
	ErrInvalidDay    = errors.New("invalid day")
	ErrNotFound      = errors.New("log not found")
)

// Header is the first line of every log file.
var Header = []string{"time", "x", "y", "z", "lat", "lon", "ip"}

const (
	dayLayout = "2006-01-02"
	logExt    = ".csv"

	// common filesystem limit for one path component
	maxDirName = 255
)

// DirName returns the directory name holding a device's logs. Bytes outside
// the URL path-segment set are percent-encoded so any id maps to one path
// component; "." and ".." are encoded fully.
func DirName(deviceID string) string {
	if deviceID == "." || deviceID == ".." {
		return strings.Repeat("%2E", len(deviceID))
	}
	return url.PathEscape(deviceID)
}

// deviceFromDir reverses DirName. Names that DirName would not produce are
// rejected.
func deviceFromDir(name string) (string, bool) {
	id, err := url.PathUnescape(name)
	if err != nil || id == "" || DirName(id) != name {
		return "", false
	}
	return id, true
}

// ValidDeviceID reports whether id can be stored: it must be non-empty and
// its encoded directory name must fit in one path component.
func ValidDeviceID(id string) bool {
	return id != "" && len(DirName(id)) <= maxDirName
}

// ValidDay reports whether day is a YYYY-MM-DD date.
func ValidDay(day string) bool {
	_, err := time.Parse(dayLayout, day)
	return err == nil
}

// FileInfo describes one log file.
type FileInfo struct {
	DeviceID string
	Day      string
	Path     string
	Size     int64
	ModTime  time.Time
}

// LogStore appends and reads sample logs. Appends to the same file are
// serialized; different files proceed in parallel.
type LogStore struct {
	root   string
	logger *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLogStore creates root if needed.
func NewLogStore(root string, logger *zap.Logger) (*LogStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir %s: %w", root, err)
	}
	return &LogStore{
		root:   root,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}, nil
}

// Root returns the data directory.
func (s *LogStore) Root() string {
	return s.root
}

// Path returns the file path for deviceID/day after validating both.
func (s *LogStore) Path(deviceID, day string) (string, error) {
	if !ValidDeviceID(deviceID) {
		return "", fmt.Errorf("%w: %q", ErrInvalidDevice, deviceID)
	}
	if !ValidDay(day) {
		return "", fmt.Errorf("%w: %q", ErrInvalidDay, day)
	}
	return filepath.Join(s.root, DirName(deviceID), day+logExt), nil
}

// Append writes one row, creating the file with a header when new.
func (s *LogStore) Append(deviceID, day string, row models.SampleRow) error {
	path, err := s.Path(deviceID, day)
	if err != nil {
		return err
	}

	lock := s.fileLock(path)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create device dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat log %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(Header); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}
	if err := w.Write(encodeRow(row)); err != nil {
		return fmt.Errorf("failed to write row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush log %s: %w", path, err)
	}
	return nil
}

// ListDevices returns the decoded ids of devices that have a log directory,
// sorted.
func (s *LogStore) ListDevices() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read data dir: %w", err)
	}
	devices := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if id, ok := deviceFromDir(e.Name()); ok {
			devices = append(devices, id)
		}
	}
	sort.Strings(devices)
	return devices, nil
}

// ListDays returns the days logged for deviceID, oldest first.
func (s *LogStore) ListDays(deviceID string) ([]string, error) {
	if !ValidDeviceID(deviceID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDevice, deviceID)
	}
	entries, err := os.ReadDir(filepath.Join(s.root, DirName(deviceID)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read device dir: %w", err)
	}
	days := make([]string, 0, len(entries))
	for _, e := range entries {
		if day, ok := dayFromName(e.Name()); ok && !e.IsDir() {
			days = append(days, day)
		}
	}
	sort.Strings(days)
	return days, nil
}

// Open opens one log for reading. The caller closes it.
func (s *LogStore) Open(deviceID, day string) (*os.File, error) {
	path, err := s.Path(deviceID, day)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to open log: %w", err)
	}
	return f, nil
}

// ReadDay parses one log. Malformed lines are skipped.
func (s *LogStore) ReadDay(deviceID, day string) ([]models.SampleRow, error) {
	f, err := s.Open(deviceID, day)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var rows []models.SampleRow
	first := true
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			s.logger.Warn("Skipping unreadable log line",
				zap.String("device_id", deviceID),
				zap.String("day", day),
				zap.Error(err),
			)
			continue
		}
		if first {
			first = false
			if len(rec) > 0 && rec[0] == Header[0] {
				continue
			}
		}
		row, ok := decodeRow(rec)
		if !ok {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// RecentFiles lists logs modified at or after since.
func (s *LogStore) RecentFiles(since time.Time) ([]FileInfo, error) {
	devices, err := s.ListDevices()
	if err != nil {
		return nil, err
	}
	var files []FileInfo
	for _, deviceID := range devices {
		dir := filepath.Join(s.root, DirName(deviceID))
		entries, err := os.ReadDir(dir)
		if err != nil {
			s.logger.Warn("Failed to read device dir", zap.String("device_id", deviceID), zap.Error(err))
			continue
		}
		for _, e := range entries {
			day, ok := dayFromName(e.Name())
			if !ok || e.IsDir() {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			if info.ModTime().Before(since) {
				continue
			}
			files = append(files, FileInfo{
				DeviceID: deviceID,
				Day:      day,
				Path:     filepath.Join(dir, e.Name()),
				Size:     info.Size(),
				ModTime:  info.ModTime(),
			})
		}
	}
	return files, nil
}

func (s *LogStore) fileLock(path string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[path]
	if !ok {
		l = &sync.Mutex{}
		s.locks[path] = l
	}
	return l
}

func dayFromName(name string) (string, bool) {
	if !strings.HasSuffix(name, logExt) {
		return "", false
	}
	day := strings.TrimSuffix(name, logExt)
	return day, ValidDay(day)
}

func encodeRow(row models.SampleRow) []string {
	return []string{
		row.Time,
		formatFloat(row.X),
		formatFloat(row.Y),
		formatFloat(row.Z),
		formatOptional(row.Lat),
		formatOptional(row.Lon),
		row.IP,
	}
}

func decodeRow(rec []string) (models.SampleRow, bool) {
	if len(rec) < len(Header) {
		return models.SampleRow{}, false
	}
	row := models.SampleRow{Time: rec[0], IP: rec[6]}
	row.X, _ = strconv.ParseFloat(rec[1], 64)
	row.Y, _ = strconv.ParseFloat(rec[2], 64)
	row.Z, _ = strconv.ParseFloat(rec[3], 64)
	row.Lat = parseOptional(rec[4])
	row.Lon = parseOptional(rec[5])
	return row, true
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

func parseOptional(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}
