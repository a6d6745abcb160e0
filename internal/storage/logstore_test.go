package storage

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"telemetry-hub/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newStore(t *testing.T) *LogStore {
	s, err := NewLogStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	return s
}

func fp(v float64) *float64 { return &v }

func TestAppend_WritesHeaderOnce(t *testing.T) {
	s := newStore(t)

	require.NoError(t, s.Append("dev_1", "2024-03-01", models.SampleRow{Time: "t1", X: 1, Y: 2, Z: 3, IP: "1.1.1.1"}))
	require.NoError(t, s.Append("dev_1", "2024-03-01", models.SampleRow{Time: "t2", X: 0.5, Lat: fp(10.5), Lon: fp(-20.25), IP: "1.1.1.1"}))

	raw, err := os.ReadFile(filepath.Join(s.Root(), "dev_1", "2024-03-01.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "time,x,y,z,lat,lon,ip", lines[0])
	assert.Equal(t, "t1,1,2,3,,,1.1.1.1", lines[1])
	assert.Equal(t, "t2,0.5,0,0,10.5,-20.25,1.1.1.1", lines[2])
}

func TestAppend_RejectsUnstorableDeviceID(t *testing.T) {
	s := newStore(t)
	for _, id := range []string{"", strings.Repeat("x", 256), strings.Repeat("é", 50)} {
		err := s.Append(id, "2024-03-01", models.SampleRow{})
		assert.ErrorIs(t, err, ErrInvalidDevice, "id %q", id)
	}
	assert.ErrorIs(t, s.Append("ok", "03/01/2024", models.SampleRow{}), ErrInvalidDay)
}

func TestDirName(t *testing.T) {
	cases := map[string]string{
		"dev_1":             "dev_1",
		"phone 1":           "phone%201",
		"alice@example.com": "alice@example.com",
		"héllo":             "h%C3%A9llo",
		"a/b":               "a%2Fb",
		"../etc":            "..%2Fetc",
		".":                 "%2E",
		"..":                "%2E%2E",
		"100%":              "100%25",
	}
	for id, want := range cases {
		assert.Equal(t, want, DirName(id), "id %q", id)
		got, ok := deviceFromDir(want)
		require.True(t, ok, "dir %q", want)
		assert.Equal(t, id, got)
	}

	_, ok := deviceFromDir("phone 1")
	assert.False(t, ok, "names DirName never produces are skipped")
}

func TestAppend_OpaqueDeviceIDsRoundTrip(t *testing.T) {
	s := newStore(t)
	ids := []string{"phone 1", "alice@example.com", "héllo", "a/b", "..", "#"}
	for _, id := range ids {
		require.NoError(t, s.Append(id, "2024-03-01", models.SampleRow{Time: "t", X: 1}), "id %q", id)
	}

	entries, err := os.ReadDir(s.Root())
	require.NoError(t, err)
	assert.Len(t, entries, len(ids), "every id gets its own directory under root")

	devices, err := s.ListDevices()
	require.NoError(t, err)
	assert.ElementsMatch(t, ids, devices)

	for _, id := range ids {
		days, err := s.ListDays(id)
		require.NoError(t, err)
		assert.Equal(t, []string{"2024-03-01"}, days)

		rows, err := s.ReadDay(id, "2024-03-01")
		require.NoError(t, err)
		require.Len(t, rows, 1)
	}

	files, err := s.RecentFiles(time.Now().Add(-time.Hour))
	require.NoError(t, err)
	var got []string
	for _, f := range files {
		got = append(got, f.DeviceID)
		assert.Equal(t, s.Root(), filepath.Dir(filepath.Dir(f.Path)))
	}
	assert.ElementsMatch(t, ids, got)
}

func TestReadDay_RoundTripsRows(t *testing.T) {
	s := newStore(t)
	in := []models.SampleRow{
		{Time: "2024-03-01T00:00:00.000Z", X: 1.25, Y: -2, Z: 9.81, IP: "10.0.0.1"},
		{Time: "2024-03-01T00:00:01.000Z", X: 0, Y: 0, Z: 0, Lat: fp(1), Lon: fp(2), IP: "10.0.0.1"},
	}
	for _, row := range in {
		require.NoError(t, s.Append("dev_1", "2024-03-01", row))
	}

	out, err := s.ReadDay("dev_1", "2024-03-01")
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestReadDay_NotFound(t *testing.T) {
	s := newStore(t)
	_, err := s.ReadDay("dev_1", "2024-03-01")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListDevicesAndDays(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Append("b", "2024-03-02", models.SampleRow{}))
	require.NoError(t, s.Append("b", "2024-03-01", models.SampleRow{}))
	require.NoError(t, s.Append("a", "2024-03-01", models.SampleRow{}))
	require.NoError(t, os.WriteFile(filepath.Join(s.Root(), "b", "notes.txt"), []byte("x"), 0o644))

	devices, err := s.ListDevices()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, devices)

	days, err := s.ListDays("b")
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-03-01", "2024-03-02"}, days)

	_, err = s.ListDays("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecentFiles(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Append("a", "2024-03-01", models.SampleRow{}))
	require.NoError(t, s.Append("a", "2024-03-02", models.SampleRow{}))

	old := time.Now().Add(-72 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(s.Root(), "a", "2024-03-01.csv"), old, old))

	files, err := s.RecentFiles(time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "a", files[0].DeviceID)
	assert.Equal(t, "2024-03-02", files[0].Day)
	assert.Positive(t, files[0].Size)
}

func TestAppend_ConcurrentWritersSameFile(t *testing.T) {
	s := newStore(t)
	const n = 200

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Append("dev_1", "2024-03-01", models.SampleRow{Time: "t", X: 1}))
		}()
	}
	wg.Wait()

	rows, err := s.ReadDay("dev_1", "2024-03-01")
	require.NoError(t, err)
	assert.Len(t, rows, n)
}
