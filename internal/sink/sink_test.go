package sink

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"telemetry-hub/internal/models"
	"telemetry-hub/internal/storage"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingWriter struct {
	name  string
	mu    sync.Mutex
	recs  []Record
	err   error
	block chan struct{}
}

func (w *recordingWriter) Name() string { return w.name }

func (w *recordingWriter) Write(ctx context.Context, rec Record) error {
	if w.block != nil {
		<-w.block
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.recs = append(w.recs, rec)
	return w.err
}

func (w *recordingWriter) records() []Record {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Record(nil), w.recs...)
}

func closeAsync(t *testing.T, a *Async) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, a.Close(ctx))
}

func TestAsync_DeliversInOrder(t *testing.T) {
	w := &recordingWriter{name: "rec"}
	a := NewAsync(w, 16, nil, zap.NewNop())
	a.Start(context.Background())

	for i := 0; i < 10; i++ {
		a.Submit(Record{DeviceID: "d", Row: models.SampleRow{X: float64(i)}})
	}
	closeAsync(t, a)

	recs := w.records()
	require.Len(t, recs, 10)
	for i, r := range recs {
		assert.Equal(t, float64(i), r.Row.X)
	}
}

func TestAsync_FullQueueDropsWithoutBlocking(t *testing.T) {
	w := &recordingWriter{name: "rec", block: make(chan struct{})}
	a := NewAsync(w, 1, nil, zap.NewNop())
	a.Start(context.Background())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			a.Submit(Record{DeviceID: "d"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Submit blocked on a full queue")
	}

	close(w.block)
	closeAsync(t, a)
	assert.Less(t, len(w.records()), 50)
}

func TestAsync_WriterErrorDoesNotStopWorker(t *testing.T) {
	w := &recordingWriter{name: "rec", err: errors.New("boom")}
	a := NewAsync(w, 8, nil, zap.NewNop())
	a.Start(context.Background())

	a.Submit(Record{DeviceID: "a"})
	a.Submit(Record{DeviceID: "b"})
	closeAsync(t, a)

	assert.Len(t, w.records(), 2)
}

func TestAsync_SubmitAfterCloseIsDropped(t *testing.T) {
	w := &recordingWriter{name: "rec"}
	a := NewAsync(w, 8, nil, zap.NewNop())
	a.Start(context.Background())
	closeAsync(t, a)

	assert.NotPanics(t, func() { a.Submit(Record{DeviceID: "late"}) })
	assert.Empty(t, w.records())
	closeAsync(t, a)
}

func TestFanout_FailingMemberDoesNotAffectOthers(t *testing.T) {
	bad := &recordingWriter{name: "bad", err: errors.New("down")}
	good := &recordingWriter{name: "good"}
	ab := NewAsync(bad, 8, nil, zap.NewNop())
	ag := NewAsync(good, 8, nil, zap.NewNop())
	ab.Start(context.Background())
	ag.Start(context.Background())

	Fanout{ab, ag}.Submit(Record{DeviceID: "d"})
	closeAsync(t, ab)
	closeAsync(t, ag)

	assert.Len(t, good.records(), 1)
}

func TestNewRecord(t *testing.T) {
	e := models.SampleEvent{
		DeviceID:   "dev_1",
		ObservedAt: "2024-03-01T10:00:00.000Z",
		ReceivedAt: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
	}
	rec := NewRecord(e)
	assert.Equal(t, "dev_1", rec.DeviceID)
	assert.Equal(t, "2024-03-01", rec.Day)
	assert.Equal(t, "2024-03-01T10:00:00.000Z", rec.Row.Time)
}

func TestCSVWriter(t *testing.T) {
	store, err := storage.NewLogStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	w := NewCSVWriter(store)
	require.NoError(t, w.Write(context.Background(), Record{DeviceID: "d", Day: "2024-03-01", Row: models.SampleRow{Time: "t", X: 1}}))

	rows, err := store.ReadDay("d", "2024-03-01")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1.0, rows[0].X)
}

type fakeStream struct {
	args []*redis.XAddArgs
	err  error
}

func (f *fakeStream) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.args = append(f.args, a)
	return redis.NewStringResult("1-0", f.err)
}

func TestRedisStreamWriter(t *testing.T) {
	fs := &fakeStream{}
	w := NewRedisStreamWriter(fs, "telemetry:samples:stream", 1000)

	require.NoError(t, w.Write(context.Background(), Record{DeviceID: "dev_1", Row: models.SampleRow{Time: "t", Z: 9.8}}))
	require.Len(t, fs.args, 1)
	assert.Equal(t, "telemetry:samples:stream", fs.args[0].Stream)

	vals := fs.args[0].Values.(map[string]interface{})
	var view models.SampleView
	require.NoError(t, json.Unmarshal([]byte(vals["data"].(string)), &view))
	assert.Equal(t, "dev_1", view.DeviceID)
	assert.Equal(t, 9.8, view.Z)

	fs.err = errors.New("READONLY")
	assert.Error(t, w.Write(context.Background(), Record{DeviceID: "dev_1"}))
}

type fakePublisher struct {
	topics   []string
	payloads [][]byte
	qos      []byte
}

func (f *fakePublisher) Publish(topic string, qos byte, retained bool, payload []byte) error {
	f.topics = append(f.topics, topic)
	f.payloads = append(f.payloads, payload)
	f.qos = append(f.qos, qos)
	return nil
}

func TestMQTTWriter(t *testing.T) {
	pub := &fakePublisher{}
	w := NewMQTTWriter(pub, "telemetry", 1)

	require.NoError(t, w.Write(context.Background(), Record{DeviceID: "dev_1", Row: models.SampleRow{Time: "t", X: 1}}))
	require.Len(t, pub.topics, 1)
	assert.Equal(t, "telemetry/dev_1/sensor-data", pub.topics[0])
	assert.Equal(t, byte(1), pub.qos[0])
	assert.JSONEq(t, `{"deviceId":"dev_1","time":"t","x":1,"y":0,"z":0,"lat":null,"lon":null,"ip":""}`, string(pub.payloads[0]))
}

func TestMQTTWriter_TopicKeepsDeviceIDInOneLevel(t *testing.T) {
	w := NewMQTTWriter(&fakePublisher{}, "telemetry", 0)

	cases := map[string]string{
		"+":       "telemetry/%2B/sensor-data",
		"#":       "telemetry/%23/sensor-data",
		"a/b":     "telemetry/a%2Fb/sensor-data",
		"100%":    "telemetry/100%25/sensor-data",
		"nul\x00": "telemetry/nul%00/sensor-data",
		"phone 1": "telemetry/phone 1/sensor-data",
		"dev_1":   "telemetry/dev_1/sensor-data",
	}
	for id, want := range cases {
		topic := w.Topic(id)
		assert.Equal(t, want, topic, "id %q", id)
		assert.Equal(t, 3, len(strings.Split(topic, "/")), "id %q", id)
		assert.NotContains(t, topic, "+")
		assert.NotContains(t, topic, "#")
	}
}
