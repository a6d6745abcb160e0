package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"telemetry-hub/internal/models"
	"telemetry-hub/internal/storage"

	rediscommon "telemetry-hub/common/redis"
)

// CSVWriter appends to the on-disk daily logs.
type CSVWriter struct {
	store *storage.LogStore
}

func NewCSVWriter(store *storage.LogStore) *CSVWriter {
	return &CSVWriter{store: store}
}

func (w *CSVWriter) Name() string { return "csv" }

func (w *CSVWriter) Write(_ context.Context, rec Record) error {
	return w.store.Append(rec.DeviceID, rec.Day, rec.Row)
}

// RedisStreamWriter mirrors samples into a Redis Stream for downstream
// consumers.
type RedisStreamWriter struct {
	client rediscommon.StreamAdder
	stream string
	maxLen int64
}

func NewRedisStreamWriter(client rediscommon.StreamAdder, stream string, maxLen int64) *RedisStreamWriter {
	return &RedisStreamWriter{client: client, stream: stream, maxLen: maxLen}
}

func (w *RedisStreamWriter) Name() string { return "redis" }

func (w *RedisStreamWriter) Write(ctx context.Context, rec Record) error {
	view := models.SampleView{DeviceID: rec.DeviceID, SampleRow: rec.Row}
	if _, err := rediscommon.PublishJSONToStream(ctx, w.client, w.stream, w.maxLen, view); err != nil {
		return fmt.Errorf("failed to publish to stream %s: %w", w.stream, err)
	}
	return nil
}

// Publisher is the subset of the MQTT client the mirror needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// topicEscaper keeps a device id inside one topic level. Wildcards and NUL
// are not allowed in PUBLISH topics; '%' is escaped so the mapping reverses.
var topicEscaper = strings.NewReplacer(
	"%", "%25",
	"/", "%2F",
	"+", "%2B",
	"#", "%23",
	"\x00", "%00",
)

// MQTTWriter republishes samples on <prefix>/<deviceId>/sensor-data.
type MQTTWriter struct {
	pub    Publisher
	prefix string
	qos    byte
}

func NewMQTTWriter(pub Publisher, prefix string, qos byte) *MQTTWriter {
	return &MQTTWriter{pub: pub, prefix: prefix, qos: qos}
}

func (w *MQTTWriter) Name() string { return "mqtt" }

// Topic returns the topic a device's samples are published on. The id is
// escaped into a single level.
func (w *MQTTWriter) Topic(deviceID string) string {
	return w.prefix + "/" + topicEscaper.Replace(deviceID) + "/" + models.EventSensorData
}

func (w *MQTTWriter) Write(_ context.Context, rec Record) error {
	payload, err := json.Marshal(models.SampleView{DeviceID: rec.DeviceID, SampleRow: rec.Row})
	if err != nil {
		return fmt.Errorf("failed to encode sample: %w", err)
	}
	return w.pub.Publish(w.Topic(rec.DeviceID), w.qos, false, payload)
}
