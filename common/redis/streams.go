package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// StreamAdder is the subset of the go-redis client used for publishing.
type StreamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// PublishToStream appends one entry to stream with XADD and returns its id.
// Scalars are stored in their string form and anything else as JSON. When
// maxLen is positive the stream is trimmed approximately to that length.
func PublishToStream(ctx context.Context, client StreamAdder, stream string, maxLen int64, values map[string]interface{}) (string, error) {
	fields := make(map[string]interface{}, len(values))
	for k, v := range values {
		s, err := fieldString(v)
		if err != nil {
			return "", fmt.Errorf("stream field %q: %w", k, err)
		}
		fields[k] = s
	}

	args := &redis.XAddArgs{Stream: stream, Values: fields}
	if maxLen > 0 {
		args.MaxLen = maxLen
		args.Approx = true
	}
	id, err := client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", stream, err)
	}
	return id, nil
}

// PublishJSONToStream stores data as JSON in a "data" field next to a unix
// "timestamp" field.
func PublishJSONToStream(ctx context.Context, client StreamAdder, stream string, maxLen int64, data interface{}) (string, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return PublishToStream(ctx, client, stream, maxLen, map[string]interface{}{
		"data":      body,
		"timestamp": time.Now().Unix(),
	})
}

func fieldString(v interface{}) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case []byte:
		return string(val), nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(val), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
