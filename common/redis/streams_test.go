package redis

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
)

type captureAdder struct {
	args []*redis.XAddArgs
}

func (c *captureAdder) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	c.args = append(c.args, a)
	return redis.NewStringResult("1-0", nil)
}

func TestPublishToStream_FlattensValues(t *testing.T) {
	c := &captureAdder{}
	id, err := PublishToStream(context.Background(), c, "s", 0, map[string]interface{}{
		"str":   "a",
		"int":   7,
		"float": 1.5,
		"bool":  true,
		"obj":   map[string]int{"k": 1},
	})
	require.NoError(t, err)
	require.Equal(t, "1-0", id)
	require.Len(t, c.args, 1)

	vals := c.args[0].Values.(map[string]interface{})
	require.Equal(t, "a", vals["str"])
	require.Equal(t, "7", vals["int"])
	require.Equal(t, "1.5", vals["float"])
	require.Equal(t, "true", vals["bool"])
	require.Equal(t, `{"k":1}`, vals["obj"])
	require.Zero(t, c.args[0].MaxLen)
}

func TestPublishJSONToStream_CapsLength(t *testing.T) {
	c := &captureAdder{}
	_, err := PublishJSONToStream(context.Background(), c, "telemetry", 500, map[string]string{"deviceId": "dev_1"})
	require.NoError(t, err)

	args := c.args[0]
	require.Equal(t, "telemetry", args.Stream)
	require.EqualValues(t, 500, args.MaxLen)
	require.True(t, args.Approx)

	vals := args.Values.(map[string]interface{})
	var decoded map[string]string
	require.NoError(t, json.Unmarshal([]byte(vals["data"].(string)), &decoded))
	require.Equal(t, "dev_1", decoded["deviceId"])
	require.NotEmpty(t, vals["timestamp"])
}
