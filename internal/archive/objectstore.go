// Package archive uploads device-day logs to an object store and keeps a
// ledger of what was uploaded.
package archive

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// ErrObjectNotFound is returned by Stat for a key the store does not hold.
var ErrObjectNotFound = errors.New("object not found")

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key  string
	Size int64
	ETag string
}

// ObjectStore is the subset of a bucket API the uploader needs.
type ObjectStore interface {
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	Put(ctx context.Context, key string, body []byte) error
}

// HTTPObjectStore talks to a bucket exposed over plain HTTP: HEAD to stat,
// PUT to write. Keys map directly onto URL paths under the endpoint.
type HTTPObjectStore struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewHTTPObjectStore creates a client for endpoint. An empty token disables
// the Authorization header.
func NewHTTPObjectStore(endpoint, token string, logger *zap.Logger) *HTTPObjectStore {
	client := resty.New().
		SetBaseURL(strings.TrimRight(endpoint, "/")).
		SetTimeout(30 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})
	if token != "" {
		client.SetAuthToken(token)
	}

	return &HTTPObjectStore{
		httpClient: client,
		logger:     logger,
	}
}

// Stat returns metadata for key, or ErrObjectNotFound.
func (s *HTTPObjectStore) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	resp, err := s.httpClient.R().
		SetContext(ctx).
		Head(objectPath(key))
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("failed to stat object %s: %w", key, err)
	}

	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return ObjectInfo{}, ErrObjectNotFound
	case resp.IsError():
		return ObjectInfo{}, fmt.Errorf("stat object %s: unexpected status %d", key, resp.StatusCode())
	}

	info := ObjectInfo{
		Key:  key,
		ETag: strings.Trim(resp.Header().Get("ETag"), `"`),
	}
	if resp.RawResponse != nil {
		info.Size = resp.RawResponse.ContentLength
	}
	return info, nil
}

// Put writes body under key, replacing any existing object.
func (s *HTTPObjectStore) Put(ctx context.Context, key string, body []byte) error {
	resp, err := s.httpClient.R().
		SetContext(ctx).
		SetHeader("Content-Type", "text/csv").
		SetBody(body).
		Put(objectPath(key))
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", key, err)
	}
	if resp.IsError() {
		s.logger.Error("Object store rejected upload",
			zap.String("key", key),
			zap.Int("status_code", resp.StatusCode()),
		)
		return fmt.Errorf("put object %s: unexpected status %d", key, resp.StatusCode())
	}
	return nil
}

// objectPath escapes each key segment, so keys holding '%' reach the bucket
// verbatim.
func objectPath(key string) string {
	segments := strings.Split(strings.TrimLeft(key, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return "/" + strings.Join(segments, "/")
}
