package statuscheck

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestSummary(t *testing.T) {
	ok := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("connection refused") })

	s := New(Options{Redis: ok, Storage: ok, StorageBackend: "local"}).Summary(context.Background())
	assert.True(t, s.Redis.OK)
	assert.Equal(t, "Connected (local)", s.Storage.Message)
	assert.True(t, s.PDF.OK)
	assert.True(t, s.Renderer.OK)
	assert.True(t, s.Healthy())

	s = New(Options{Redis: down}).Summary(context.Background())
	assert.False(t, s.Redis.OK)
	assert.Equal(t, "connection refused", s.Redis.Message)
	assert.Equal(t, disabled, s.Storage.Message)
	assert.False(t, s.Healthy())
}

func TestSummaryDisabledIsHealthy(t *testing.T) {
	s := New(Options{}).Summary(context.Background())
	assert.True(t, s.Healthy())
}

func TestTrimError(t *testing.T) {
	assert.Equal(t, "", trimError(nil))
	assert.Len(t, trimError(errors.New(strings.Repeat("x", 300))), 120)
	assert.Equal(t, "timeout", trimError(context.DeadlineExceeded))
}
