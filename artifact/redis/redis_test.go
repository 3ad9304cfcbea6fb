package redis

import (
	"context"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"

	"github.com/zuzya/try.idea-validator/artifact"
	"github.com/zuzya/try.idea-validator/core"
)

var _ core.ArtifactStore = (*Store)(nil)

func unreachable(t *testing.T) *goredis.Client {
	t.Helper()
	c := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { c.Close() })
	return c
}

func TestStore_Key(t *testing.T) {
	s := New(unreachable(t))
	assert.Equal(t, "artifacts:run-1", s.Key("run-1"))

	s = New(unreachable(t), func(o *Options) { o.Prefix = "validator" })
	assert.Equal(t, "validator:run-1", s.Key("run-1"))
}

func TestStore_RejectsInvalidNames(t *testing.T) {
	s := New(unreachable(t))
	err := s.Save(context.Background(), "run", "../escape.md", "x")
	assert.ErrorIs(t, err, artifact.ErrInvalidName)
}

func TestStore_SurfacesConnectionErrors(t *testing.T) {
	s := New(unreachable(t))
	ctx := context.Background()

	assert.Error(t, s.Save(ctx, "run", "idea_v1.md", "x"))
	_, err := s.List(ctx, "run")
	assert.Error(t, err)
}

func TestConnect_FailsFast(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, _, err := Connect(ctx, "127.0.0.1:1", "", 0)
	assert.Error(t, err)
}
