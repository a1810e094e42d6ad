package sched

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAddRejectsBadSpec(t *testing.T) {
	r := New(zap.NewNop(), context.Background())
	_, err := r.Add("not a cron spec", "bad", func(context.Context) {})
	require.Error(t, err)
}

func TestAddAcceptsSecondsSpec(t *testing.T) {
	r := New(zap.NewNop(), context.Background())
	id, err := r.Add("0 20 9 * * MON-FRI", "analysis", func(context.Context) {})
	require.NoError(t, err)
	assert.NotZero(t, id)
}

func TestJobRunsWithBaseContext(t *testing.T) {
	type ctxKey struct{}
	base := context.WithValue(context.Background(), ctxKey{}, "carried")
	r := New(zap.NewNop(), base)

	fired := make(chan context.Context, 1)
	_, err := r.Add("* * * * * *", "tick", func(ctx context.Context) {
		select {
		case fired <- ctx:
		default:
		}
	})
	require.NoError(t, err)

	r.Start()
	defer r.Stop()

	select {
	case ctx := <-fired:
		assert.Equal(t, "carried", ctx.Value(ctxKey{}))
	case <-time.After(3 * time.Second):
		t.Fatal("scheduled job did not fire")
	}
}
