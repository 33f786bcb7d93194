package session

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContext_Defaults(t *testing.T) {
	ctx := NewContext()

	assert.False(t, ctx.Started())
	assert.Equal(t, "No session started", ctx.Get().SceneName)
	assert.Nil(t, ctx.LogAttrs())
}

func TestContext_Start(t *testing.T) {
	ctx := NewContext()
	local := time.Date(2024, 6, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))

	s := ctx.Start("oval", 812.5, local)

	_, err := uuid.Parse(s.ID)
	require.NoError(t, err)
	assert.Equal(t, time.UTC, s.StartedAt.Location())
	assert.True(t, s.StartedAt.Equal(local))
	assert.Equal(t, s, ctx.Get())
	assert.True(t, ctx.Started())

	attrs := ctx.LogAttrs()
	require.Len(t, attrs, 2)
	assert.Equal(t, "session", attrs[0].Key)
	assert.Equal(t, s.ID, attrs[0].Value.String())
	assert.Equal(t, "oval", attrs[1].Value.String())

	next := ctx.Start("oval", 812.5, local)
	assert.NotEqual(t, s.ID, next.ID)
}

func TestContext_ThreadSafe(t *testing.T) {
	ctx := NewContext()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			ctx.Start("oval", 1, time.Now())
		}()
		go func() {
			defer wg.Done()
			_ = ctx.LogAttrs()
		}()
	}
	wg.Wait()
	assert.True(t, ctx.Started())
}
