package media

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMediaSource_BecomesReady(t *testing.T) {
	p := newFakePlatform(2 * time.Second)
	p.video.loadDelay = 20 * time.Millisecond

	src, err := Attach(context.Background(), p, KindVideo, FileOrigin("clip.mp4", "video/mp4"))
	require.NoError(t, err)
	assert.Equal(t, Loading, src.Readiness())
	assert.Equal(t, time.Duration(0), src.Duration())

	require.NoError(t, src.AwaitReady(context.Background(), time.Second))
	assert.Equal(t, Ready, src.Readiness())
	assert.Equal(t, 2*time.Second, src.Duration())

	require.NoError(t, src.Release())
	assert.True(t, p.Renderers()[0].closed.Load())
	require.NoError(t, src.Release())
}

func TestMediaSource_LoadTimeout(t *testing.T) {
	p := newFakePlatform(time.Second)
	p.audio.loadDelay = time.Second

	src, err := Attach(context.Background(), p, KindAudio, InlineOrigin([]byte{1}, "audio/wav"))
	require.NoError(t, err)

	start := time.Now()
	err = src.AwaitReady(context.Background(), 50*time.Millisecond)
	assert.True(t, errors.Is(err, ErrLoadTimeout))
	assert.Less(t, time.Since(start), 200*time.Millisecond)
	assert.Equal(t, Failed, src.Readiness())

	// a late load completion must not flip the state back
	err = src.AwaitReady(context.Background(), time.Second)
	assert.True(t, errors.Is(err, ErrLoadTimeout))
	require.NoError(t, src.Release())
}

func TestMediaSource_LoadError(t *testing.T) {
	p := newFakePlatform(time.Second)
	p.video.loadErr = errors.New("moov atom not found")

	src, err := Attach(context.Background(), p, KindVideo, FileOrigin("broken.mp4", "video/mp4"))
	require.NoError(t, err)

	err = src.AwaitReady(context.Background(), time.Second)
	assert.True(t, errors.Is(err, ErrLoad))
	assert.False(t, errors.Is(err, ErrLoadTimeout))
	assert.Equal(t, Failed, src.Readiness())
	assert.Equal(t, err, src.Err())
}

func TestMediaSource_ContextCancelled(t *testing.T) {
	p := newFakePlatform(time.Second)
	p.video.loadDelay = time.Second

	src, err := Attach(context.Background(), p, KindVideo, FileOrigin("clip.mp4", "video/mp4"))
	require.NoError(t, err)
	defer src.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = src.AwaitReady(ctx, time.Second)
	assert.True(t, errors.Is(err, ErrLoad))
	assert.Equal(t, CodeLoad, CodeOf(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMediaSource_ReleaseWhileLoading(t *testing.T) {
	p := newFakePlatform(time.Second)
	p.video.loadDelay = time.Second

	src, err := Attach(context.Background(), p, KindVideo, FileOrigin("clip.mp4", "video/mp4"))
	require.NoError(t, err)
	require.NoError(t, src.Release())

	err = src.AwaitReady(context.Background(), time.Second)
	assert.True(t, errors.Is(err, ErrLoad))
}
