package queue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kirbs-btw/spotify-artist-harvester/internal/spotify"
)

func TestPrecedencePrimaryBeforeSecondary(t *testing.T) {
	f := New()
	primary := spotify.NewEndpoint("/primary", nil, spotify.RouteArtists)
	secondary := spotify.NewEndpoint("/secondary", nil, spotify.RouteArtists)

	f.PushSecondary(secondary)
	f.PushPrimary(primary)

	ep, ok := f.Pop()
	require.True(t, ok)
	require.Equal(t, primary, ep)
	f.Done()

	ep, ok = f.Pop()
	require.True(t, ok)
	require.Equal(t, secondary, ep)
	f.Done()
}

func TestIdleTracksInFlight(t *testing.T) {
	f := New()
	require.True(t, f.Idle())

	f.PushPrimary(spotify.NewEndpoint("/x", nil, spotify.RouteArtists))
	require.False(t, f.Idle())

	ep, ok := f.Pop()
	require.True(t, ok)
	require.False(t, f.Idle(), "popped-but-not-done work must still count as in flight")

	f.Done()
	require.True(t, f.Idle())
	_ = ep
}

// TestPopBlocksUntilWorkOrClose exercises the liveness guarantee: a worker
// waiting on an empty queue must wake up either when work arrives or when
// the fabric is closed, never deadlock.
func TestPopBlocksUntilWorkOrClose(t *testing.T) {
	f := New()

	var wg sync.WaitGroup
	wg.Add(1)
	var gotOK bool
	go func() {
		defer wg.Done()
		_, gotOK = f.Pop()
	}()

	time.Sleep(20 * time.Millisecond) // let the goroutine block on Pop
	f.Close()

	wg.Wait()
	require.False(t, gotOK)
}

func TestPopWakesOnNewWork(t *testing.T) {
	f := New()
	ep := spotify.NewEndpoint("/late", nil, spotify.RouteArtists)

	var wg sync.WaitGroup
	wg.Add(1)
	var got spotify.Endpoint
	var gotOK bool
	go func() {
		defer wg.Done()
		got, gotOK = f.Pop()
	}()

	time.Sleep(20 * time.Millisecond)
	f.PushPrimary(ep)
	wg.Wait()

	require.True(t, gotOK)
	require.Equal(t, ep, got)
}
