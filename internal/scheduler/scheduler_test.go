package scheduler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kirbs-btw/spotify-artist-harvester/internal/spotify"
)

// TestFlushPriorityOrder is spec §8 P5: after set_priority({A:2, B:1}) and
// put(A, x), put(B, y), put(A, z), flush(2) returns [x, z]; a subsequent
// flush(1) returns [y].
func TestFlushPriorityOrder(t *testing.T) {
	p := New()

	x := spotify.NewEndpoint("/x", nil, spotify.RouteArtists)
	y := spotify.NewEndpoint("/y", nil, spotify.RouteAlbums)
	z := spotify.NewEndpoint("/z", nil, spotify.RouteArtists)

	p.SetPriority(map[spotify.RouteKind]float64{
		spotify.RouteArtists: 2,
		spotify.RouteAlbums:  1,
	})

	p.Put(spotify.RouteArtists, x)
	p.Put(spotify.RouteAlbums, y)
	p.Put(spotify.RouteArtists, z)

	got := p.Flush(2)
	require.Equal(t, []spotify.Endpoint{x, z}, got)

	got2 := p.Flush(1)
	require.Equal(t, []spotify.Endpoint{y}, got2)

	require.True(t, p.Empty())
}

func TestFlushRespectsBudgetAcrossRoutes(t *testing.T) {
	p := New()
	a := spotify.NewEndpoint("/a1", nil, spotify.RouteArtists)
	b := spotify.NewEndpoint("/a2", nil, spotify.RouteArtists)
	c := spotify.NewEndpoint("/b1", nil, spotify.RouteAlbums)

	p.Put(spotify.RouteArtists, a)
	p.Put(spotify.RouteArtists, b)
	p.Put(spotify.RouteAlbums, c)

	got := p.Flush(2)
	require.Len(t, got, 2)
	require.Equal(t, a, got[0])
	require.Equal(t, b, got[1])

	remaining := p.Flush(10)
	require.Equal(t, []spotify.Endpoint{c}, remaining)
}

func TestPutMakesStagingNonEmpty(t *testing.T) {
	p := New()
	ep := spotify.NewEndpoint("/ok", nil, spotify.RouteArtists)
	p.Put(spotify.RouteArtists, ep)
	require.False(t, p.Empty())
}
