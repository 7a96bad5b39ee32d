package crawler

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kirbs-btw/spotify-artist-harvester/internal/cache"
	"github.com/kirbs-btw/spotify-artist-harvester/internal/spotify"
	"github.com/kirbs-btw/spotify-artist-harvester/internal/writer"
)

// fakeGraphClient scripts a tiny, closed discovery graph: one genre seed
// fans out to a /recommendations call (artist A1 + album al1), a /search
// call (artist A2), and al1's /albums fetch yields artist A3. Every
// related-artists follow-up returns nothing further, closing the graph at
// exactly three artists.
type fakeGraphClient struct {
	refreshes int64
}

func (f *fakeGraphClient) RefreshToken(ctx context.Context) error {
	atomic.AddInt64(&f.refreshes, 1)
	return nil
}

func artistObj(id string) map[string]any {
	return map[string]any{"id": id, "name": id, "popularity": float64(1), "genres": []any{}}
}

func (f *fakeGraphClient) Fetch(ctx context.Context, ep spotify.Endpoint) spotify.FetchResult {
	var data map[string]any

	switch ep.RouteKind {
	case spotify.RouteGenreSeeds:
		data = map[string]any{"genres": []any{"rock"}}
	case spotify.RouteRecommendations:
		data = map[string]any{
			"tracks": []any{
				map[string]any{
					"artists": []any{artistObj("A1")},
					"album":   map[string]any{"id": "al1"},
				},
			},
		}
	case spotify.RouteSearch:
		data = map[string]any{
			"artists": map[string]any{
				"items": []any{artistObj("A2")},
			},
		}
	case spotify.RouteAlbums:
		data = map[string]any{
			"albums": []any{
				map[string]any{"id": "al1", "artists": []any{artistObj("A3")}},
			},
		}
	case spotify.RouteArtistRelatedArtists:
		data = map[string]any{"artists": []any{}}
	default:
		data = map[string]any{}
	}

	return spotify.FetchResult{
		Outcome: spotify.OutcomeSuccess,
		Response: &spotify.Response{
			Endpoint: ep,
			Status:   200,
			Data:     data,
		},
	}
}

// TestOrchestratorTerminatesAtGraphExhaustion is spec §8 P7.
func TestOrchestratorTerminatesAtGraphExhaustion(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	cacheCl, err := cache.New(ctx, cache.Config{Addr: mr.Addr(), DB: 0}, false)
	require.NoError(t, err)
	defer cacheCl.Close()

	w, err := writer.New(filepath.Join(t.TempDir(), "artists.csv"), false)
	require.NoError(t, err)
	defer w.Close()

	client := &fakeGraphClient{}
	orch := New(Config{
		MaxNumArtists: 5, // quota > the 3 discoverable artists
		NumWorkers:    4,
		RateLimitCap:  5,
		BackoffCap:    time.Second,
	}, zap.NewNop(), client, cacheCl, w)

	runCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	seeds := []spotify.Endpoint{
		spotify.NewEndpoint("/recommendations/available-genre-seeds", nil, spotify.RouteGenreSeeds),
	}

	err = orch.Run(runCtx, seeds)
	require.NoError(t, err)

	require.Equal(t, int64(3), atomic.LoadInt64(&orch.total))
	require.True(t, orch.fabric.Idle())
	require.True(t, orch.staging.Empty())
	require.GreaterOrEqual(t, atomic.LoadInt64(&client.refreshes), int64(1))
}

// TestOrchestratorStopsAtQuota confirms the orchestrator also terminates
// when the quota is reached before the graph is exhausted, without waiting
// for the graph to close.
func TestOrchestratorStopsAtQuota(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	cacheCl, err := cache.New(ctx, cache.Config{Addr: mr.Addr(), DB: 0}, false)
	require.NoError(t, err)
	defer cacheCl.Close()

	w, err := writer.New(filepath.Join(t.TempDir(), "artists.csv"), false)
	require.NoError(t, err)
	defer w.Close()

	client := &fakeGraphClient{}
	orch := New(Config{
		MaxNumArtists: 2, // below the 3 discoverable artists
		NumWorkers:    4,
		RateLimitCap:  5,
		BackoffCap:    time.Second,
	}, zap.NewNop(), client, cacheCl, w)

	runCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	seeds := []spotify.Endpoint{
		spotify.NewEndpoint("/recommendations/available-genre-seeds", nil, spotify.RouteGenreSeeds),
	}

	err = orch.Run(runCtx, seeds)
	require.NoError(t, err)
	require.LessOrEqual(t, atomic.LoadInt64(&orch.total), int64(2))
}

// blockingClient never resolves a fetch on its own; it holds the calling
// worker until either release is closed or ctx is cancelled. Used to keep
// one worker permanently in-flight (so Idle() never holds) while the rest
// of the pool sits parked in Pop() with nothing queued.
type blockingClient struct {
	release chan struct{}
}

func (b *blockingClient) RefreshToken(ctx context.Context) error { return nil }

func (b *blockingClient) Fetch(ctx context.Context, ep spotify.Endpoint) spotify.FetchResult {
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return spotify.FetchResult{
		Outcome:  spotify.OutcomeSuccess,
		Response: &spotify.Response{Endpoint: ep, Status: 200, Data: map[string]any{}},
	}
}

// TestOrchestratorClosesFabricOnContextCancelWhileIdle guards against the
// fabric deadlocking: Fabric.Pop only wakes on a push or Close() (never on
// ctx alone), so cancelling the run context while idle workers are parked in
// Pop must still make supervisorLoop close the fabric, or those workers —
// and Run itself — would hang forever.
func TestOrchestratorClosesFabricOnContextCancelWhileIdle(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	cacheCl, err := cache.New(ctx, cache.Config{Addr: mr.Addr(), DB: 0}, false)
	require.NoError(t, err)
	defer cacheCl.Close()

	w, err := writer.New(filepath.Join(t.TempDir(), "artists.csv"), false)
	require.NoError(t, err)
	defer w.Close()

	client := &blockingClient{release: make(chan struct{})}
	orch := New(Config{
		MaxNumArtists: 1000,
		NumWorkers:    3,
		RateLimitCap:  5,
		BackoffCap:    time.Second,
	}, zap.NewNop(), client, cacheCl, w)

	runCtx, cancel := context.WithCancel(ctx)

	seeds := []spotify.Endpoint{
		spotify.NewEndpoint("/search", nil, spotify.RouteSearch),
	}

	done := make(chan error, 1)
	go func() { done <- orch.Run(runCtx, seeds) }()

	// Let the pool settle: one worker stuck in Fetch (in-flight, so Idle()
	// never holds), the rest parked in Pop() with the queues empty.
	time.Sleep(150 * time.Millisecond)

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		close(client.release)
		t.Fatal("Run did not return after context cancellation while workers were idle in Pop()")
	}
}
