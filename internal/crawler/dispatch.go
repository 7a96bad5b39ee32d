package crawler

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/kirbs-btw/spotify-artist-harvester/internal/batch"
	"github.com/kirbs-btw/spotify-artist-harvester/internal/cache"
	"github.com/kirbs-btw/spotify-artist-harvester/internal/queue"
	"github.com/kirbs-btw/spotify-artist-harvester/internal/scheduler"
	"github.com/kirbs-btw/spotify-artist-harvester/internal/spotify"
	"github.com/kirbs-btw/spotify-artist-harvester/internal/writer"
)

// dispatchResult is the (added, batched) pair spec §4.8 charges to route
// metrics.
type dispatchResult struct {
	Added   int
	Batched int
}

// Dispatcher implements the response-dispatch switch of spec §4.8: it turns
// a decoded payload into newly discovered endpoints, pushed to staging or
// primary, and artist rows written to durable storage.
type Dispatcher struct {
	fabric     *queue.Fabric
	staging    *scheduler.Prioritizer
	cache      *cache.Cache
	coalescer  *batch.Coalescer
	writer     *writer.Writer
	log        *zap.Logger
	quota      int
	total      *int64 // atomic; number of artists written so far
}

func newDispatcher(fabric *queue.Fabric, staging *scheduler.Prioritizer, c *cache.Cache, co *batch.Coalescer, w *writer.Writer, log *zap.Logger, quota int, total *int64) *Dispatcher {
	return &Dispatcher{
		fabric:    fabric,
		staging:   staging,
		cache:     c,
		coalescer: co,
		writer:    w,
		log:       log,
		quota:     quota,
		total:     total,
	}
}

func (d *Dispatcher) quotaReached() bool {
	return int(atomic.LoadInt64(d.total)) >= d.quota
}

// Dispatch routes resp to the handler matching its route kind.
func (d *Dispatcher) Dispatch(ctx context.Context, resp spotify.Response) (dispatchResult, error) {
	switch resp.Endpoint.RouteKind {
	case spotify.RouteGenreSeeds:
		return d.dispatchGenreSeeds(ctx, resp)
	case spotify.RouteArtists:
		return d.dispatchArtists(ctx, resp)
	case spotify.RouteRecommendations:
		return d.dispatchRecommendations(ctx, resp)
	case spotify.RouteAlbums:
		return d.dispatchAlbums(ctx, resp)
	case spotify.RouteCategories:
		return d.dispatchCategories(ctx, resp)
	case spotify.RouteCategoryPlaylists:
		return d.dispatchCategoryPlaylists(ctx, resp)
	case spotify.RoutePlaylist:
		return d.dispatchPlaylist(ctx, resp)
	case spotify.RouteArtistRelatedArtists:
		return d.dispatchArtists(ctx, resp)
	case spotify.RouteSearch:
		return d.dispatchSearch(ctx, resp)
	default:
		return dispatchResult{}, fmt.Errorf("unhandled route kind %q", resp.Endpoint.RouteKind)
	}
}

// dispatchGenreSeeds handles /recommendations/available-genre-seeds: for
// each genre not already in cache, enqueue a /recommendations and a /search
// call, then mark the genre WRITTEN to prevent re-expansion (spec §4.8).
func (d *Dispatcher) dispatchGenreSeeds(ctx context.Context, resp spotify.Response) (dispatchResult, error) {
	genres, _ := getStringSlice(resp.Data, "genres")
	added := 0
	for _, g := range genres {
		if ok, err := d.expandGenre(ctx, g, ""); err != nil {
			return dispatchResult{}, err
		} else if ok {
			added++
		}
	}
	return dispatchResult{Added: added}, nil
}

// expandGenre is the genre-expansion step shared by genre_seeds and the
// artist pipeline's "expand the artist's genres" bullet. seedArtistID, if
// non-empty, is attached to the /recommendations call as seed_artists.
func (d *Dispatcher) expandGenre(ctx context.Context, genre string, seedArtistID string) (bool, error) {
	written, err := d.cache.Get(ctx, genre)
	if err != nil {
		return false, err
	}
	if written == cache.StateWritten {
		return false, nil
	}

	recParams := map[string]string{"seed_genres": genre}
	if seedArtistID != "" {
		recParams["seed_artists"] = seedArtistID
	}
	d.staging.Put(spotify.RouteRecommendations, spotify.NewEndpoint("/recommendations", recParams, spotify.RouteRecommendations))

	searchParams := map[string]string{
		"q":     "genre:" + genre,
		"type":  "artist",
		"limit": "50",
	}
	d.staging.Put(spotify.RouteSearch, spotify.NewEndpoint("/search", searchParams, spotify.RouteSearch))

	if err := d.cache.Set(ctx, genre, cache.StateWritten); err != nil {
		return false, err
	}
	return true, nil
}

// dispatchArtists handles both the batched /artists?ids=... detail fetch and
// the /artists/{id}/related-artists response (spec §4.8: both kinds feed the
// artist pipeline).
func (d *Dispatcher) dispatchArtists(ctx context.Context, resp spotify.Response) (dispatchResult, error) {
	refs := parseArtistRefs(resp.Data["artists"])
	return d.feedArtists(ctx, refs)
}

// dispatchRecommendations feeds discovered artists (and, per spec, albums)
// from each recommended track through their respective pipelines.
func (d *Dispatcher) dispatchRecommendations(ctx context.Context, resp spotify.Response) (dispatchResult, error) {
	var total dispatchResult
	var albumIDs []string

	for _, t := range asArray(resp.Data["tracks"]) {
		track := asObject(t)
		if track == nil {
			continue
		}
		refs := parseArtistRefs(track["artists"])
		r, err := d.feedArtists(ctx, refs)
		if err != nil {
			return dispatchResult{}, err
		}
		total.Added += r.Added
		total.Batched += r.Batched

		if album := asObject(track["album"]); album != nil {
			if id, ok := getString(album, "id"); ok && id != "" {
				albumIDs = append(albumIDs, id)
			}
		}
	}

	for _, id := range albumIDs {
		if err := d.maybeEnqueueWritten(ctx, id, "/albums", map[string]string{"ids": id}, spotify.RouteAlbums); err != nil {
			return dispatchResult{}, err
		}
	}
	return total, nil
}

// dispatchAlbums marks album ids written, then feeds their embedded artist
// references through the artist pipeline.
func (d *Dispatcher) dispatchAlbums(ctx context.Context, resp spotify.Response) (dispatchResult, error) {
	var total dispatchResult
	for _, a := range asArray(resp.Data["albums"]) {
		album := asObject(a)
		if album == nil {
			continue
		}
		if id, ok := getString(album, "id"); ok && id != "" {
			if err := d.cache.Set(ctx, id, cache.StateWritten); err != nil {
				return dispatchResult{}, err
			}
		}
		refs := parseArtistRefs(album["artists"])
		r, err := d.feedArtists(ctx, refs)
		if err != nil {
			return dispatchResult{}, err
		}
		total.Added += r.Added
		total.Batched += r.Batched
	}
	return total, nil
}

// dispatchCategories paginates /browse/categories and, for each category id
// not already enqueued, pushes the category's /playlists discovery endpoint.
func (d *Dispatcher) dispatchCategories(ctx context.Context, resp spotify.Response) (dispatchResult, error) {
	categories := asObject(resp.Data["categories"])
	if categories == nil {
		return dispatchResult{}, nil
	}

	added := 0
	for _, item := range asArray(categories["items"]) {
		c := asObject(item)
		if c == nil {
			continue
		}
		id, ok := getString(c, "id")
		if !ok || id == "" {
			continue
		}
		path := fmt.Sprintf("/browse/categories/%s/playlists", id)
		if err := d.maybeEnqueueWritten(ctx, id, path, nil, spotify.RouteCategoryPlaylists); err != nil {
			return dispatchResult{}, err
		}
		added++
	}

	if next, ok := nextURL(categories); ok && next != "" {
		if path, ok := pathAfterVersion(next); ok {
			d.staging.Put(spotify.RouteCategories, spotify.NewEndpoint(path, nil, spotify.RouteCategories))
		}
	}
	return dispatchResult{Added: added}, nil
}

// dispatchCategoryPlaylists paginates the playlists page (spec §9 open
// question (c): pagination follows playlists['next'], not
// categories['next'] — the logical intent, since it's the playlists page
// being iterated here) and, for each playlist id, enqueues its tracks
// discovery endpoint.
func (d *Dispatcher) dispatchCategoryPlaylists(ctx context.Context, resp spotify.Response) (dispatchResult, error) {
	playlists := asObject(resp.Data["playlists"])
	if playlists == nil {
		return dispatchResult{}, nil
	}

	added := 0
	for _, item := range asArray(playlists["items"]) {
		p := asObject(item)
		if p == nil {
			continue
		}
		id, ok := getString(p, "id")
		if !ok || id == "" {
			continue
		}
		path := fmt.Sprintf("/playlists/%s/tracks", id)
		if err := d.maybeEnqueueWritten(ctx, id, path, nil, spotify.RoutePlaylist); err != nil {
			return dispatchResult{}, err
		}
		added++
	}

	if next, ok := nextURL(playlists); ok && next != "" {
		if path, ok := pathAfterVersion(next); ok {
			d.staging.Put(spotify.RouteCategoryPlaylists, spotify.NewEndpoint(path, nil, spotify.RouteCategoryPlaylists))
		}
	}
	return dispatchResult{Added: added}, nil
}

// dispatchPlaylist handles a page of playlist tracks: restrict to items
// whose track.type == "track", feed their artists and albums through the
// pipeline, paginate.
func (d *Dispatcher) dispatchPlaylist(ctx context.Context, resp spotify.Response) (dispatchResult, error) {
	var total dispatchResult
	var albumIDs []string

	for _, item := range asArray(resp.Data["items"]) {
		wrapper := asObject(item)
		if wrapper == nil {
			continue
		}
		track := asObject(wrapper["track"])
		if track == nil {
			continue
		}
		if t, ok := getString(track, "type"); !ok || t != "track" {
			continue
		}

		refs := parseArtistRefs(track["artists"])
		r, err := d.feedArtists(ctx, refs)
		if err != nil {
			return dispatchResult{}, err
		}
		total.Added += r.Added
		total.Batched += r.Batched

		if album := asObject(track["album"]); album != nil {
			if id, ok := getString(album, "id"); ok && id != "" {
				albumIDs = append(albumIDs, id)
			}
		}
	}

	for _, id := range albumIDs {
		if err := d.maybeEnqueueWritten(ctx, id, "/albums", map[string]string{"ids": id}, spotify.RouteAlbums); err != nil {
			return dispatchResult{}, err
		}
	}

	if next, ok := nextURL(resp.Data); ok && next != "" {
		if path, ok := pathAfterVersion(next); ok {
			d.staging.Put(spotify.RoutePlaylist, spotify.NewEndpoint(path, nil, spotify.RoutePlaylist))
		}
	}
	return total, nil
}

// dispatchSearch feeds the items' artists through the pipeline, paginates.
func (d *Dispatcher) dispatchSearch(ctx context.Context, resp spotify.Response) (dispatchResult, error) {
	artistsPage := asObject(resp.Data["artists"])
	if artistsPage == nil {
		return dispatchResult{}, nil
	}

	refs := parseArtistRefs(artistsPage["items"])
	total, err := d.feedArtists(ctx, refs)
	if err != nil {
		return dispatchResult{}, err
	}

	if next, ok := nextURL(artistsPage); ok && next != "" {
		if path, ok := pathAfterVersion(next); ok {
			d.staging.Put(spotify.RouteSearch, spotify.NewEndpoint(path, nil, spotify.RouteSearch))
		}
	}
	return total, nil
}

// maybeEnqueueWritten enqueues a next-level discovery endpoint for id onto
// staging, unless id is already marked WRITTEN (spec: "suppress re-enqueues
// via cache"). Marks id WRITTEN once enqueued — WRITTEN here means only
// "enqueued at least once", per spec §3's non-artist sentinel meaning.
func (d *Dispatcher) maybeEnqueueWritten(ctx context.Context, id, path string, params map[string]string, kind spotify.RouteKind) error {
	state, err := d.cache.Get(ctx, id)
	if err != nil {
		return err
	}
	if state == cache.StateWritten {
		return nil
	}
	d.staging.Put(kind, spotify.NewEndpoint(path, params, kind))
	return d.cache.Set(ctx, id, cache.StateWritten)
}

// feedArtists runs the artist pipeline (spec §4.8) over refs, stopping early
// once quota is reached. The tie-break rule ("the write is performed first so
// total stops further work promptly") falls out naturally: each ref is fully
// resolved — written-or-batched — before the next is considered.
func (d *Dispatcher) feedArtists(ctx context.Context, refs []artistRef) (dispatchResult, error) {
	var result dispatchResult
	for _, ref := range refs {
		if d.quotaReached() {
			break
		}

		state, err := d.cache.Get(ctx, ref.ID)
		if err != nil {
			return dispatchResult{}, err
		}
		if state == cache.StateWritten {
			continue
		}

		if ref.hasDetail {
			if err := d.writer.Add(writer.Record{
				ID:         ref.ID,
				Name:       ref.Name,
				Popularity: ref.Popularity,
				Genres:     ref.Genres,
			}); err != nil {
				return dispatchResult{}, err
			}
			if err := d.cache.Set(ctx, ref.ID, cache.StateWritten); err != nil {
				return dispatchResult{}, err
			}
			newTotal := atomic.AddInt64(d.total, 1)
			result.Added++

			if int(newTotal) >= d.quota {
				break
			}

			d.staging.Put(spotify.RouteArtistRelatedArtists, spotify.NewEndpoint(
				fmt.Sprintf("/artists/%s/related-artists", ref.ID), nil, spotify.RouteArtistRelatedArtists))

			for _, g := range ref.Genres {
				if _, err := d.expandGenre(ctx, g, ref.ID); err != nil {
					return dispatchResult{}, err
				}
			}
			continue
		}

		if state == cache.StateBatched {
			continue
		}

		if err := d.cache.Set(ctx, ref.ID, cache.StateBatched); err != nil {
			return dispatchResult{}, err
		}
		d.coalescer.Add(ref.ID)
		result.Batched++

		if d.coalescer.IsFull() {
			ids := d.coalescer.Build()
			if ids != "" {
				d.fabric.PushPrimary(spotify.NewEndpoint("/artists", map[string]string{"ids": ids}, spotify.RouteArtists))
			}
		}
	}
	return result, nil
}

// pathAfterVersion extracts the path relative to the API version token: it
// locates the substring "v1" in a full next URL and returns everything after
// it (spec §4.8 "Pagination").
func pathAfterVersion(next string) (string, bool) {
	idx := strings.Index(next, "v1")
	if idx < 0 {
		return "", false
	}
	rest := next[idx+len("v1"):]
	if rest == "" {
		return "", false
	}
	return rest, true
}
