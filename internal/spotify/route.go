// Package spotify holds the wire-level model of the crawl target: route
// kinds, endpoints, and the HTTP client adapter that turns a request into a
// typed outcome.
package spotify

import "strings"

// RouteKind is one of the nine closed categories of endpoint the crawler
// understands. Each kind owns a unique path prefix and response handler.
type RouteKind string

const (
	RouteGenreSeeds           RouteKind = "genre_seeds"
	RouteArtists              RouteKind = "artists"
	RouteRecommendations      RouteKind = "recommendations"
	RouteAlbums               RouteKind = "albums"
	RouteCategories           RouteKind = "categories"
	RouteCategoryPlaylists    RouteKind = "category_playlists"
	RoutePlaylist             RouteKind = "playlist"
	RouteArtistRelatedArtists RouteKind = "artist_related_artists"
	RouteSearch               RouteKind = "search"
)

// AllRouteKinds lists the nine kinds in a stable, deterministic order. Used
// to seed the scheduler's per-route staging queues and its initial priority.
var AllRouteKinds = []RouteKind{
	RouteGenreSeeds,
	RouteArtists,
	RouteRecommendations,
	RouteAlbums,
	RouteCategories,
	RouteCategoryPlaylists,
	RoutePlaylist,
	RouteArtistRelatedArtists,
	RouteSearch,
}

// routePrefixes maps the base path prefix of each top-level route kind to
// that kind. ClassifyPath does not read this table; it does its own
// matching, checking longer, more specific prefixes before shorter ones.
var routePrefixes = []struct {
	prefix string
	kind   RouteKind
}{
	{"/recommendations/available-genre-seeds", RouteGenreSeeds},
	{"/recommendations", RouteRecommendations},
	{"/artists", RouteArtists},
	{"/albums", RouteAlbums},
	{"/browse/categories", RouteCategories},
	{"/playlists", RoutePlaylist},
	{"/search", RouteSearch},
}

// ClassifyPath returns the route kind whose prefix matches path, and true if
// a match was found. category_playlists and artist_related_artists are
// distinguished from their parent prefixes by suffix, since both nest under
// /browse/categories and /artists respectively.
func ClassifyPath(path string) (RouteKind, bool) {
	switch {
	case strings.HasPrefix(path, "/recommendations/available-genre-seeds"):
		return RouteGenreSeeds, true
	case strings.HasPrefix(path, "/browse/categories") && strings.Contains(path, "/playlists"):
		return RouteCategoryPlaylists, true
	case strings.HasPrefix(path, "/browse/categories"):
		return RouteCategories, true
	case strings.HasPrefix(path, "/artists") && strings.HasSuffix(path, "/related-artists"):
		return RouteArtistRelatedArtists, true
	case strings.HasPrefix(path, "/artists"):
		return RouteArtists, true
	case strings.HasPrefix(path, "/recommendations"):
		return RouteRecommendations, true
	case strings.HasPrefix(path, "/albums"):
		return RouteAlbums, true
	case strings.HasPrefix(path, "/playlists"):
		return RoutePlaylist, true
	case strings.HasPrefix(path, "/search"):
		return RouteSearch, true
	default:
		return "", false
	}
}

// Endpoint is the unit of work: a prospective HTTP call. Endpoints are
// immutable once created and carry no retry count of their own — retries are
// identity-preserving reinjections of the same value (spec §4.2).
type Endpoint struct {
	Path      string
	Params    map[string]string
	RouteKind RouteKind
}

// NewEndpoint builds an Endpoint, defaulting a nil params map to empty so
// callers never have to nil-check it downstream.
func NewEndpoint(path string, params map[string]string, kind RouteKind) Endpoint {
	if params == nil {
		params = map[string]string{}
	}
	return Endpoint{Path: path, Params: params, RouteKind: kind}
}
