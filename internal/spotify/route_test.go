package spotify

import "testing"

func TestClassifyPath(t *testing.T) {
	cases := []struct {
		path string
		want RouteKind
	}{
		{"/recommendations/available-genre-seeds", RouteGenreSeeds},
		{"/recommendations", RouteRecommendations},
		{"/artists", RouteArtists},
		{"/artists/abc/related-artists", RouteArtistRelatedArtists},
		{"/albums", RouteAlbums},
		{"/browse/categories", RouteCategories},
		{"/browse/categories/pop/playlists", RouteCategoryPlaylists},
		{"/playlists/xyz", RoutePlaylist},
		{"/search", RouteSearch},
	}

	for _, tc := range cases {
		got, ok := ClassifyPath(tc.path)
		if !ok {
			t.Fatalf("ClassifyPath(%q): expected a match", tc.path)
		}
		if got != tc.want {
			t.Errorf("ClassifyPath(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}

func TestClassifyPathNoMatch(t *testing.T) {
	if _, ok := ClassifyPath("/me/top/artists"); ok {
		t.Fatalf("expected no match for an unrecognized path")
	}
}

func TestNewEndpointDefaultsNilParams(t *testing.T) {
	ep := NewEndpoint("/search", nil, RouteSearch)
	if ep.Params == nil {
		t.Fatalf("expected NewEndpoint to default nil params to an empty map")
	}
	if len(ep.Params) != 0 {
		t.Fatalf("expected empty params, got %v", ep.Params)
	}
}
