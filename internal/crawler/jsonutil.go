package crawler

// Small accessor helpers over a decoded JSON object (map[string]any). Typed
// per-route structs were considered (spec §9 design note) but rejected: the
// spec's own literal scenarios (§8) exercise artist objects that carry only
// an "id" key with no "name"/"popularity"/"genres" — a strict struct would
// silently zero those fields instead of letting the artist pipeline tell
// "absent" apart from "zero popularity", which the pipeline's completeness
// check depends on. These helpers keep that distinction explicit at each
// call site instead of hiding it behind json.Unmarshal's zero-value default.

func asObject(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asArray(v any) []any {
	a, _ := v.([]any)
	return a
}

func getString(m map[string]any, key string) (string, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func getInt(m map[string]any, key string) (int, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		return 0, false
	}
	f, ok := v.(float64)
	if !ok {
		return 0, false
	}
	return int(f), true
}

func getStringSlice(m map[string]any, key string) ([]string, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, false
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(arr))
	for _, e := range arr {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out, true
}

// artistRef is the subset of an artist object the pipeline cares about.
// hasDetail mirrors spec §4.8 "complete detail (name, popularity, genres all
// present)".
type artistRef struct {
	ID         string
	Name       string
	Popularity int
	Genres     []string
	hasDetail  bool
}

func parseArtistRef(v any) (artistRef, bool) {
	m := asObject(v)
	if m == nil {
		return artistRef{}, false
	}
	id, ok := getString(m, "id")
	if !ok || id == "" {
		return artistRef{}, false
	}

	ref := artistRef{ID: id}
	name, hasName := getString(m, "name")
	popularity, hasPop := getInt(m, "popularity")
	genres, hasGenres := getStringSlice(m, "genres")
	if hasName && hasPop && hasGenres {
		ref.Name = name
		ref.Popularity = popularity
		ref.Genres = genres
		ref.hasDetail = true
	}
	return ref, true
}

func parseArtistRefs(v any) []artistRef {
	var out []artistRef
	for _, e := range asArray(v) {
		if ref, ok := parseArtistRef(e); ok {
			out = append(out, ref)
		}
	}
	return out
}

func nextURL(m map[string]any) (string, bool) {
	return getString(m, "next")
}
