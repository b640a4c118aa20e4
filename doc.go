// Package fetchgraph is a declarative data-fetch coordinator for Go.
//
// # Overview
//
// A caller describes a set of named sources in a prescription: a map from
// Path to SourceDescriptor. Each source produces a value by invoking a
// side-effecting fetch function. Sources may declare that their params
// depend on another source's result. Fill plans and drives a selected
// subset of sources to completion with maximal parallelism, cache-aware
// pruning, retries, timeouts and recursive expansion of dynamically
// discovered sources (collections, begets), streaming every intermediate
// and terminal decision as an Event.
//
// # Basic usage
//
//	prescription := fetchgraph.Prescription{
//	    fetchgraph.P("user"): fetchgraph.NewSource(fetchUser),
//	    fetchgraph.P("playlists"): fetchgraph.NewSource(fetchPlaylists,
//	        fetchgraph.WithParams(fetchgraph.ParamsMap(map[string]fetchgraph.Value{
//	            "token": fetchgraph.RefValue(fetchgraph.Ref(fetchgraph.P("user"), "token")),
//	        })),
//	    ),
//	}
//
//	handle := fetchgraph.Fill(prescription, fetchgraph.WithFillCache(cache))
//	defer handle.Close()
//	stream := fetchgraph.Select(handle, []fetchgraph.Path{fetchgraph.P("playlists")})
//	summary := fetchgraph.Collect(stream)
//
// # Dependency references
//
// A source's Params is either a whole-result DepRef ("take the parent's
// entire result as my params map") or a map of Key to Value, where a Value
// is either a Literal or a DepRef into another source's result. The
// resolver walks these references to compute each source's Deps and
// CacheDeps ahead of dispatch.
package fetchgraph
