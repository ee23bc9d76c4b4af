/*
Package cache implements PicoFS's mount-scoped metadata cache (spec.md
§4.4): two entry-count-bounded LRU maps, one for stat results and one for
readDir listings, keyed by normalized virtual path.

Only results for paths under a mount are cached — the in-memory tree is
already cheap and authoritative, so caching its reads buys nothing and
would only add an invalidation surface with no payoff. Every successful
mutation under a mount (create, delete, write, rename, permission change,
xattr change) invalidates both of the path's own entries and its parent's
readDir entry; Unmount clears every entry whose path is prefixed by the
mount's virtual path.

The cache is advisory: spec.md §4.4 permits a stale read between a write
and its invalidation as long as the write itself has not yet returned.
TreeStore reads never consult this package; only the FileSystem facade's
mount dispatch path does.
*/
package cache
