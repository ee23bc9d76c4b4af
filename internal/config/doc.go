/*
Package config provides PicoFS's configuration struct: the ambient
stack's config layer (SPEC_FULL.md §3), loadable from YAML via
gopkg.in/yaml.v2 (the same library the teacher uses for its own
internal/config) with PICOFS_*-prefixed environment overrides.

# Precedence

Defaults, then a YAML file, then environment variables — each layer
overlays onto the previous:

	NewDefault() -> LoadFromFile(path) -> LoadFromEnv()

# Sections

Tree records a block size and symlink-hop cap; the TreeStore does not
read them and uses its own constants (node.DefaultBlockSize,
tree.MaxSymlinkHops). Cache.StatMaxEntries bounds each of the
mount-scoped stat and readDir LRUs; Cache.ReadDirMaxEntries is not
read. Quota sets the QuotaMeter ceiling (-1 disables it). Locking
records a default blocking-lock wait that the facade does not apply:
a blocking lock waits until the caller's context ends. Events sizes the
EventBus's per-subscriber buffer. Mount configures the retry and
circuit-breaker decorators wrapped around every mounted DiskOps;
Mount.DiskPoolSize is validated but not read.
Persistence sets the auto-snapshot threshold. Monitoring toggles the
Prometheus-backed metrics registry.

Unlike the teacher's config (built for an object-storage-backed POSIX
layer: S3 endpoints, write-buffer compression, TLS), PicoFS has no
network surface of its own, so those sections are dropped rather than
carried as dead weight.
*/
package config
