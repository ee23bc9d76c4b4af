/*
Package metrics backs FileSystem.Metrics() (spec.md §4.14): a
Prometheus-registry-backed counter/histogram set per named operation
(createFile, createDir, delete, readDir, stat, open, readAll, writeAll,
copy, move, mount, unmount, sync, setPermissions), plus two running byte
totals (totalBytesRead, totalBytesWritten).

Collector.Snapshot returns the plain spec-shaped struct so callers who
only want the {count, successCount, failureCount, totalTimeMs, maxTimeMs}
view never need to touch Prometheus directly; Collector.Registry exposes
the underlying *prometheus.Registry for hosts that want to serve /metrics
themselves — PicoFS starts no HTTP server of its own (SPEC_FULL.md §6).

Reset zeros every counter, matching spec.md §4.14's resetMetrics.
*/
package metrics
