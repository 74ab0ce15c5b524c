// Package catalog owns the item catalog and price cache.
//
// A Cache holds the current CacheDocument and its search index. EnsureFresh
// compares the known catalog version with the upstream manifest and either
// rebuilds the whole catalog or refreshes prices when they have gone stale.
// Concurrent refreshes of the same kind share one execution.
package catalog
