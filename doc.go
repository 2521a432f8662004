// Package cqf implements a Counting Quotient Filter: a compact, mergeable,
// approximate multiset that maps fixed-width hashed keys to small
// non-negative counters. It supports insertion, deletion, point queries,
// exact-within-false-positive-rate counting, merging two or more filters,
// inner-product/magnitude similarity, iteration in hashed-key order, and
// both in-memory and file-backed persistence.
//
// A filter is built with Init, Malloc, or Use over a buffer sized by
// RequiredBytes, and grows in place via Resize/ResizeMalloc once its load
// factor crosses the auto-resize threshold. Concurrent access is governed
// by a LockMode chosen at construction; callers needing strict external
// synchronization can select LocksForbidden and coordinate themselves.
package cqf
