// Package rekt turns a raw stream of liquidation events into chart-ready
// marker and line-series data: interval grouping, percentile classification,
// marker synthesis with trend highlighting, anchored VWAP/ALWAP indicators,
// pivot detection and live series merging.
//
// Everything in this package is a synchronous, deterministic transform over
// in-memory values. Nothing here blocks, performs I/O or retries; callers own
// serialization of updates and decide batching cadence.
package rekt
