// Package elevation implements the probabilistic elevation map core: the
// dense per-cell grid (elevation, three variance channels, color), the
// recursive inverse-variance fusion of incoming 3D point observations,
// time-driven process noise growth, the staleness watchdog, and the mapper
// loop that orchestrates one ingestion cycle per point batch.
//
// The grid is a fixed-size, fixed-resolution rectangle rigidly anchored to a
// moving reference frame. It is mutated only from the mapper's single
// dispatch goroutine; concurrent readers (debug server, recorder) go through
// Snapshot.
package elevation
