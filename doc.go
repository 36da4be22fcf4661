// Package axion implements a fixed-rate inference pipeline for edge
// cameras that share one accelerator between several independent
// instances.
//
// # Architecture
//
// Each camera runs one axiond process built from small packages:
//
//   - frame: frame source contract and the deterministic simulator
//   - accelerator: time-slot coordination for the shared inference chip
//   - inference: output tensor decoding and inference timing
//   - module: the pluggable per-frame processing unit contract
//   - modules/...: the built-in modules (detection, motion, plates,
//     frame publisher)
//   - metadata: the per-tick record modules contribute to
//   - pipeline: the tick loop tying the above together
//   - publish: metadata and status publishing over NATS
//   - httpapi: local status, module and detection endpoints
//
// # Processing model
//
// The pipeline ticks at a fixed rate. Every tick waits for the
// instance's accelerator slot, takes one frame, runs all modules in
// priority order against a shared metadata record, releases the slot,
// publishes the finalized record, and releases the frame. Module
// failures are per-tick events: the chain continues and the record is
// published with whatever the healthy modules contributed.
package axion
