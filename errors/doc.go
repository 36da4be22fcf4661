// Package errors provides standardized error handling for AXION pipeline
// components. It includes error classification, standard error variables,
// and helper functions for consistent error wrapping across the system.
//
// Errors are classified into three classes that map onto the pipeline's
// failure taxonomy:
//
//   - Transient: temporary conditions (frame capture miss, inference
//     failure, broker disconnect) that abort at most the current tick.
//   - Invalid: bad input or configuration; the offending module or config
//     entry is rejected, processing continues.
//   - Fatal: unrecoverable startup conditions (no video source, no
//     accelerator connection) that terminate the process after cleanup.
//
// All error wrapping follows the standardized format:
//
//	"component.method: action failed: %w"
//
// The classification integrates with the standard library: errors.Is,
// errors.As and error wrapping chains all work as expected, and context
// cancellation errors are treated as transient.
package errors
