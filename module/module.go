// Package module defines the pluggable processing unit contract of the
// pipeline and the registry modules are created from.
//
// A module sees every frame once per tick, in ascending priority order,
// and contributes to the shared metadata record. Modules are registered
// explicitly in moduleregistry; there is no link-time discovery.
package module

import (
	"context"

	"github.com/oneshot2001/axion/frame"
	"github.com/oneshot2001/axion/metadata"
)

// Status is the per-frame outcome a module reports from Process.
type Status int

const (
	// StatusSuccess means the module processed the frame and may have
	// written to the record.
	StatusSuccess Status = iota
	// StatusSkip means the module deliberately did not process this
	// frame. Not an error.
	StatusSkip
	// StatusNotReady means a dependency of the module is not available
	// yet. The pipeline continues with the remaining modules.
	StatusNotReady
	// StatusError means processing failed. The pipeline logs the error
	// and continues with the remaining modules.
	StatusError
)

// String returns the lowercase status name.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusSkip:
		return "skip"
	case StatusNotReady:
		return "not_ready"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Descriptor identifies a module. Priority orders execution within a
// tick; lower runs first. Cleanup runs in reverse priority order.
type Descriptor struct {
	Name     string
	Version  string
	Priority int
}

// Module is one processing unit in the pipeline.
type Module interface {
	// Descriptor returns the module's static identity. It must be
	// callable before Init.
	Descriptor() Descriptor

	// Init prepares the module with its dependencies and configuration.
	// A module that fails Init is excluded from the pipeline.
	Init(ctx context.Context, deps Dependencies, cfg Config) error

	// Process handles one frame. The record is shared with all modules
	// of the tick; earlier modules' contributions are visible. A
	// non-nil error is only meaningful with StatusError.
	Process(ctx context.Context, f *frame.Frame, rec *metadata.Record) (Status, error)

	// Cleanup releases module resources. Called once during shutdown.
	Cleanup(ctx context.Context) error
}

// Starter is implemented by modules that need a hook when the pipeline
// transitions to running.
type Starter interface {
	OnStart(ctx context.Context) error
}

// Stopper is implemented by modules that need a hook when the pipeline
// stops ticking, before Cleanup.
type Stopper interface {
	OnStop(ctx context.Context) error
}
