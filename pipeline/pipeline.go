// Package pipeline orchestrates the fixed-rate frame loop: slot wait,
// frame acquisition, the module chain, and metadata publishing.
package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/oneshot2001/axion/errors"
	"github.com/oneshot2001/axion/frame"
	"github.com/oneshot2001/axion/health"
	"github.com/oneshot2001/axion/metadata"
	"github.com/oneshot2001/axion/metric"
	"github.com/oneshot2001/axion/module"
	"github.com/oneshot2001/axion/publish"
)

// SlotCoordinator is the accelerator arbitration surface the pipeline
// uses.
type SlotCoordinator interface {
	WaitForSlot(ctx context.Context) error
	ReleaseSlot()
}

// Options configures a Pipeline.
type Options struct {
	CameraID  string
	TargetFPS int

	// Modules lists the registry names to run. Empty means all
	// registered modules.
	Modules []string

	Registry    *module.Registry
	Source      frame.Source
	Coordinator SlotCoordinator
	Publisher   publish.Publisher

	// Deps is the dependency template handed to every module; the
	// pipeline scopes the logger per module.
	Deps module.Dependencies

	// ModuleConfig returns the settings block for a module. Nil means
	// every module gets an empty config.
	ModuleConfig func(name string) module.Config

	Logger  *slog.Logger
	Metrics *metric.Metrics
	Health  *health.Tracker
}

// Pipeline drives one camera instance. Init discovers and initializes
// the modules; Run blocks on the tick loop until the context is
// canceled or the source is exhausted.
type Pipeline struct {
	opts    Options
	logger  *slog.Logger
	metrics *metric.Metrics
	tracker *health.Tracker

	modules     []module.Module
	initialized bool
	running     bool
	mu          sync.Mutex

	latestMu  sync.RWMutex
	latest    metadata.Snapshot
	hasLatest bool
}

// New validates the options and creates an uninitialized pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Source == nil || opts.Coordinator == nil || opts.Publisher == nil || opts.Registry == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig,
			"Pipeline", "New", "required dependency validation")
	}
	if opts.TargetFPS == 0 {
		opts.TargetFPS = 10
	}
	if opts.TargetFPS < 1 || opts.TargetFPS > 60 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("target fps %d outside 1-60", opts.TargetFPS),
			"Pipeline", "New", "frame rate validation")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ModuleConfig == nil {
		opts.ModuleConfig = func(string) module.Config { return module.Config{} }
	}
	if opts.Health == nil {
		opts.Health = health.NewTracker()
	}

	return &Pipeline{
		opts:    opts,
		logger:  opts.Logger.With("camera_id", opts.CameraID),
		metrics: opts.Metrics,
		tracker: opts.Health,
	}, nil
}

// Init creates and initializes the configured modules. A module whose
// Init fails is logged and excluded; the pipeline runs with the rest.
// Modules are ordered by ascending priority, ties keeping registration
// order.
func (p *Pipeline) Init(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Pipeline", "Init", "lifecycle check")
	}

	names := p.opts.Modules
	if len(names) == 0 {
		names = p.opts.Registry.Names()
	}

	for _, name := range names {
		mod, err := p.opts.Registry.Create(name)
		if err != nil {
			p.logger.Error("Module unknown, excluded", "module", name, "error", err)
			continue
		}

		deps := p.opts.Deps
		deps.Logger = p.logger.With("module", name)

		if err := mod.Init(ctx, deps, p.opts.ModuleConfig(name)); err != nil {
			p.logger.Error("Module init failed, excluded", "module", name, "error", err)
			continue
		}
		p.modules = append(p.modules, mod)
	}

	sort.SliceStable(p.modules, func(i, j int) bool {
		return p.modules[i].Descriptor().Priority < p.modules[j].Descriptor().Priority
	})

	ordered := make([]string, len(p.modules))
	for i, mod := range p.modules {
		ordered[i] = mod.Descriptor().Name
	}
	p.logger.Info("Pipeline modules initialized", "modules", ordered)

	p.initialized = true
	return nil
}

// Descriptors returns the active modules in execution order.
func (p *Pipeline) Descriptors() []module.Descriptor {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]module.Descriptor, len(p.modules))
	for i, mod := range p.modules {
		out[i] = mod.Descriptor()
	}
	return out
}

// Latest returns the most recently published record, if any.
func (p *Pipeline) Latest() (metadata.Snapshot, bool) {
	p.latestMu.RLock()
	defer p.latestMu.RUnlock()
	return p.latest, p.hasLatest
}

// Health returns the runtime counters.
func (p *Pipeline) Health() *health.Tracker { return p.tracker }

// Run executes the tick loop until ctx is canceled or the source is
// exhausted. An in-flight tick finishes before shutdown proceeds.
func (p *Pipeline) Run(ctx context.Context) error {
	p.mu.Lock()
	if !p.initialized {
		p.mu.Unlock()
		return errors.WrapInvalid(errors.ErrNotStarted, "Pipeline", "Run", "lifecycle check")
	}
	if p.running {
		p.mu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Pipeline", "Run", "lifecycle check")
	}
	p.running = true
	p.mu.Unlock()

	if err := p.opts.Publisher.PublishStatus(ctx, true); err != nil {
		p.logger.Warn("Online status publish failed", "error", err)
	}
	p.startModules(ctx)

	interval := time.Second / time.Duration(p.opts.TargetFPS)
	p.logger.Info("Pipeline running", "target_fps", p.opts.TargetFPS, "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			if err := p.ProcessOneFrame(ctx); err != nil {
				if stderrors.Is(err, errors.ErrSourceExhausted) {
					p.logger.Info("Frame source exhausted, stopping")
					break loop
				}
				if errors.IsFatal(err) && !stderrors.Is(err, context.Canceled) {
					runErr = err
					break loop
				}
				p.logger.Warn("Tick failed", "error", err, "class", errors.Classify(err).String())
			}
		}
	}

	p.shutdown()
	return runErr
}

// ProcessOneFrame runs one tick: wait for the slot, take a frame, run
// the module chain, release the slot, publish, release the frame. The
// slot is released before publishing so other sharers are not blocked
// on broker latency; the frame is released last, on every path.
func (p *Pipeline) ProcessOneFrame(ctx context.Context) error {
	tickStart := time.Now()

	if err := p.opts.Coordinator.WaitForSlot(ctx); err != nil {
		return errors.Wrap(err, "Pipeline", "ProcessOneFrame", "slot wait")
	}
	if p.metrics != nil {
		p.metrics.RecordSlotWait(time.Since(tickStart))
	}

	f, err := p.opts.Source.Get(ctx)
	if err != nil {
		p.opts.Coordinator.ReleaseSlot()
		p.recordDrop("no_frame")
		return errors.Wrap(err, "Pipeline", "ProcessOneFrame", "frame acquisition")
	}

	rec := metadata.New(f.Sequence, f.TimestampUS)
	p.runModules(ctx, f, rec)
	p.opts.Coordinator.ReleaseSlot()

	snap := rec.Finalize()
	if err := p.opts.Publisher.PublishMetadata(ctx, snap); err != nil {
		p.recordDrop("publish_failed")
		p.releaseFrame(f)
		return errors.Wrap(err, "Pipeline", "ProcessOneFrame", "record publish")
	}

	p.latestMu.Lock()
	p.latest = snap
	p.hasLatest = true
	p.latestMu.Unlock()

	if p.metrics != nil {
		p.metrics.RecordFrameProcessed(time.Since(tickStart))
	}
	p.tracker.RecordProcessed(snap.Sequence)

	p.releaseFrame(f)
	return nil
}

func (p *Pipeline) runModules(ctx context.Context, f *frame.Frame, rec *metadata.Record) {
	for _, mod := range p.modules {
		name := mod.Descriptor().Name
		start := time.Now()

		status, err := mod.Process(ctx, f, rec)

		if p.metrics != nil {
			p.metrics.RecordModuleOutcome(name, status.String(), time.Since(start))
		}
		if status == module.StatusError {
			p.logger.Warn("Module failed", "module", name, "sequence", f.Sequence, "error", err)
		}
	}
}

func (p *Pipeline) startModules(ctx context.Context) {
	for _, mod := range p.modules {
		if starter, ok := mod.(module.Starter); ok {
			if err := starter.OnStart(ctx); err != nil {
				p.logger.Warn("Module start hook failed", "module", mod.Descriptor().Name, "error", err)
			}
		}
	}
}

// shutdown runs stop hooks and cleanup in reverse execution order and
// publishes the offline status. Shutdown uses a fresh context because
// the run context is already canceled.
func (p *Pipeline) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for i := len(p.modules) - 1; i >= 0; i-- {
		if stopper, ok := p.modules[i].(module.Stopper); ok {
			if err := stopper.OnStop(ctx); err != nil {
				p.logger.Warn("Module stop hook failed", "module", p.modules[i].Descriptor().Name, "error", err)
			}
		}
	}

	if err := p.opts.Publisher.PublishStatus(ctx, false); err != nil {
		p.logger.Warn("Offline status publish failed", "error", err)
	}

	for i := len(p.modules) - 1; i >= 0; i-- {
		name := p.modules[i].Descriptor().Name
		if err := p.modules[i].Cleanup(ctx); err != nil {
			p.logger.Warn("Module cleanup failed", "module", name, "error", err)
		}
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	p.logger.Info("Pipeline stopped",
		"frames_processed", p.tracker.Snapshot().FramesProcessed,
		"frames_dropped", p.tracker.Snapshot().FramesDropped)
}

func (p *Pipeline) recordDrop(reason string) {
	if p.metrics != nil {
		p.metrics.RecordFrameDropped(reason)
	}
	p.tracker.RecordDropped()
}

func (p *Pipeline) releaseFrame(f *frame.Frame) {
	if err := p.opts.Source.Release(f); err != nil {
		p.logger.Error("Frame release failed", "sequence", f.Sequence, "error", err)
	}
}
