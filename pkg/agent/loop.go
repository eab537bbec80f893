// Package agent implements the control loop that ties telemetry
// collection, baseline learning, anomaly detection, classification, and
// NDJSON output into one sample/sleep cycle.
package agent

import (
	"context"
	"time"

	"github.com/jihwankim/aegis-agent/pkg/anomaly"
	"github.com/jihwankim/aegis-agent/pkg/baseline"
	"github.com/jihwankim/aegis-agent/pkg/classifier"
	"github.com/jihwankim/aegis-agent/pkg/config"
	"github.com/jihwankim/aegis-agent/pkg/logging"
	"github.com/jihwankim/aegis-agent/pkg/metrics"
	"github.com/jihwankim/aegis-agent/pkg/pipeline"
	"github.com/jihwankim/aegis-agent/pkg/telemetry"
	"github.com/jihwankim/aegis-agent/pkg/transport"
)

// Loop is the agent's control loop.
type Loop struct {
	cfg       config.Config
	logger    *logging.Logger
	collector telemetry.Collector
	baseline  *baseline.Store
	pipeline  *pipeline.Model
	anomaly   *anomaly.Engine
	emitter   *transport.Emitter
	stopper   *Stopper
	metrics   *metrics.Registry

	state                 State
	warmupLoggedOnce      bool
	readyTransitionLogged bool
}

// Params bundles the components a Loop needs. All fields are required
// except Metrics, which may be nil to disable self-metrics.
type Params struct {
	Config    config.Config
	Logger    *logging.Logger
	Collector telemetry.Collector
	Baseline  *baseline.Store
	Pipeline  *pipeline.Model
	Anomaly   *anomaly.Engine
	Emitter   *transport.Emitter
	Stopper   *Stopper
	Metrics   *metrics.Registry
}

// New constructs a Loop from p.
func New(p Params) *Loop {
	return &Loop{
		cfg:       p.Config,
		logger:    p.Logger,
		collector: p.Collector,
		baseline:  p.Baseline,
		pipeline:  p.Pipeline,
		anomaly:   p.Anomaly,
		emitter:   p.Emitter,
		stopper:   p.Stopper,
		metrics:   p.Metrics,
		state:     StateInit,
	}
}

// Run drives the loop until ctx is canceled or the stopper fires. It
// loads any existing baseline before the first tick and saves it again
// during shutdown.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.baseline.Load(l.cfg.BaselineDBPath); err != nil {
		return err
	}

	l.transition(l.initialState())

	defer l.shutdown()

	interval := time.Duration(l.cfg.SamplingIntervalMS) * time.Millisecond

	for {
		if l.stopper.Stopped() {
			l.transition(StateDrain)
			return nil
		}

		start := time.Now()
		if err := l.tick(ctx); err != nil {
			l.logger.Error("fatal error during tick, stopping", "error", err)
			l.transition(StateDrain)
			return err
		}
		if l.metrics != nil {
			l.metrics.LoopIterationLatency.Observe(time.Since(start).Seconds())
		}

		if !l.interruptibleSleep(ctx, interval) {
			l.transition(StateDrain)
			return nil
		}
	}
}

func (l *Loop) initialState() State {
	if l.cfg.Mode == config.ModeBaseline {
		return StateLearn
	}
	if l.baseline.Ready() {
		return StateDetect
	}
	return StateWarmup
}

// tick performs exactly one collect/update/[detect]/emit cycle.
func (l *Loop) tick(ctx context.Context) error {
	sample, err := l.collector.Collect(ctx)
	if err != nil {
		return err
	}
	if l.metrics != nil {
		l.metrics.SamplesProcessed.Inc()
	}

	wasReady := l.baseline.Ready()

	switch l.cfg.Mode {
	case config.ModeBaseline:
		l.baseline.Update(sample)
		l.pipeline.SnapshotAndUpdate(sample)
		l.transition(StateLearn)
		return l.emitter.EmitTelemetry(sample, nil, nil)
	case config.ModeDetect:
		if !wasReady {
			// WARMUP: still learning, so the baseline keeps updating.
			l.baseline.Update(sample)
			l.pipeline.SnapshotAndUpdate(sample)
			l.transition(StateWarmup)
			if !l.warmupLoggedOnce {
				l.logger.Info("baseline not yet ready, continuing to learn during detect mode")
				l.warmupLoggedOnce = true
			}
			return l.emitter.EmitTelemetry(sample, nil, nil)
		}

		// DETECT: the baseline is frozen once ready. The transient
		// pipeline model still updates every tick — it is what
		// Evaluate scores the sample against.
		view := l.pipeline.SnapshotAndUpdate(sample)

		l.transition(StateDetect)
		if !l.readyTransitionLogged {
			l.logger.Info("baseline ready, anomaly detection now active")
			l.readyTransitionLogged = true
			if l.metrics != nil {
				l.metrics.BaselineReadyEvents.Inc()
			}
		}

		result := l.anomaly.Evaluate(sample, view)
		if result.IsAnomalous && l.metrics != nil {
			l.metrics.AnomaliesFlagged.Inc()
		}
		classification := classifier.Classify(result)

		if err := l.emitter.EmitTelemetry(sample, &result, &classification); err != nil {
			return err
		}

		if classification.Verdict == classifier.VerdictRansomware {
			if l.metrics != nil {
				l.metrics.AlertsEmitted.Inc()
			}
			return l.emitter.EmitAlert(&sample, &result, classification)
		}
		return nil
	default:
		return nil
	}
}

// interruptibleSleep sleeps for d, waking early if ctx is canceled or
// the stopper fires. It polls rather than sleeping in one shot so a
// stop request is honored promptly regardless of d's length; if woken
// early before the deadline, it returns false without rewaiting the
// remainder — the caller re-checks the stop condition on its next loop
// iteration.
func (l *Loop) interruptibleSleep(ctx context.Context, d time.Duration) bool {
	deadline := time.Now().Add(d)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-l.stopper.StopChannel():
			return false
		case <-ticker.C:
			if time.Now().After(deadline) {
				return true
			}
		}
	}
}

func (l *Loop) transition(to State) {
	if l.state == to {
		return
	}
	l.logger.Debug("state transition", "from", l.state.String(), "to", to.String())
	l.state = to
}

// shutdown saves the baseline and releases the collector, logging but
// not failing on errors so every component gets a chance to tear down.
func (l *Loop) shutdown() {
	l.transition(StateStopped)

	if err := l.baseline.Save(l.cfg.BaselineDBPath); err != nil {
		l.logger.Error("failed to save baseline during shutdown", "error", err)
	}
	if err := l.collector.Close(); err != nil {
		l.logger.Error("failed to close collector during shutdown", "error", err)
	}
}
