/*
scheduler.go - Automated round distribution scheduler

PURPOSE:
  Periodically checks the current round and, once its deadline plus the
  configured time guard has passed, distributes it through the normal
  engine path. The operator address must hold a role the access policy
  allows for distribution (admin or arbitrator).

DESIGN:
  - Runs a background goroutine on a clockwork ticker
  - Skips when the tontine is not running or the round is already paid
  - Never bypasses the engine: rejections are logged, not retried
  - Only distributes. The engine's AdvancePolicy decides whether the next
    round opens with the payout; under manual an admin calls AdvanceRound

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 minute)
  - Enabled: Whether scheduler is active (default: false)
  - Operator: Caller address used for Distribute

USAGE:
  scheduler := NewRoundScheduler(engine, reader, clock, operator)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: Distribute endpoint (manual distribution)
  - tontine/rounds.go: Distribute, AdvanceRound
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"github.com/warp/tontine-engine/metrics"
	"github.com/warp/tontine-engine/tontine"
)

// Scheduler run results, also used as metric labels.
const (
	RunDistributed = "distributed"
	RunIdle        = "idle"
	RunError       = "error"
)

// RoundScheduler distributes rounds whose deadline has passed.
type RoundScheduler struct {
	Engine        *tontine.Engine
	Reader        *tontine.Reader
	Clock         clockwork.Clock
	Operator      tontine.Address
	CheckInterval time.Duration
	Enabled       bool

	ticker clockwork.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	logger *log.Entry
}

// NewRoundScheduler creates a disabled scheduler; set Enabled to run it.
func NewRoundScheduler(engine *tontine.Engine, reader *tontine.Reader, clock clockwork.Clock, operator tontine.Address) *RoundScheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RoundScheduler{
		Engine:        engine,
		Reader:        reader,
		Clock:         clock,
		Operator:      operator,
		CheckInterval: time.Minute,
		logger:        log.WithField("component", "scheduler"),
	}
}

// Start begins the scheduler.
func (rs *RoundScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.logger.Info("disabled, not starting")
		return
	}
	if rs.ticker != nil {
		return
	}

	rs.ticker = rs.Clock.NewTicker(rs.CheckInterval)
	rs.stop = make(chan struct{})
	rs.wg.Add(1)

	go rs.run(rs.ticker, rs.stop)

	rs.logger.WithFields(log.Fields{
		"interval": rs.CheckInterval,
		"operator": rs.Operator,
	}).Info("started")
}

// Stop stops the scheduler and waits for an in-flight check to finish.
func (rs *RoundScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker == nil {
		return
	}
	rs.ticker.Stop()
	close(rs.stop)
	rs.wg.Wait()
	rs.ticker = nil
	rs.logger.Info("stopped")
}

func (rs *RoundScheduler) run(ticker clockwork.Ticker, stop <-chan struct{}) {
	defer rs.wg.Done()

	rs.RunNow(context.Background())

	for {
		select {
		case <-ticker.Chan():
			rs.RunNow(context.Background())
		case <-stop:
			return
		}
	}
}

// RunNow performs one check and returns its result.
func (rs *RoundScheduler) RunNow(ctx context.Context) string {
	result := rs.checkAndDistribute(ctx)
	metrics.RecordSchedulerRun(result)
	return result
}

func (rs *RoundScheduler) checkAndDistribute(ctx context.Context) string {
	now := rs.Clock.Now()

	st, err := rs.Reader.State(ctx)
	if err != nil {
		if tontine.IsNotFound(err) {
			return RunIdle
		}
		rs.logger.WithError(err).Error("failed to load state")
		return RunError
	}
	if st.Phase() != tontine.PhaseActive || st.CurrentRound == 0 {
		return RunIdle
	}

	round, err := rs.Reader.Round(ctx, st.CurrentRound)
	if err != nil {
		rs.logger.WithError(err).Error("failed to load current round")
		return RunError
	}
	if round.IsDistributed {
		return RunIdle
	}

	guards, err := rs.Reader.TimeGuards(ctx)
	if err != nil {
		rs.logger.WithError(err).Error("failed to load time guards")
		return RunError
	}
	if !now.After(round.Deadline.Add(guards)) {
		return RunIdle
	}

	call := tontine.Call{Sender: rs.Operator, Now: now}
	receipt, err := rs.Engine.Distribute(ctx, call)
	if err != nil {
		rs.logger.WithError(err).WithField("round", round.Number).Warn("distribution rejected")
		return RunError
	}

	rs.logger.WithFields(log.Fields{
		"round":          round.Number,
		"beneficiary":    receipt.Event.Attr("beneficiary"),
		"amount":         receipt.Event.Attr("amount"),
		"advance_policy": rs.Engine.Options().AdvancePolicy,
	}).Info("round distributed")
	return RunDistributed
}
