/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built tontines that populate the store through the normal
	engine path, so every record, event, and receipt a scenario leaves
	behind is one a real client could have produced.

AVAILABLE SCENARIOS:

	fresh-tontine:   Instantiated, three members registered, not started
	first-round:     Started, two of three members have deposited
	late-payer:      Round 1 past its deadline, one deposit arrived late
	full-cycle:      Two rounds deposited, distributed, and finalized

HOW SCENARIOS WORK:
 1. Reset the store (clear all records)
 2. Instantiate from a factory preset
 3. Replay admin and member calls at scripted times
    (history lies in the past relative to Handler.Clock)

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "first-round"}

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler
  - factory/config.go: Presets
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/tontine-engine/factory"
	"github.com/warp/tontine-engine/tontine"
)

// Resetter is implemented by stores that can drop every record.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Demo addresses used by every scenario.
const (
	DemoAdmin      tontine.Address = "addr_safro1demoadmin000000"
	DemoArbitrator tontine.Address = "addr_safro1demoarbiter0000"
	DemoAlice      tontine.Address = "addr_safro1alice000000000"
	DemoBob        tontine.Address = "addr_safro1bob00000000000"
	DemoCarol      tontine.Address = "addr_safro1carol000000000"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "fresh-tontine",
		Name:        "Fresh Tontine",
		Description: "Weekly tontine with three registered members, waiting to start",
	},
	{
		ID:          "first-round",
		Name:        "First Round",
		Description: "Round 1 open, Alice and Bob deposited, Carol has not",
	},
	{
		ID:          "late-payer",
		Name:        "Late Payer",
		Description: "Round 1 deadline passed, Carol deposited late, ready to distribute",
	},
	{
		ID:          "full-cycle",
		Name:        "Full Cycle",
		Description: "Two-member tontine, both rounds distributed and finalized",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	current := h.scenario()
	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current, Description: "Currently loaded scenario"})
}

// LoadScenario resets the store and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decode(w, r, &req) {
		return
	}

	loader, ok := h.scenarioLoader(req.ScenarioID)
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	if err := h.LoadScenarioByID(r.Context(), req.ScenarioID, loader); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetStore clears all records.
func (h *Handler) ResetStore(w http.ResponseWriter, r *http.Request) {
	if err := h.reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset store", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) reset(ctx context.Context) error {
	rs, ok := h.Store.(Resetter)
	if !ok {
		return fmt.Errorf("store %T cannot be reset", h.Store)
	}
	if err := rs.Reset(ctx); err != nil {
		return err
	}
	h.setScenario("")
	return nil
}

type scenarioLoader func(ctx context.Context, s *script) error

func (h *Handler) scenarioLoader(id string) (scenarioLoader, bool) {
	switch id {
	case "fresh-tontine":
		return loadFreshTontine, true
	case "first-round":
		return loadFirstRound, true
	case "late-payer":
		return loadLatePayer, true
	case "full-cycle":
		return loadFullCycle, true
	}
	return nil, false
}

// LoadScenarioByID resets the store and runs loader.
func (h *Handler) LoadScenarioByID(ctx context.Context, id string, loader scenarioLoader) error {
	if err := h.reset(ctx); err != nil {
		return err
	}
	if err := loader(ctx, &script{engine: h.Engine, now: h.Clock.Now()}); err != nil {
		return err
	}
	h.setScenario(id)
	return nil
}

// =============================================================================
// SCRIPT - Sequenced engine calls at scripted times
// =============================================================================

type script struct {
	engine *tontine.Engine
	now    time.Time
	err    error
}

// do runs fn unless an earlier step failed.
func (s *script) do(step string, fn func() (*tontine.Receipt, error)) {
	if s.err != nil {
		return
	}
	if _, err := fn(); err != nil {
		s.err = fmt.Errorf("%s: %w", step, err)
	}
}

func (s *script) at(sender tontine.Address, now time.Time) tontine.Call {
	return tontine.Call{Sender: sender, Now: now}
}

func demoPreset(beneficiaries ...tontine.Address) factory.Preset {
	list := make([]string, len(beneficiaries))
	for i, b := range beneficiaries {
		list[i] = string(b)
	}
	return factory.Preset{
		Admin:         string(DemoAdmin),
		Arbitrator:    string(DemoArbitrator),
		Denom:         "usafro",
		Contribution:  "1000",
		LatePenalty:   "50",
		ProtocolFees:  "10",
		Beneficiaries: list,
	}
}

// setup instantiates a weekly tontine and registers members at now.
func (s *script) setup(ctx context.Context, now time.Time, members ...tontine.Address) {
	fac := factory.NewConfigFactory(s.engine.Options().AddressPrefix)
	msg, _, err := fac.ParseInstantiate(factory.WeeklyJSON(demoPreset(members...)))
	if err != nil {
		s.err = fmt.Errorf("preset: %w", err)
		return
	}
	s.do("instantiate", func() (*tontine.Receipt, error) {
		return s.engine.Instantiate(ctx, s.at(DemoAdmin, now), msg)
	})
	for _, m := range members {
		s.do("register "+string(m), func() (*tontine.Receipt, error) {
			return s.engine.RegisterMember(ctx, s.at(DemoAdmin, now), m)
		})
	}
}

// closeRound distributes the current round at now and, under the manual
// policy, opens the next one when rounds remain.
func (s *script) closeRound(ctx context.Context, now time.Time, last bool) {
	s.do("distribute", func() (*tontine.Receipt, error) {
		return s.engine.Distribute(ctx, s.at(DemoAdmin, now))
	})
	if !last && s.engine.Options().AdvancePolicy == tontine.AdvanceManual {
		s.do("advance", func() (*tontine.Receipt, error) {
			return s.engine.AdvanceRound(ctx, s.at(DemoAdmin, now))
		})
	}
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func loadFreshTontine(ctx context.Context, s *script) error {
	s.setup(ctx, s.now.Add(-time.Hour), DemoAlice, DemoBob, DemoCarol)
	return s.err
}

func loadFirstRound(ctx context.Context, s *script) error {
	start := s.now.Add(-24 * time.Hour)
	s.setup(ctx, start, DemoAlice, DemoBob, DemoCarol)
	s.do("start", func() (*tontine.Receipt, error) {
		return s.engine.Start(ctx, s.at(DemoAdmin, start))
	})
	for _, m := range []tontine.Address{DemoAlice, DemoBob} {
		s.do("deposit "+string(m), func() (*tontine.Receipt, error) {
			return s.engine.Deposit(ctx, s.at(m, start.Add(time.Hour)))
		})
	}
	return s.err
}

func loadLatePayer(ctx context.Context, s *script) error {
	start := s.now.Add(-factory.Week - 2*factory.DefaultTimeGuards)
	s.setup(ctx, start, DemoAlice, DemoBob, DemoCarol)
	s.do("start", func() (*tontine.Receipt, error) {
		return s.engine.Start(ctx, s.at(DemoAdmin, start))
	})
	for _, m := range []tontine.Address{DemoAlice, DemoBob} {
		s.do("deposit "+string(m), func() (*tontine.Receipt, error) {
			return s.engine.Deposit(ctx, s.at(m, start.Add(time.Hour)))
		})
	}
	s.do("deposit late", func() (*tontine.Receipt, error) {
		return s.engine.Deposit(ctx, s.at(DemoCarol, start.Add(factory.Week+time.Minute)))
	})
	return s.err
}

func loadFullCycle(ctx context.Context, s *script) error {
	members := []tontine.Address{DemoAlice, DemoBob}
	step := factory.Week + factory.DefaultTimeGuards
	now := s.now.Add(-time.Duration(len(members)) * step).Add(-time.Hour)

	s.setup(ctx, now, members...)
	s.do("start", func() (*tontine.Receipt, error) {
		return s.engine.Start(ctx, s.at(DemoAdmin, now))
	})
	for i := range members {
		for _, m := range members {
			s.do("deposit "+string(m), func() (*tontine.Receipt, error) {
				return s.engine.Deposit(ctx, s.at(m, now.Add(time.Minute)))
			})
		}
		now = now.Add(step)
		s.closeRound(ctx, now, i == len(members)-1)
	}
	s.do("finalize", func() (*tontine.Receipt, error) {
		return s.engine.Finalize(ctx, s.at(DemoAdmin, now))
	})
	return s.err
}
