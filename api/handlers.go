/*
handlers.go - HTTP API handlers for the tontine engine

PURPOSE:
  Exposes the accounting engine via REST API. Handles HTTP request/response,
  JSON serialization, caller identity, and the host clock, and delegates
  every decision to tontine.Engine (commands) or tontine.Reader (queries).

CALLER IDENTITY:
  Mutating requests carry the caller address in the X-Tontine-Sender
  header. The engine's access policy decides what that address may do;
  the handler only rejects requests that omit it.

TIME:
  Handler.Clock supplies Call.Now. Production uses the real clock, tests a
  clockwork.FakeClock so deadlines can be crossed deterministically.

ERROR HANDLING:
  Engine errors map to HTTP status by kind:
  - 400: ErrValidation, malformed body
  - 401: Missing X-Tontine-Sender
  - 403: ErrUnauthorized
  - 404: ErrNotFound
  - 409: ErrConflict, ErrTiming
  - 422: ErrArithmetic
  - 500: Store failures and anything else

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"github.com/warp/tontine-engine/factory"
	"github.com/warp/tontine-engine/generic"
	"github.com/warp/tontine-engine/tontine"
)

// SenderHeader names the caller address header.
const SenderHeader = "X-Tontine-Sender"

const maxBodyBytes = 1 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   generic.TxStore
	Engine  *tontine.Engine
	Reader  *tontine.Reader
	Factory *factory.ConfigFactory
	Clock   clockwork.Clock

	mu              sync.RWMutex
	currentScenario string
}

// NewHandler creates a handler over store. The factory uses the engine's
// address prefix so both validate creation commands the same way.
func NewHandler(store generic.TxStore, engine *tontine.Engine, clock clockwork.Clock) *Handler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Handler{
		Store:   store,
		Engine:  engine,
		Reader:  tontine.NewReader(store),
		Factory: factory.NewConfigFactory(engine.Options().AddressPrefix),
		Clock:   clock,
	}
}

func (h *Handler) call(r *http.Request) tontine.Call {
	return tontine.Call{
		Sender: tontine.Address(r.Header.Get(SenderHeader)),
		Now:    h.Clock.Now(),
	}
}

// RequireSender rejects mutating requests without a caller address.
func RequireSender(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodOptions && r.Header.Get(SenderHeader) == "" {
			writeError(w, http.StatusUnauthorized, "Missing "+SenderHeader+" header", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// TONTINE HANDLERS
// =============================================================================

// Instantiate creates the tontine from a JSON creation command.
func (h *Handler) Instantiate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	msg, _, err := h.Factory.ParseInstantiate(string(body))
	if err != nil {
		if tontine.CodeOf(err) == "" {
			writeError(w, http.StatusBadRequest, "Invalid instantiate message", err)
			return
		}
		writeEngineError(w, err)
		return
	}
	receipt, err := h.Engine.Instantiate(r.Context(), h.call(r), msg)
	respond(w, http.StatusCreated, receipt, err)
}

// GetState returns lifecycle flags, counters, and the derived phase.
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	st, err := h.Reader.State(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StateDTO{State: *st, Phase: st.Phase()})
}

// GetEngine returns the engine options in effect.
func (h *Handler) GetEngine(w http.ResponseWriter, r *http.Request) {
	opts := h.Engine.Options()
	writeJSON(w, http.StatusOK, EngineDTO{
		AddressPrefix: opts.AddressPrefix,
		AdvancePolicy: opts.AdvancePolicy,
	})
}

func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.Reader.Config(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.Factory.ToMsg(cfg))
}

func (h *Handler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Reader.Statistics(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GetBalance returns the funds held by the tontine.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cfg, err := h.Reader.Config(ctx)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	held, err := h.Reader.TontineBalance(ctx)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	fees, err := h.Reader.AccumulatedFees(ctx)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	pending, err := h.Reader.PendingPenalties(ctx)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceDTO{
		TontineBalance:   held,
		AccumulatedFees:  fees,
		PendingPenalties: pending,
		Denom:            cfg.Denom,
	})
}

func (h *Handler) GetEscrow(w http.ResponseWriter, r *http.Request) {
	escrow, err := h.Reader.EscrowState(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, escrow)
}

func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.Reader.Events(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(events))
}

// =============================================================================
// LIFECYCLE HANDLERS
// =============================================================================

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	receipt, err := h.Engine.Start(r.Context(), h.call(r))
	respond(w, http.StatusOK, receipt, err)
}

func (h *Handler) Pause(w http.ResponseWriter, r *http.Request) {
	receipt, err := h.Engine.Pause(r.Context(), h.call(r))
	respond(w, http.StatusOK, receipt, err)
}

func (h *Handler) Resume(w http.ResponseWriter, r *http.Request) {
	receipt, err := h.Engine.Resume(r.Context(), h.call(r))
	respond(w, http.StatusOK, receipt, err)
}

// Close ends the tontine early. The body is optional.
func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	var req CloseRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	receipt, err := h.Engine.CloseEarly(r.Context(), h.call(r), req.Reason)
	respond(w, http.StatusOK, receipt, err)
}

func (h *Handler) Finalize(w http.ResponseWriter, r *http.Request) {
	receipt, err := h.Engine.Finalize(r.Context(), h.call(r))
	respond(w, http.StatusOK, receipt, err)
}

func (h *Handler) Migrate(w http.ResponseWriter, r *http.Request) {
	var req MigrateRequest
	if !decode(w, r, &req) {
		return
	}
	receipt, err := h.Engine.Migrate(r.Context(), h.call(r), req.NewCodeID, req.Note)
	respond(w, http.StatusAccepted, receipt, err)
}

// =============================================================================
// MEMBER HANDLERS
// =============================================================================

func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.Reader.Members(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(members))
}

func (h *Handler) GetMember(w http.ResponseWriter, r *http.Request) {
	m, err := h.Reader.Member(r.Context(), addressParam(r))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *Handler) RegisterMember(w http.ResponseWriter, r *http.Request) {
	var req RegisterMemberRequest
	if !decode(w, r, &req) {
		return
	}
	receipt, err := h.Engine.RegisterMember(r.Context(), h.call(r), tontine.Address(req.Address))
	respond(w, http.StatusCreated, receipt, err)
}

func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	receipt, err := h.Engine.RemoveMember(r.Context(), h.call(r), addressParam(r))
	respond(w, http.StatusOK, receipt, err)
}

func (h *Handler) ReplaceMember(w http.ResponseWriter, r *http.Request) {
	var req ReplaceMemberRequest
	if !decode(w, r, &req) {
		return
	}
	receipt, err := h.Engine.ReplaceMember(r.Context(), h.call(r),
		tontine.Address(req.OldMember), tontine.Address(req.NewMember))
	respond(w, http.StatusOK, receipt, err)
}

func (h *Handler) GetMemberPenalties(w http.ResponseWriter, r *http.Request) {
	addr := addressParam(r)
	total, records, err := h.Reader.MemberPenalties(r.Context(), addr)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MemberPenaltiesDTO{Member: addr, Total: total, Records: orEmpty(records)})
}

// =============================================================================
// ROUND HANDLERS
// =============================================================================

func (h *Handler) ListRounds(w http.ResponseWriter, r *http.Request) {
	rounds, err := h.Reader.Rounds(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(rounds))
}

func (h *Handler) GetCurrentRound(w http.ResponseWriter, r *http.Request) {
	rd, err := h.Reader.CurrentRound(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rd)
}

func (h *Handler) GetRound(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.ParseUint(chi.URLParam(r, "n"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid round number", err)
		return
	}
	rd, err := h.Reader.Round(r.Context(), n)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rd)
}

// Deposit records the sender's contribution; the amount is fixed by config.
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	receipt, err := h.Engine.Deposit(r.Context(), h.call(r))
	respond(w, http.StatusCreated, receipt, err)
}

func (h *Handler) Distribute(w http.ResponseWriter, r *http.Request) {
	receipt, err := h.Engine.Distribute(r.Context(), h.call(r))
	respond(w, http.StatusOK, receipt, err)
}

func (h *Handler) AdvanceRound(w http.ResponseWriter, r *http.Request) {
	receipt, err := h.Engine.AdvanceRound(r.Context(), h.call(r))
	respond(w, http.StatusOK, receipt, err)
}

// =============================================================================
// BENEFICIARY & HISTORY HANDLERS
// =============================================================================

func (h *Handler) GetBeneficiaries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	all, err := h.Reader.Beneficiaries(ctx)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	dto := BeneficiariesDTO{Beneficiaries: all}

	// Current is absent before Start.
	current, err := h.Reader.CurrentBeneficiary(ctx)
	switch {
	case err == nil:
		dto.Current = current
	case !tontine.IsNotFound(err):
		writeEngineError(w, err)
		return
	}
	if dto.Next, err = h.Reader.NextBeneficiary(ctx); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) GetBeneficiarySchedule(w http.ResponseWriter, r *http.Request) {
	schedule, err := h.Reader.BeneficiarySchedule(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, schedule)
}

func (h *Handler) DepositHistory(w http.ResponseWriter, r *http.Request) {
	deposits, err := h.Reader.DepositHistory(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(deposits))
}

func (h *Handler) DistributionHistory(w http.ResponseWriter, r *http.Request) {
	dists, err := h.Reader.DistributionHistory(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(dists))
}

func (h *Handler) PenaltyHistory(w http.ResponseWriter, r *http.Request) {
	penalties, err := h.Reader.PenaltyHistory(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(penalties))
}

// =============================================================================
// PENALTY, FEE, DISPUTE, ADVANCE PAYMENT HANDLERS
//
// The engine acknowledges these with a deferred receipt; 202 tells the
// client nothing changed yet.
// =============================================================================

func (h *Handler) DeclareLate(w http.ResponseWriter, r *http.Request) {
	var req MemberRequest
	if !decode(w, r, &req) {
		return
	}
	receipt, err := h.Engine.DeclareLate(r.Context(), h.call(r), tontine.Address(req.Member))
	respond(w, http.StatusAccepted, receipt, err)
}

func (h *Handler) ApplyPenalty(w http.ResponseWriter, r *http.Request) {
	var req ApplyPenaltyRequest
	if !decode(w, r, &req) {
		return
	}
	receipt, err := h.Engine.ApplyPenalty(r.Context(), h.call(r), tontine.Address(req.Member), req.Amount, req.Reason)
	respond(w, http.StatusAccepted, receipt, err)
}

func (h *Handler) PayPenalty(w http.ResponseWriter, r *http.Request) {
	var req MemberRequest
	if !decode(w, r, &req) {
		return
	}
	receipt, err := h.Engine.PayPenalty(r.Context(), h.call(r), tontine.Address(req.Member))
	respond(w, http.StatusAccepted, receipt, err)
}

func (h *Handler) WithdrawFees(w http.ResponseWriter, r *http.Request) {
	var req WithdrawFeesRequest
	if !decode(w, r, &req) {
		return
	}
	receipt, err := h.Engine.WithdrawFees(r.Context(), h.call(r), req.Amount)
	respond(w, http.StatusAccepted, receipt, err)
}

func (h *Handler) CollectFees(w http.ResponseWriter, r *http.Request) {
	receipt, err := h.Engine.CollectProtocolFees(r.Context(), h.call(r))
	respond(w, http.StatusAccepted, receipt, err)
}

func (h *Handler) ListDisputes(w http.ResponseWriter, r *http.Request) {
	disputes, err := h.Reader.Disputes(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(disputes))
}

func (h *Handler) ResolveDispute(w http.ResponseWriter, r *http.Request) {
	var req DisputeDecisionRequest
	if !decode(w, r, &req) {
		return
	}
	receipt, err := h.Engine.ResolveDispute(r.Context(), h.call(r), tontine.Address(req.Member), req.Decision)
	respond(w, http.StatusAccepted, receipt, err)
}

func (h *Handler) ArbitrateDispute(w http.ResponseWriter, r *http.Request) {
	var req DisputeDecisionRequest
	if !decode(w, r, &req) {
		return
	}
	receipt, err := h.Engine.ArbitrateDispute(r.Context(), h.call(r), tontine.Address(req.Member), req.Decision)
	respond(w, http.StatusAccepted, receipt, err)
}

func (h *Handler) AdvancePayment(w http.ResponseWriter, r *http.Request) {
	var req AdvancePaymentRequest
	if !decode(w, r, &req) {
		return
	}
	receipt, err := h.Engine.AdvancePayment(r.Context(), h.call(r), tontine.Address(req.Beneficiary), req.Discount)
	respond(w, http.StatusAccepted, receipt, err)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
		resp.Code = tontine.CodeOf(err)
	}
	writeJSON(w, status, resp)
}

// writeEngineError maps an engine error to its HTTP status.
func writeEngineError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	writeError(w, status, http.StatusText(status), err)
}

// StatusFor returns the HTTP status for an engine error.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, tontine.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, tontine.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, tontine.ErrNotFound), errors.Is(err, generic.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, tontine.ErrConflict), errors.Is(err, tontine.ErrTiming):
		return http.StatusConflict
	case errors.Is(err, tontine.ErrArithmetic):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func respond(w http.ResponseWriter, status int, receipt *tontine.Receipt, err error) {
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, status, receipt)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// decodeOptional accepts an empty body.
func decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func addressParam(r *http.Request) tontine.Address {
	return tontine.Address(chi.URLParam(r, "address"))
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func (h *Handler) setScenario(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.currentScenario = id
}

func (h *Handler) scenario() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.currentScenario
}
