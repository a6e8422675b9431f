package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	memstore "github.com/warp/tontine-engine/generic/store"
	"github.com/warp/tontine-engine/tontine"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const (
	testAdmin   tontine.Address = "addr_safro1admin000000000"
	testArbiter tontine.Address = "addr_safro1arbiter00000000"
	testB1      tontine.Address = "addr_safro1member1000000000"
	testB2      tontine.Address = "addr_safro1member2000000000"
	testOutside tontine.Address = "addr_safro1outsider0000000"
)

var testStart = time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)

type testServer struct {
	t       *testing.T
	clock   *clockwork.FakeClock
	store   *memstore.TxMemory
	handler *Handler
	router  *chi.Mux
}

func newTestServer(t *testing.T, opts ...func(*tontine.Options)) *testServer {
	t.Helper()
	var o tontine.Options
	for _, fn := range opts {
		fn(&o)
	}
	store := memstore.NewTxMemory()
	clock := clockwork.NewFakeClockAt(testStart)
	h := NewHandler(store, tontine.NewEngine(store, o), clock)
	return &testServer{t: t, clock: clock, store: store, handler: h, router: NewRouter(h)}
}

func (s *testServer) do(method, path string, sender tontine.Address, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if str, ok := body.(string); ok {
			buf.WriteString(str)
		} else {
			require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if sender != "" {
		req.Header.Set(SenderHeader, string(sender))
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func instantiateMsg(beneficiaries ...tontine.Address) tontine.InstantiateMsg {
	list := make([]string, len(beneficiaries))
	for i, b := range beneficiaries {
		list[i] = string(b)
	}
	return tontine.InstantiateMsg{
		Admin:              string(testAdmin),
		TokenDenom:         "usafro",
		ContributionAmount: "1000",
		RoundFrequency:     86400,
		Beneficiaries:      list,
		LatePenalty:        "50",
		ProtocolFees:       "10",
		Arbitrator:         string(testArbiter),
		TimeGuards:         3600,
	}
}

// started instantiates with B1,B2, registers both, and starts at testStart.
func (s *testServer) started() {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/tontine", testAdmin, instantiateMsg(testB1, testB2))
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	for _, b := range []tontine.Address{testB1, testB2} {
		rec = s.do(http.MethodPost, "/api/members", testAdmin, RegisterMemberRequest{Address: string(b)})
		require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	rec = s.do(http.MethodPost, "/api/tontine/start", testAdmin, nil)
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())
}

// =============================================================================
// END-TO-END
// =============================================================================

func TestHTTP_DepositAndDistributeScenario(t *testing.T) {
	// GIVEN: contribution 1000, fees 10, beneficiaries B1,B2, started
	// WHEN: B1 deposits before the deadline, time passes it, admin distributes
	// THEN: B1 is paid 990 and the tontine keeps 10 in fees

	s := newTestServer(t)
	s.started()

	state := decodeBody[StateDTO](t, s.do(http.MethodGet, "/api/tontine", "", nil))
	assert.Equal(t, tontine.PhaseActive, state.Phase)
	assert.Equal(t, uint64(1), state.CurrentRound)
	assert.Equal(t, uint64(2), state.TotalRounds)

	round := decodeBody[tontine.Round](t, s.do(http.MethodGet, "/api/rounds/current", "", nil))
	assert.Equal(t, testB1, round.Beneficiary)
	assert.True(t, round.Deadline.Equal(testStart.Add(24*time.Hour)))

	s.clock.Advance(time.Hour)
	rec := s.do(http.MethodPost, "/api/rounds/current/deposits", testB1, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	receipt := decodeBody[tontine.Receipt](t, rec)
	assert.Equal(t, "false", receipt.Event.Attr("is_late"))

	round = decodeBody[tontine.Round](t, s.do(http.MethodGet, "/api/rounds/1", "", nil))
	assert.Equal(t, "1000", round.Balance.String())

	rec = s.do(http.MethodPost, "/api/rounds/current/distribute", testAdmin, nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "deadline not reached")
	assert.Equal(t, tontine.CodeRoundDeadlineNotReached, decodeBody[ErrorResponse](t, rec).Code)

	s.clock.Advance(24 * time.Hour)
	rec = s.do(http.MethodPost, "/api/rounds/current/distribute", testAdmin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	receipt = decodeBody[tontine.Receipt](t, rec)
	require.Len(t, receipt.Transfers, 1)
	assert.Equal(t, testB1, receipt.Transfers[0].To)
	assert.Equal(t, "990", receipt.Transfers[0].Amount.String())
	assert.Equal(t, "usafro", receipt.Transfers[0].Denom)

	balance := decodeBody[BalanceDTO](t, s.do(http.MethodGet, "/api/tontine/balance", "", nil))
	assert.Equal(t, "10", balance.AccumulatedFees.String())
	assert.Equal(t, "10", balance.TontineBalance.String())

	dists := decodeBody[[]tontine.Distribution](t, s.do(http.MethodGet, "/api/history/distributions", "", nil))
	require.Len(t, dists, 1)
	assert.Equal(t, "990", dists[0].Amount.String())
}

func TestHTTP_NonAdminIsForbiddenAndChangesNothing(t *testing.T) {
	// GIVEN: An instantiated tontine with B1 registered
	// WHEN: An outsider registers, starts, pauses, or distributes
	// THEN: Every call is 403 and state, members, and events are unchanged

	s := newTestServer(t)
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/tontine", testAdmin, instantiateMsg(testB1, testB2)).Code)
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/members", testAdmin, RegisterMemberRequest{Address: string(testB1)}).Code)

	beforeEvents := decodeBody[[]any](t, s.do(http.MethodGet, "/api/tontine/events", "", nil))

	calls := []struct {
		path string
		body any
	}{
		{"/api/members", RegisterMemberRequest{Address: string(testB2)}},
		{"/api/tontine/start", nil},
		{"/api/tontine/pause", nil},
		{"/api/rounds/current/distribute", nil},
	}
	for _, c := range calls {
		rec := s.do(http.MethodPost, c.path, testOutside, c.body)
		assert.Equal(t, http.StatusForbidden, rec.Code, c.path)
		assert.Equal(t, tontine.CodeUnauthorized, decodeBody[ErrorResponse](t, rec).Code, c.path)
	}

	state := decodeBody[StateDTO](t, s.do(http.MethodGet, "/api/tontine", "", nil))
	assert.Equal(t, tontine.PhaseNotStarted, state.Phase)
	members := decodeBody[[]tontine.Member](t, s.do(http.MethodGet, "/api/members", "", nil))
	assert.Len(t, members, 1)
	afterEvents := decodeBody[[]any](t, s.do(http.MethodGet, "/api/tontine/events", "", nil))
	assert.Len(t, afterEvents, len(beforeEvents))
}

// =============================================================================
// STATUS MAPPING
// =============================================================================

func TestHTTP_ErrorStatusMapping(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/tontine", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "before instantiate")
	assert.Equal(t, tontine.CodeConfigNotFound, decodeBody[ErrorResponse](t, rec).Code)

	s.started()

	tests := []struct {
		name   string
		method string
		path   string
		sender tontine.Address
		body   any
		status int
		code   tontine.Code
	}{
		{"missing sender", http.MethodPost, "/api/tontine/pause", "", nil, http.StatusUnauthorized, ""},
		{"malformed body", http.MethodPost, "/api/members", testAdmin, "{", http.StatusBadRequest, ""},
		{"invalid address", http.MethodPost, "/api/members", testAdmin, RegisterMemberRequest{Address: "nope"}, http.StatusBadRequest, tontine.CodeInvalidAddress},
		{"duplicate member", http.MethodPost, "/api/members", testAdmin, RegisterMemberRequest{Address: string(testB1)}, http.StatusConflict, tontine.CodeMemberAlreadyExists},
		{"unknown member", http.MethodGet, "/api/members/" + string(testOutside), "", nil, http.StatusNotFound, tontine.CodeMemberNotFound},
		{"unknown round", http.MethodGet, "/api/rounds/9", "", nil, http.StatusNotFound, tontine.CodeRoundNotFound},
		{"bad round number", http.MethodGet, "/api/rounds/first", "", nil, http.StatusBadRequest, ""},
		{"already started", http.MethodPost, "/api/tontine/start", testAdmin, nil, http.StatusConflict, tontine.CodeTontineAlreadyStarted},
		{"remove during round", http.MethodDelete, "/api/members/" + string(testB2), testAdmin, nil, http.StatusConflict, tontine.CodeCannotReplaceDuringActiveRound},
		{"instantiate twice", http.MethodPost, "/api/tontine", testAdmin, instantiateMsg(testB1), http.StatusConflict, tontine.CodeAlreadyInstantiated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(tt.method, tt.path, tt.sender, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.code != "" {
				assert.Equal(t, tt.code, decodeBody[ErrorResponse](t, rec).Code)
			}
		})
	}
}

func TestHTTP_InstantiateValidation(t *testing.T) {
	s := newTestServer(t)

	msg := instantiateMsg(testB1)
	msg.ProtocolFees = "1000"
	rec := s.do(http.MethodPost, "/api/tontine", testAdmin, msg)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, tontine.CodeInvalidProtocolFeesAmount, decodeBody[ErrorResponse](t, rec).Code)

	rec = s.do(http.MethodPost, "/api/tontine", testAdmin, `{"admin":"x","unknown":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/api/tontine/config", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "nothing was saved")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{tontine.ErrValidation, http.StatusBadRequest},
		{tontine.ErrUnauthorized, http.StatusForbidden},
		{tontine.ErrNotFound, http.StatusNotFound},
		{tontine.ErrConflict, http.StatusConflict},
		{tontine.ErrTiming, http.StatusConflict},
		{tontine.ErrArithmetic, http.StatusUnprocessableEntity},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, StatusFor(tt.err), tt.err.Error())
	}
}

// =============================================================================
// READ SURFACE
// =============================================================================

func TestHTTP_ConfigRoundTrip(t *testing.T) {
	s := newTestServer(t)
	s.started()

	cfg := decodeBody[tontine.InstantiateMsg](t, s.do(http.MethodGet, "/api/tontine/config", "", nil))
	assert.Equal(t, instantiateMsg(testB1, testB2), cfg)
}

func TestHTTP_EngineOptions(t *testing.T) {
	s := newTestServer(t, func(o *tontine.Options) { o.AdvancePolicy = tontine.AdvanceOnDistribution })

	dto := decodeBody[EngineDTO](t, s.do(http.MethodGet, "/api/engine", "", nil))
	assert.Equal(t, tontine.DefaultAddressPrefix, dto.AddressPrefix)
	assert.Equal(t, tontine.AdvanceOnDistribution, dto.AdvancePolicy)
}

func TestHTTP_Beneficiaries(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/tontine", testAdmin, instantiateMsg(testB1, testB2)).Code)

	dto := decodeBody[BeneficiariesDTO](t, s.do(http.MethodGet, "/api/beneficiaries", "", nil))
	assert.Empty(t, dto.Current, "no round before start")
	assert.Empty(t, dto.Next, "schedule is frozen at start")
	assert.Equal(t, []tontine.Address{testB1, testB2}, dto.Beneficiaries)

	for _, b := range []tontine.Address{testB1, testB2} {
		require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/members", testAdmin, RegisterMemberRequest{Address: string(b)}).Code)
	}
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/tontine/start", testAdmin, nil).Code)

	dto = decodeBody[BeneficiariesDTO](t, s.do(http.MethodGet, "/api/beneficiaries", "", nil))
	assert.Equal(t, testB1, dto.Current)
	assert.Equal(t, testB2, dto.Next)

	schedule := decodeBody[[]tontine.ScheduleEntry](t, s.do(http.MethodGet, "/api/beneficiaries/schedule", "", nil))
	require.Len(t, schedule, 2)
	assert.Equal(t, uint64(2), schedule[1].Round)
	assert.Equal(t, testB2, schedule[1].Beneficiary)
}

func TestHTTP_EmptyListsAreArrays(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/tontine", testAdmin, instantiateMsg(testB1)).Code)

	for _, path := range []string{
		"/api/members",
		"/api/rounds",
		"/api/history/deposits",
		"/api/history/distributions",
		"/api/history/penalties",
		"/api/disputes",
	} {
		rec := s.do(http.MethodGet, path, "", nil)
		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.JSONEq(t, "[]", rec.Body.String(), path)
	}
}

func TestHTTP_MemberPenalties(t *testing.T) {
	s := newTestServer(t)
	s.started()

	dto := decodeBody[MemberPenaltiesDTO](t, s.do(http.MethodGet, "/api/members/"+string(testB1)+"/penalties", "", nil))
	assert.Equal(t, testB1, dto.Member)
	assert.True(t, dto.Total.IsZero())
	assert.Empty(t, dto.Records)
}

// =============================================================================
// LIFECYCLE, ADVANCE, STUBS
// =============================================================================

func TestHTTP_FullCycleWithManualAdvance(t *testing.T) {
	s := newTestServer(t)
	s.started()

	for round := 1; round <= 2; round++ {
		for _, b := range []tontine.Address{testB1, testB2} {
			rec := s.do(http.MethodPost, "/api/rounds/current/deposits", b, nil)
			require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		}
		s.clock.Advance(25 * time.Hour)
		rec := s.do(http.MethodPost, "/api/rounds/current/distribute", testArbiter, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		if round == 1 {
			rec = s.do(http.MethodPost, "/api/rounds/advance", testAdmin, nil)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		}
	}

	rec := s.do(http.MethodPost, "/api/rounds/advance", testAdmin, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, tontine.CodeNoRemainingRounds, decodeBody[ErrorResponse](t, rec).Code)

	rec = s.do(http.MethodPost, "/api/tontine/finalize", testAdmin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	stats := decodeBody[tontine.Statistics](t, s.do(http.MethodGet, "/api/tontine/statistics", "", nil))
	assert.Equal(t, 2, stats.CompletedRounds)
	assert.Equal(t, "4000", stats.TotalContributions.String())
	assert.Equal(t, "3960", stats.TotalDistributions.String())
	assert.Equal(t, "40", stats.TotalFees.String())

	deposits := decodeBody[[]tontine.DepositRecord](t, s.do(http.MethodGet, "/api/history/deposits", "", nil))
	assert.Len(t, deposits, 4)

	state := decodeBody[StateDTO](t, s.do(http.MethodGet, "/api/tontine", "", nil))
	assert.Equal(t, tontine.PhaseFinished, state.Phase)
}

func TestHTTP_PauseResumeClose(t *testing.T) {
	s := newTestServer(t)
	s.started()

	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/tontine/pause", testAdmin, nil).Code)

	rec := s.do(http.MethodPost, "/api/rounds/current/deposits", testB1, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, tontine.CodeTontinePaused, decodeBody[ErrorResponse](t, rec).Code)

	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/tontine/resume", testAdmin, nil).Code)
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/tontine/close", testAdmin, CloseRequest{Reason: "group dissolved"}).Code)

	state := decodeBody[StateDTO](t, s.do(http.MethodGet, "/api/tontine", "", nil))
	assert.Equal(t, tontine.PhaseFinished, state.Phase)
	assert.Equal(t, "group dissolved", state.CloseReason)
}

func TestHTTP_CloseWithoutBody(t *testing.T) {
	s := newTestServer(t)
	s.started()

	rec := s.do(http.MethodPost, "/api/tontine/close", testAdmin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestHTTP_ReplaceMember(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/tontine", testAdmin, instantiateMsg(testB1, testB2)).Code)
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/members", testAdmin, RegisterMemberRequest{Address: string(testB1)}).Code)

	rec := s.do(http.MethodPost, "/api/members/replace", testAdmin, ReplaceMemberRequest{
		OldMember: string(testB1),
		NewMember: string(testOutside),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	old := decodeBody[tontine.Member](t, s.do(http.MethodGet, "/api/members/"+string(testB1), "", nil))
	assert.Equal(t, tontine.MemberReplaced, old.Status)
	assert.Equal(t, testOutside, old.ReplacedBy)
}

func TestHTTP_DeferredOperations(t *testing.T) {
	// GIVEN: A running tontine
	// WHEN: Calling each penalty, fee, dispute, and advance-payment route
	// THEN: Each is accepted with a deferred receipt and nothing else changes

	s := newTestServer(t)
	s.started()
	member := MemberRequest{Member: string(testB1)}

	calls := []struct {
		path   string
		sender tontine.Address
		body   any
	}{
		{"/api/penalties/declare-late", testArbiter, member},
		{"/api/penalties/apply", testAdmin, ApplyPenaltyRequest{Member: string(testB1), Amount: "50", Reason: "late"}},
		{"/api/penalties/pay", testB1, member},
		{"/api/fees/withdraw", testAdmin, WithdrawFeesRequest{Amount: "5"}},
		{"/api/fees/collect", testAdmin, nil},
		{"/api/disputes/resolve", testAdmin, DisputeDecisionRequest{Member: string(testB1), Decision: "upheld"}},
		{"/api/disputes/arbitrate", testArbiter, DisputeDecisionRequest{Member: string(testB1), Decision: "dismissed"}},
		{"/api/advance-payment", testAdmin, AdvancePaymentRequest{Beneficiary: string(testB2), Discount: "5"}},
		{"/api/tontine/migrate", testAdmin, MigrateRequest{NewCodeID: 7, Note: "v2"}},
	}
	for _, c := range calls {
		rec := s.do(http.MethodPost, c.path, c.sender, c.body)
		require.Equal(t, http.StatusAccepted, rec.Code, c.path+": "+rec.Body.String())
		assert.Equal(t, tontine.EffectDeferred, decodeBody[tontine.Receipt](t, rec).Effect, c.path)
	}

	m := decodeBody[tontine.Member](t, s.do(http.MethodGet, "/api/members/"+string(testB1), "", nil))
	assert.True(t, m.Penalties.IsZero())
	balance := decodeBody[BalanceDTO](t, s.do(http.MethodGet, "/api/tontine/balance", "", nil))
	assert.True(t, balance.AccumulatedFees.IsZero())

	rec := s.do(http.MethodPost, "/api/disputes/arbitrate", testAdmin, DisputeDecisionRequest{Member: string(testB1)})
	assert.Equal(t, http.StatusForbidden, rec.Code, "arbitration stays arbitrator-only")
}

func TestHTTP_MetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.do(http.MethodGet, "/api/tontine", "", nil)

	rec := s.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tontine_http_requests_total")
}
