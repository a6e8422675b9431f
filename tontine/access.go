package tontine

import (
	"sort"
	"strings"
)

// =============================================================================
// ACTIONS
// =============================================================================

type Action string

const (
	ActionInstantiate         Action = "instantiate"
	ActionRegisterMember      Action = "register_member"
	ActionRemoveMember        Action = "remove_member"
	ActionReplaceMember       Action = "replace_member"
	ActionStartTontine        Action = "start_tontine"
	ActionPauseTontine        Action = "pause_tontine"
	ActionResumeTontine       Action = "resume_tontine"
	ActionCloseEarly          Action = "close_early"
	ActionFinalizeTontine     Action = "finalize_tontine"
	ActionDepositContribution Action = "deposit_contribution"
	ActionDistribute          Action = "distribute_to_beneficiary"
	ActionAdvanceRound        Action = "advance_round"
	ActionAdvancePayment      Action = "advance_payment"
	ActionDeclareLate         Action = "declare_late"
	ActionApplyPenalty        Action = "apply_penalty"
	ActionPayPenalty          Action = "pay_penalty"
	ActionWithdrawFees        Action = "withdraw_fees"
	ActionCollectProtocolFees Action = "collect_protocol_fees"
	ActionResolveDispute      Action = "resolve_dispute"
	ActionArbitrateDispute    Action = "arbitrate_dispute"
	ActionMigrate             Action = "migrate"
)

// =============================================================================
// ROLES
// =============================================================================

type Role string

const (
	RoleAdmin      Role = "admin"
	RoleArbitrator Role = "arbitrator"
	RoleSelf       Role = "self"
	RoleAny        Role = "any"
)

// RoleSet is satisfied when the caller holds any one of its roles.
type RoleSet []Role

func (rs RoleSet) String() string {
	parts := make([]string, len(rs))
	for i, r := range rs {
		parts[i] = string(r)
	}
	return strings.Join(parts, " or ")
}

func (rs RoleSet) contains(r Role) bool {
	for _, x := range rs {
		if x == r {
			return true
		}
	}
	return false
}

// =============================================================================
// ACCESS POLICY
// =============================================================================

// AccessPolicy maps every action to the roles allowed to perform it.
// An action missing from the table is denied.
type AccessPolicy map[Action]RoleSet

// DefaultAccessPolicy is the role table of the engine.
var DefaultAccessPolicy = AccessPolicy{
	ActionInstantiate:         {RoleAny},
	ActionRegisterMember:      {RoleAdmin},
	ActionRemoveMember:        {RoleAdmin},
	ActionReplaceMember:       {RoleAdmin},
	ActionStartTontine:        {RoleAdmin},
	ActionPauseTontine:        {RoleAdmin},
	ActionResumeTontine:       {RoleAdmin},
	ActionCloseEarly:          {RoleAdmin},
	ActionFinalizeTontine:     {RoleAdmin},
	ActionDepositContribution: {RoleAny},
	ActionDistribute:          {RoleAdmin, RoleArbitrator},
	ActionAdvanceRound:        {RoleAdmin, RoleArbitrator},
	ActionAdvancePayment:      {RoleAdmin},
	ActionDeclareLate:         {RoleAdmin, RoleArbitrator},
	ActionApplyPenalty:        {RoleAdmin, RoleArbitrator},
	ActionPayPenalty:          {RoleSelf},
	ActionWithdrawFees:        {RoleAdmin},
	ActionCollectProtocolFees: {RoleAdmin},
	ActionResolveDispute:      {RoleAdmin},
	ActionArbitrateDispute:    {RoleArbitrator},
	ActionMigrate:             {RoleAdmin},
}

// Roles returns every role sender holds for an action targeting target.
// target is empty when the action names no member.
func Roles(cfg *Config, sender, target Address) RoleSet {
	roles := RoleSet{RoleAny}
	if sender == "" {
		return roles
	}
	if cfg != nil && sender == cfg.Admin {
		roles = append(roles, RoleAdmin)
	}
	if cfg != nil && sender == cfg.Arbitrator {
		roles = append(roles, RoleArbitrator)
	}
	if target != "" && sender == target {
		roles = append(roles, RoleSelf)
	}
	return roles
}

// Authorize returns nil when sender may perform action, or an ErrUnauthorized
// *Error naming the required roles.
func (p AccessPolicy) Authorize(cfg *Config, action Action, sender, target Address) error {
	required, ok := p[action]
	if !ok {
		return unauthorized(action, sender, RoleSet{})
	}
	for _, r := range Roles(cfg, sender, target) {
		if required.contains(r) {
			return nil
		}
	}
	return unauthorized(action, sender, required)
}

// Actions lists the table in a stable order, for docs and the API.
func (p AccessPolicy) Actions() []Action {
	out := make([]Action, 0, len(p))
	for a := range p {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
