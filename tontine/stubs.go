package tontine

import (
	"context"
	"strconv"
	"strings"
)

// =============================================================================
// DEFERRED OPERATIONS
//
// Penalty, fee, dispute, advance-payment and migrate commands are fully
// authorized and validated and leave an audit event, but their business
// effect is not implemented: no Penalty record is created or paid, no fees
// move, no dispute changes status, no discount is applied. Each returns a
// Receipt with Effect == EffectDeferred.
// =============================================================================

// requireMember validates the address shape and checks registration.
func (o *op) requireMember(prefix string, addr Address) (*Member, error) {
	if err := ValidateAddress(prefix, addr); err != nil {
		return nil, err
	}
	return o.repo.member(o.ctx, addr)
}

// DeclareLate flags a member as late.
func (e *Engine) DeclareLate(ctx context.Context, call Call, member Address) (*Receipt, error) {
	return e.execute(ctx, call, ActionDeclareLate, "", func(o *op) (*Receipt, error) {
		if _, err := o.requireMember(e.opts.AddressPrefix, member); err != nil {
			return nil, err
		}
		return deferred(ActionDeclareLate, map[string]string{
			"member":       string(member),
			"late_penalty": o.cfg.LatePenalty.String(),
		}), nil
	})
}

// ApplyPenalty charges a member amount for reason.
func (e *Engine) ApplyPenalty(ctx context.Context, call Call, member Address, amount, reason string) (*Receipt, error) {
	return e.execute(ctx, call, ActionApplyPenalty, "", func(o *op) (*Receipt, error) {
		if _, err := o.requireMember(e.opts.AddressPrefix, member); err != nil {
			return nil, err
		}
		a, err := ValidateAmount("penalty amount", amount)
		if err != nil {
			return nil, err
		}
		return deferred(ActionApplyPenalty, map[string]string{
			"member": string(member),
			"amount": a.String(),
			"reason": reason,
		}), nil
	})
}

// PayPenalty settles the caller's own outstanding penalties.
func (e *Engine) PayPenalty(ctx context.Context, call Call, member Address) (*Receipt, error) {
	return e.execute(ctx, call, ActionPayPenalty, member, func(o *op) (*Receipt, error) {
		m, err := o.requireMember(e.opts.AddressPrefix, member)
		if err != nil {
			return nil, err
		}
		return deferred(ActionPayPenalty, map[string]string{
			"member":      string(member),
			"outstanding": m.Penalties.String(),
		}), nil
	})
}

// WithdrawFees moves amount of accumulated fees to the admin.
func (e *Engine) WithdrawFees(ctx context.Context, call Call, amount string) (*Receipt, error) {
	return e.execute(ctx, call, ActionWithdrawFees, "", func(o *op) (*Receipt, error) {
		a, err := ValidateAmount("withdraw amount", amount)
		if err != nil {
			return nil, err
		}
		return deferred(ActionWithdrawFees, map[string]string{"amount": a.String()}), nil
	})
}

// CollectProtocolFees sweeps accumulated fees to the protocol.
func (e *Engine) CollectProtocolFees(ctx context.Context, call Call) (*Receipt, error) {
	return e.execute(ctx, call, ActionCollectProtocolFees, "", func(o *op) (*Receipt, error) {
		fees, err := o.repo.fees(o.ctx)
		if err != nil {
			return nil, err
		}
		return deferred(ActionCollectProtocolFees, map[string]string{"accumulated": fees.Total.String()}), nil
	})
}

// ResolveDispute closes a member's dispute with resolution.
func (e *Engine) ResolveDispute(ctx context.Context, call Call, member Address, resolution string) (*Receipt, error) {
	return e.execute(ctx, call, ActionResolveDispute, "", func(o *op) (*Receipt, error) {
		if _, err := o.requireMember(e.opts.AddressPrefix, member); err != nil {
			return nil, err
		}
		return deferred(ActionResolveDispute, map[string]string{
			"member":     string(member),
			"resolution": resolution,
		}), nil
	})
}

// ArbitrateDispute records the arbitrator's decision on a member's dispute.
func (e *Engine) ArbitrateDispute(ctx context.Context, call Call, member Address, decision string) (*Receipt, error) {
	return e.execute(ctx, call, ActionArbitrateDispute, "", func(o *op) (*Receipt, error) {
		if _, err := o.requireMember(e.opts.AddressPrefix, member); err != nil {
			return nil, err
		}
		return deferred(ActionArbitrateDispute, map[string]string{
			"member":   string(member),
			"decision": decision,
		}), nil
	})
}

// AdvancePayment pays a beneficiary ahead of schedule at a discount.
func (e *Engine) AdvancePayment(ctx context.Context, call Call, beneficiary Address, discount string) (*Receipt, error) {
	return e.execute(ctx, call, ActionAdvancePayment, "", func(o *op) (*Receipt, error) {
		if !o.cfg.IsBeneficiary(beneficiary) {
			return nil, invalidMemberManagement("address is not a configured beneficiary").
				withEntity(string(beneficiary))
		}
		d, err := ValidateDiscount(discount)
		if err != nil {
			return nil, err
		}
		return deferred(ActionAdvancePayment, map[string]string{
			"beneficiary": string(beneficiary),
			"discount":    strconv.FormatUint(d, 10),
		}), nil
	})
}

// Migrate records an upgrade request to newCodeID.
func (e *Engine) Migrate(ctx context.Context, call Call, newCodeID uint64, note string) (*Receipt, error) {
	return e.execute(ctx, call, ActionMigrate, "", func(o *op) (*Receipt, error) {
		if newCodeID == 0 {
			return nil, validationError(CodeInvalidMigration, "new code id must be non-zero")
		}
		attrs := map[string]string{"new_code_id": strconv.FormatUint(newCodeID, 10)}
		if note = strings.TrimSpace(note); note != "" {
			attrs["note"] = note
		}
		return deferred(ActionMigrate, attrs), nil
	})
}
