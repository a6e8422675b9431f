package tontine

import (
	"context"
)

// =============================================================================
// MEMBER LIFECYCLE
// =============================================================================

// RegisterMember adds addr as an Active member with zero balance.
func (e *Engine) RegisterMember(ctx context.Context, call Call, addr Address) (*Receipt, error) {
	return e.execute(ctx, call, ActionRegisterMember, "", func(o *op) (*Receipt, error) {
		if err := ValidateAddress(e.opts.AddressPrefix, addr); err != nil {
			return nil, err
		}
		exists, err := o.repo.hasMember(o.ctx, addr)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, memberAlreadyExists(addr)
		}

		m := &Member{
			Address:      addr,
			Status:       MemberActive,
			RegisteredAt: o.call.Now,
		}
		if err := o.repo.saveMember(o.ctx, m); err != nil {
			return nil, err
		}
		return applied(ActionRegisterMember, map[string]string{"member": string(addr)}), nil
	})
}

// RemoveMember deletes addr. Not allowed while a round is in progress or
// while the member owes penalties.
func (e *Engine) RemoveMember(ctx context.Context, call Call, addr Address) (*Receipt, error) {
	return e.execute(ctx, call, ActionRemoveMember, "", func(o *op) (*Receipt, error) {
		if o.state.RoundInProgress() {
			return nil, cannotReplaceDuringActiveRound(o.state)
		}
		m, err := o.repo.member(o.ctx, addr)
		if err != nil {
			return nil, err
		}
		if m.Penalties.IsPositive() {
			return nil, memberHasPenalties(m)
		}

		if err := o.repo.removeMember(o.ctx, addr); err != nil {
			return nil, err
		}
		return applied(ActionRemoveMember, map[string]string{"member": string(addr)}), nil
	})
}

// ReplaceMember retires oldAddr (kept as Replaced) and registers newAddr with
// the old member's balance and last contribution.
func (e *Engine) ReplaceMember(ctx context.Context, call Call, oldAddr, newAddr Address) (*Receipt, error) {
	return e.execute(ctx, call, ActionReplaceMember, "", func(o *op) (*Receipt, error) {
		if o.state.RoundInProgress() {
			return nil, cannotReplaceDuringActiveRound(o.state)
		}
		if err := ValidateAddress(e.opts.AddressPrefix, newAddr); err != nil {
			return nil, err
		}

		old, err := o.repo.member(o.ctx, oldAddr)
		if err != nil {
			return nil, err
		}
		exists, err := o.repo.hasMember(o.ctx, newAddr)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, memberAlreadyExists(newAddr)
		}
		if old.Penalties.IsPositive() {
			return nil, memberHasPenalties(old)
		}

		successor := &Member{
			Address:          newAddr,
			Status:           MemberActive,
			Balance:          old.Balance,
			LastContribution: old.LastContribution,
			RegisteredAt:     o.call.Now,
		}
		old.Status = MemberReplaced
		old.ReplacedBy = newAddr

		if err := o.repo.saveMember(o.ctx, old); err != nil {
			return nil, err
		}
		if err := o.repo.saveMember(o.ctx, successor); err != nil {
			return nil, err
		}
		return applied(ActionReplaceMember, map[string]string{
			"old_member": string(oldAddr),
			"new_member": string(newAddr),
			"balance":    successor.Balance.String(),
		}), nil
	})
}
