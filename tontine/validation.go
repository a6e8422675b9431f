package tontine

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/warp/tontine-engine/generic"
)

// =============================================================================
// VALIDATION - Pure checks, no state
// =============================================================================

const (
	DefaultAddressPrefix = "addr_safro"

	MinAddressLength = 20
	MaxAddressLength = 50

	MaxDiscountPercent = 100
)

// ValidateAmount parses a non-negative integer amount string.
func ValidateAmount(field, s string) (generic.Amount, error) {
	a, err := generic.ParseAmount(s)
	if err != nil {
		return generic.Amount{}, invalidAmount(field, err)
	}
	return a, nil
}

// ValidateAddress checks the member address shape: non-empty, carrying the
// chain prefix, length within [MinAddressLength, MaxAddressLength].
func ValidateAddress(prefix string, addr Address) error {
	s := string(addr)
	switch {
	case s == "":
		return validationError(CodeInvalidAddress, "address is empty")
	case !strings.HasPrefix(s, prefix):
		return validationError(CodeInvalidAddress, "address has wrong prefix").
			withEntity(s).
			withState(prefix, s)
	case len(s) < MinAddressLength || len(s) > MaxAddressLength:
		return validationError(CodeInvalidAddress, "address length out of range").
			withEntity(s).
			withState(fmt.Sprintf("%d..%d", MinAddressLength, MaxAddressLength), strconv.Itoa(len(s)))
	}
	return nil
}

// ValidateDiscount parses an advance-payment discount percentage.
func ValidateDiscount(s string) (uint64, error) {
	d, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, validationError(CodeInvalidDiscount, "discount is not an integer").wrap(err)
	}
	if d > MaxDiscountPercent {
		return 0, validationError(CodeInvalidDiscount, "discount exceeds 100 percent").
			withState("0..100", strconv.FormatUint(d, 10))
	}
	return d, nil
}

// Validate checks configuration consistency. Address shapes are checked
// separately by ValidateAddresses because they depend on the chain prefix.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Denom) == "" {
		return validationError(CodeInvalidDenom, "token denom is empty")
	}
	if !c.Contribution.IsPositive() {
		return validationError(CodeInvalidContributionAmount, "contribution must be positive").
			withState("> 0", c.Contribution.String())
	}
	if c.RoundFrequency <= 0 {
		return validationError(CodeInvalidRoundFrequency, "round frequency must be positive").
			withState("> 0", c.RoundFrequency.String())
	}
	if len(c.Beneficiaries) == 0 {
		return validationError(CodeInvalidBeneficiariesList, "beneficiaries list is empty")
	}
	seen := make(map[Address]bool, len(c.Beneficiaries))
	for _, b := range c.Beneficiaries {
		if seen[b] {
			return validationError(CodeInvalidBeneficiariesList, "duplicate beneficiary").withEntity(string(b))
		}
		seen[b] = true
	}
	if !c.LatePenalty.LessThan(c.Contribution) {
		return validationError(CodeInvalidLatePenaltyAmount, "late penalty must be below contribution").
			withState("< "+c.Contribution.String(), c.LatePenalty.String())
	}
	if !c.ProtocolFee.LessThan(c.Contribution) {
		return validationError(CodeInvalidProtocolFeesAmount, "protocol fees must be below contribution").
			withState("< "+c.Contribution.String(), c.ProtocolFee.String())
	}
	if c.TimeGuards <= 0 {
		return validationError(CodeInvalidTimeGuards, "time guards must be positive").
			withState("> 0", c.TimeGuards.String())
	}
	return nil
}

// ValidateAddresses checks admin, arbitrator, and every beneficiary.
func (c *Config) ValidateAddresses(prefix string) error {
	if err := ValidateAddress(prefix, c.Admin); err != nil {
		return err
	}
	if err := ValidateAddress(prefix, c.Arbitrator); err != nil {
		return err
	}
	for _, b := range c.Beneficiaries {
		if err := ValidateAddress(prefix, b); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// CREATION COMMAND
// =============================================================================

// InstantiateMsg is the wire shape of the creation command. Amounts are
// decimal strings, durations are whole seconds.
type InstantiateMsg struct {
	Admin              string   `json:"admin"`
	TokenDenom         string   `json:"token_denom"`
	ContributionAmount string   `json:"contribution_amount"`
	RoundFrequency     uint64   `json:"round_frequency"`
	Beneficiaries      []string `json:"beneficiaries"`
	LatePenalty        string   `json:"late_penalty"`
	ProtocolFees       string   `json:"protocol_fees"`
	Arbitrator         string   `json:"arbitrator"`
	TimeGuards         uint64   `json:"time_guards"`
}

// Config parses amounts and converts the message. It does not validate
// consistency; see Config.Validate.
func (m InstantiateMsg) Config() (Config, error) {
	contribution, err := ValidateAmount("contribution_amount", m.ContributionAmount)
	if err != nil {
		return Config{}, err
	}
	latePenalty, err := ValidateAmount("late_penalty", m.LatePenalty)
	if err != nil {
		return Config{}, err
	}
	protocolFees, err := ValidateAmount("protocol_fees", m.ProtocolFees)
	if err != nil {
		return Config{}, err
	}
	frequency, err := seconds(CodeInvalidRoundFrequency, "round_frequency", m.RoundFrequency)
	if err != nil {
		return Config{}, err
	}
	guards, err := seconds(CodeInvalidTimeGuards, "time_guards", m.TimeGuards)
	if err != nil {
		return Config{}, err
	}

	beneficiaries := make([]Address, len(m.Beneficiaries))
	for i, b := range m.Beneficiaries {
		beneficiaries[i] = Address(b)
	}

	return Config{
		Admin:          Address(m.Admin),
		Arbitrator:     Address(m.Arbitrator),
		Denom:          m.TokenDenom,
		Contribution:   contribution,
		RoundFrequency: frequency,
		Beneficiaries:  beneficiaries,
		LatePenalty:    latePenalty,
		ProtocolFee:    protocolFees,
		TimeGuards:     guards,
	}, nil
}

// maxSeconds is the largest whole-second count a time.Duration can hold.
const maxSeconds = uint64(math.MaxInt64 / int64(time.Second))

func seconds(code Code, field string, n uint64) (time.Duration, error) {
	if n > maxSeconds {
		return 0, validationError(code, field+" is too large").
			withState(fmt.Sprintf("<= %d", maxSeconds), strconv.FormatUint(n, 10))
	}
	return time.Duration(n) * time.Second, nil
}
