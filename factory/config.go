/*
Package factory converts the JSON creation command into a tontine.Config.

PURPOSE:
  Operators describe a tontine in JSON (HTTP body, CLI file, scenario
  fixture). The factory parses it, applies the chain prefix check and the
  consistency rules, and hands back both the wire message and the Config
  it produces, so callers can reject bad input before touching a store.

JSON SCHEMA:
  {
    "admin": "addr_safro1admin...",
    "token_denom": "usafro",
    "contribution_amount": "1000",
    "round_frequency": 604800,
    "beneficiaries": ["addr_safro1...", "addr_safro1..."],
    "late_penalty": "50",
    "protocol_fees": "10",
    "arbitrator": "addr_safro1arb...",
    "time_guards": 3600
  }
  Amounts are decimal strings; durations are whole seconds.

PRESETS:
  WeeklyJSON and MonthlyJSON build common shapes for demos and tests.

SEE ALSO:
  - tontine/validation.go: InstantiateMsg and Config.Validate
  - api/scenarios.go: Scenario fixtures built from presets
*/
package factory

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/warp/tontine-engine/tontine"
)

const (
	Week  = 7 * 24 * time.Hour
	Month = 30 * 24 * time.Hour

	DefaultTimeGuards = time.Hour
)

// =============================================================================
// CONFIG FACTORY
// =============================================================================

// ConfigFactory parses creation commands for one address prefix.
type ConfigFactory struct {
	AddressPrefix string
}

func NewConfigFactory(prefix string) *ConfigFactory {
	if prefix == "" {
		prefix = tontine.DefaultAddressPrefix
	}
	return &ConfigFactory{AddressPrefix: prefix}
}

// ParseInstantiate decodes and validates a JSON creation command. Unknown
// fields are rejected.
func (f *ConfigFactory) ParseInstantiate(jsonStr string) (tontine.InstantiateMsg, *tontine.Config, error) {
	var msg tontine.InstantiateMsg
	dec := json.NewDecoder(strings.NewReader(jsonStr))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&msg); err != nil {
		return tontine.InstantiateMsg{}, nil, fmt.Errorf("invalid instantiate JSON: %w", err)
	}

	cfg, err := f.FromMsg(msg)
	if err != nil {
		return tontine.InstantiateMsg{}, nil, err
	}
	return msg, cfg, nil
}

// FromMsg converts and validates a decoded message.
func (f *ConfigFactory) FromMsg(msg tontine.InstantiateMsg) (*tontine.Config, error) {
	cfg, err := msg.Config()
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateAddresses(f.AddressPrefix); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ToMsg converts a Config back to its wire form.
func (f *ConfigFactory) ToMsg(cfg *tontine.Config) tontine.InstantiateMsg {
	beneficiaries := make([]string, len(cfg.Beneficiaries))
	for i, b := range cfg.Beneficiaries {
		beneficiaries[i] = string(b)
	}
	return tontine.InstantiateMsg{
		Admin:              string(cfg.Admin),
		TokenDenom:         cfg.Denom,
		ContributionAmount: cfg.Contribution.String(),
		RoundFrequency:     uint64(cfg.RoundFrequency / time.Second),
		Beneficiaries:      beneficiaries,
		LatePenalty:        cfg.LatePenalty.String(),
		ProtocolFees:       cfg.ProtocolFee.String(),
		Arbitrator:         string(cfg.Arbitrator),
		TimeGuards:         uint64(cfg.TimeGuards / time.Second),
	}
}

// =============================================================================
// PRESETS
// =============================================================================

// Preset describes the people and money of a tontine; the frequency comes
// from the preset function.
type Preset struct {
	Admin         string
	Arbitrator    string
	Denom         string
	Contribution  string
	LatePenalty   string
	ProtocolFees  string
	Beneficiaries []string
}

// WeeklyJSON returns a creation command with weekly rounds.
func WeeklyJSON(p Preset) string {
	return presetJSON(p, Week)
}

// MonthlyJSON returns a creation command with 30-day rounds.
func MonthlyJSON(p Preset) string {
	return presetJSON(p, Month)
}

func presetJSON(p Preset, frequency time.Duration) string {
	msg := tontine.InstantiateMsg{
		Admin:              p.Admin,
		TokenDenom:         p.Denom,
		ContributionAmount: p.Contribution,
		RoundFrequency:     uint64(frequency / time.Second),
		Beneficiaries:      p.Beneficiaries,
		LatePenalty:        p.LatePenalty,
		ProtocolFees:       p.ProtocolFees,
		Arbitrator:         p.Arbitrator,
		TimeGuards:         uint64(DefaultTimeGuards / time.Second),
	}
	b, _ := json.Marshal(msg)
	return string(b)
}
