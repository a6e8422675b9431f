package factory_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/tontine-engine/factory"
	"github.com/warp/tontine-engine/tontine"
)

var preset = factory.Preset{
	Admin:         "addr_safro1admin00000000000",
	Arbitrator:    "addr_safro1arbitrator000000",
	Denom:         "usafro",
	Contribution:  "1000",
	LatePenalty:   "50",
	ProtocolFees:  "10",
	Beneficiaries: []string{"addr_safro1bene1000000000", "addr_safro1bene2000000000"},
}

func TestParseInstantiate_WeeklyPreset(t *testing.T) {
	f := factory.NewConfigFactory("")

	msg, cfg, err := f.ParseInstantiate(factory.WeeklyJSON(preset))
	require.NoError(t, err)

	assert.Equal(t, uint64(604800), msg.RoundFrequency)
	assert.Equal(t, factory.Week, cfg.RoundFrequency)
	assert.Equal(t, time.Hour, cfg.TimeGuards)
	assert.Equal(t, "1000", cfg.Contribution.String())
	assert.Equal(t, "10", cfg.ProtocolFee.String())
	assert.Equal(t, tontine.Address(preset.Admin), cfg.Admin)
	assert.Len(t, cfg.Beneficiaries, 2)
}

func TestParseInstantiate_MonthlyPreset(t *testing.T) {
	_, cfg, err := factory.NewConfigFactory("").ParseInstantiate(factory.MonthlyJSON(preset))
	require.NoError(t, err)
	assert.Equal(t, factory.Month, cfg.RoundFrequency)
}

func TestParseInstantiate_Rejections(t *testing.T) {
	f := factory.NewConfigFactory("")

	tests := []struct {
		name string
		json string
		code tontine.Code
	}{
		{
			name: "fee equals contribution",
			json: `{"admin":"addr_safro1admin00000000000","token_denom":"usafro","contribution_amount":"10","round_frequency":60,"beneficiaries":["addr_safro1bene1000000000"],"late_penalty":"1","protocol_fees":"10","arbitrator":"addr_safro1arbitrator000000","time_guards":60}`,
			code: tontine.CodeInvalidProtocolFeesAmount,
		},
		{
			name: "negative amount",
			json: `{"admin":"addr_safro1admin00000000000","token_denom":"usafro","contribution_amount":"-5","round_frequency":60,"beneficiaries":["addr_safro1bene1000000000"],"late_penalty":"1","protocol_fees":"1","arbitrator":"addr_safro1arbitrator000000","time_guards":60}`,
			code: tontine.CodeInvalidAmount,
		},
		{
			name: "wrong admin prefix",
			json: `{"admin":"cosmos1admin0000000000000","token_denom":"usafro","contribution_amount":"100","round_frequency":60,"beneficiaries":["addr_safro1bene1000000000"],"late_penalty":"1","protocol_fees":"1","arbitrator":"addr_safro1arbitrator000000","time_guards":60}`,
			code: tontine.CodeInvalidAddress,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := f.ParseInstantiate(tt.json)
			require.Error(t, err)
			assert.ErrorIs(t, err, tontine.ErrValidation)
			assert.Equal(t, tt.code, tontine.CodeOf(err))
		})
	}
}

func TestParseInstantiate_MalformedJSON(t *testing.T) {
	f := factory.NewConfigFactory("")

	_, _, err := f.ParseInstantiate(`{"admin":`)
	assert.Error(t, err)

	_, _, err = f.ParseInstantiate(`{"admin":"x","colour":"blue"}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "colour")
}

func TestParseInstantiate_CustomPrefix(t *testing.T) {
	// GIVEN: A factory for a different chain prefix
	// WHEN: Parsing a preset built with addr_safro addresses
	// THEN: The addresses are rejected

	f := factory.NewConfigFactory("addr_test")
	_, _, err := f.ParseInstantiate(factory.WeeklyJSON(preset))
	assert.Equal(t, tontine.CodeInvalidAddress, tontine.CodeOf(err))
}

func TestToMsg_RoundTrip(t *testing.T) {
	f := factory.NewConfigFactory("")
	msg, cfg, err := f.ParseInstantiate(factory.WeeklyJSON(preset))
	require.NoError(t, err)

	assert.Equal(t, msg, f.ToMsg(cfg))
}
