package core

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func validOdds() OddsSet {
	return OddsSet{
		StageLeague:     31,
		StagePlayoff:    4.3,
		StageLast16:     4.0,
		StageQuarter:    4.3,
		StageSemi:       5.5,
		OutcomeRunnerUp: 9,
		OutcomeWinner:   9,
	}
}

func TestOddsSetValidate(t *testing.T) {
	if err := validOdds().Validate(); err != nil {
		t.Fatalf("valid set rejected: %v", err)
	}

	missing := validOdds()
	delete(missing, OutcomeWinner)
	if err := missing.Validate(); err == nil {
		t.Error("set missing an outcome accepted")
	}

	low := validOdds()
	low[StageSemi] = 1.0
	if err := low.Validate(); !errors.Is(err, ErrInvalidOdds) {
		t.Errorf("odds at 1.0: err = %v, want ErrInvalidOdds", err)
	}
}

func TestHedgePlanValidate(t *testing.T) {
	plan := HedgePlan{
		StageLeague: {Stake: decimal.NewFromInt(100), PlacementMonth: 0},
		StageSemi:   {Stake: decimal.NewFromInt(50), PlacementMonth: 6.5},
	}
	if err := plan.Validate(); err != nil {
		t.Fatalf("valid plan rejected: %v", err)
	}
	if !plan.TotalStake().Equal(decimal.NewFromInt(150)) {
		t.Errorf("total stake = %s, want 150", plan.TotalStake())
	}

	bad := HedgePlan{OutcomeWinner: {Stake: decimal.NewFromInt(10)}}
	if err := bad.Validate(); err == nil {
		t.Error("hedge on a terminal outcome accepted")
	}

	negative := HedgePlan{StageLeague: {Stake: decimal.NewFromInt(-1)}}
	if err := negative.Validate(); err == nil {
		t.Error("negative stake accepted")
	}
}

func TestConfigValidate(t *testing.T) {
	base := Config{
		TicketPrice: decimal.NewFromInt(4185),
		TicketCount: 2,
		ResalePrice: decimal.NewFromInt(6000),
		SaleMonth:   9,
		OddsFormat:  FormatDecimal,
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero tickets", func(c *Config) { c.TicketCount = 0 }},
		{"resale fee at 1", func(c *Config) { c.ResaleFeeRate = 1 }},
		{"negative processing fee", func(c *Config) { c.ProcessingFeeRate = -0.1 }},
		{"investor share above 1", func(c *Config) { c.InvestorShare = 1.5 }},
		{"negative sale month", func(c *Config) { c.SaleMonth = -1 }},
		{"bad odds format", func(c *Config) { c.OddsFormat = "fractional" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("%s accepted", tc.name)
			}
		})
	}

	// A negative funding rate models earning interest and is allowed.
	cfg := base
	cfg.AnnualRate = -2
	if err := cfg.Validate(); err != nil {
		t.Errorf("negative annual rate rejected: %v", err)
	}
}

func TestConfigDerivedAmounts(t *testing.T) {
	cfg := Config{
		TicketPrice:       decimal.NewFromInt(4185),
		TicketCount:       2,
		ResaleFeeRate:     0.15,
		ProcessingFeeRate: 0.03,
	}
	if !cfg.PurchaseCost().Equal(decimal.NewFromInt(8370)) {
		t.Errorf("purchase cost = %s, want 8370", cfg.PurchaseCost())
	}
	if got := cfg.NetFeeRate(); got < 0.8199 || got > 0.8201 {
		t.Errorf("net fee rate = %v, want ~0.82", got)
	}
}

func TestMergeFlows(t *testing.T) {
	merged := MergeFlows([]CashFlow{
		{Month: 9, Amount: decimal.NewFromInt(1350)},
		{Month: 0, Amount: decimal.NewFromInt(-1000)},
		{Month: 0, Amount: decimal.NewFromInt(-100)},
		{Month: 9, Amount: decimal.NewFromInt(-50)},
		{Month: 3, Amount: decimal.NewFromInt(40)},
		{Month: 3, Amount: decimal.NewFromInt(-40)},
	})

	if len(merged) != 2 {
		t.Fatalf("merged = %+v, want two months (the month 3 pair cancels)", merged)
	}
	if merged[0].Month != 0 || !merged[0].Amount.Equal(decimal.NewFromInt(-1100)) {
		t.Errorf("merged[0] = %+v, want month 0 amount -1100", merged[0])
	}
	if merged[1].Month != 9 || !merged[1].Amount.Equal(decimal.NewFromInt(1300)) {
		t.Errorf("merged[1] = %+v, want month 9 amount 1300", merged[1])
	}
}
