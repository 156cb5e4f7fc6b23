// Package config reads and writes the desk configuration file: the deal
// parameters, the odds board, the hedge plan, and the daemon settings.
//
// Loading merges the file over built-in defaults and applies CUPRUN_*
// environment overrides. A file that cannot be read, parsed, or validated
// falls back to the defaults in full; partial merges of broken files are
// never produced.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/phenomenon0/cuprun/core"
	"github.com/phenomenon0/cuprun/pkg/engine/analysis"
	"github.com/phenomenon0/cuprun/pkg/engine/odds"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// File is the on-disk configuration shape.
type File struct {
	Deal   DealConfig   `mapstructure:"deal" json:"deal"`
	Odds   OddsConfig   `mapstructure:"odds" json:"odds"`
	Hedges HedgeConfig  `mapstructure:"hedges" json:"hedges"`
	Sweep  SweepConfig  `mapstructure:"sweep" json:"sweep"`
	Daemon DaemonConfig `mapstructure:"daemon" json:"daemon"`
}

// DealConfig holds the ticket economics. Money amounts are per unit.
type DealConfig struct {
	TicketPrice       float64 `mapstructure:"ticket_price" json:"ticket_price"`
	TicketCount       int     `mapstructure:"ticket_count" json:"ticket_count"`
	ResaleFeeRate     float64 `mapstructure:"resale_fee_rate" json:"resale_fee_rate"`
	ProcessingFeeRate float64 `mapstructure:"processing_fee_rate" json:"processing_fee_rate"`
	FixedCost         float64 `mapstructure:"fixed_cost" json:"fixed_cost"`
	AnnualRate        float64 `mapstructure:"annual_rate" json:"annual_rate"`
	ResalePrice       float64 `mapstructure:"resale_price" json:"resale_price"`
	InvestorShare     float64 `mapstructure:"investor_share" json:"investor_share"`
	SaleMonth         float64 `mapstructure:"sale_month" json:"sale_month"`
}

// OddsConfig holds the odds board. Entry keys accept the canonical outcome
// ids as well as common labels and translations; see CanonicalOutcome.
type OddsConfig struct {
	Format  string             `mapstructure:"format" json:"format"`
	Entries map[string]float64 `mapstructure:"entries" json:"entries"`
}

// HedgeLegConfig is one planned bet against advancement.
type HedgeLegConfig struct {
	Stake          float64 `mapstructure:"stake" json:"stake"`
	PlacementMonth float64 `mapstructure:"placement_month" json:"placement_month"`
}

// HedgeConfig holds the hedge plan.
type HedgeConfig struct {
	Enabled bool                      `mapstructure:"enabled" json:"enabled"`
	Legs    map[string]HedgeLegConfig `mapstructure:"legs" json:"legs"`
}

// SweepConfig bounds the sensitivity sweep. A zero End or Points means the
// engine picks its default span around the resale price.
type SweepConfig struct {
	Start  float64 `mapstructure:"start" json:"start"`
	End    float64 `mapstructure:"end" json:"end"`
	Points int     `mapstructure:"points" json:"points"`
}

// DaemonConfig holds the daemon's serving and persistence settings.
type DaemonConfig struct {
	Listen       string        `mapstructure:"listen" json:"listen"`
	PollInterval time.Duration `mapstructure:"poll_interval" json:"poll_interval"`
	RecomputeGap time.Duration `mapstructure:"recompute_gap" json:"recompute_gap"`
	DBPath       string        `mapstructure:"db_path" json:"db_path"`
	SnapshotKeep int           `mapstructure:"snapshot_keep" json:"snapshot_keep"`
}

// Defaults returns the built-in configuration: a two-ticket finals package
// with the bookmaker board the desk usually starts from and hedging off.
func Defaults() *File {
	return &File{
		Deal: DealConfig{
			TicketPrice:       4185,
			TicketCount:       2,
			ResaleFeeRate:     0.15,
			ProcessingFeeRate: 0.03,
			FixedCost:         0,
			AnnualRate:        5,
			ResalePrice:       6000,
			InvestorShare:     1,
			SaleMonth:         9,
		},
		Odds: OddsConfig{
			Format: string(core.FormatDecimal),
			Entries: map[string]float64{
				string(core.StageLeague):     31,
				string(core.StagePlayoff):    4.3,
				string(core.StageLast16):     4.0,
				string(core.StageQuarter):    4.3,
				string(core.StageSemi):       5.5,
				string(core.OutcomeRunnerUp): 9,
				string(core.OutcomeWinner):   9,
			},
		},
		Hedges: HedgeConfig{
			Enabled: false,
			Legs:    map[string]HedgeLegConfig{},
		},
		Sweep: SweepConfig{},
		Daemon: DaemonConfig{
			Listen:       ":8600",
			PollInterval: 15 * time.Second,
			RecomputeGap: 2 * time.Second,
			DBPath:       "",
			SnapshotKeep: 500,
		},
	}
}

// Load reads the configuration file at path. A missing file is not an
// error: defaults plus environment overrides apply. Any other failure
// returns the full defaults together with the error, so callers always get
// a usable configuration.
func Load(path string) (*File, error) {
	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	v.SetEnvPrefix("CUPRUN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Defaults(), fmt.Errorf("failed to read config file: %w", err)
	}

	var f File
	if err := v.Unmarshal(&f); err != nil {
		return Defaults(), fmt.Errorf("failed to unmarshal config: %w", err)
	}
	// An empty map default has no leaf keys, so viper decodes an absent
	// legs table to nil rather than the empty map Defaults carries.
	if f.Hedges.Legs == nil {
		f.Hedges.Legs = map[string]HedgeLegConfig{}
	}
	if err := f.Validate(); err != nil {
		return Defaults(), fmt.Errorf("invalid config: %w", err)
	}
	return &f, nil
}

// Save writes the configuration to path, creating parent directories as
// needed. The format follows the file extension.
func Save(f *File, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)

	v.Set("deal.ticket_price", f.Deal.TicketPrice)
	v.Set("deal.ticket_count", f.Deal.TicketCount)
	v.Set("deal.resale_fee_rate", f.Deal.ResaleFeeRate)
	v.Set("deal.processing_fee_rate", f.Deal.ProcessingFeeRate)
	v.Set("deal.fixed_cost", f.Deal.FixedCost)
	v.Set("deal.annual_rate", f.Deal.AnnualRate)
	v.Set("deal.resale_price", f.Deal.ResalePrice)
	v.Set("deal.investor_share", f.Deal.InvestorShare)
	v.Set("deal.sale_month", f.Deal.SaleMonth)

	v.Set("odds.format", f.Odds.Format)
	for name, value := range f.Odds.Entries {
		v.Set("odds.entries."+name, value)
	}

	v.Set("hedges.enabled", f.Hedges.Enabled)
	for name, leg := range f.Hedges.Legs {
		v.Set("hedges.legs."+name+".stake", leg.Stake)
		v.Set("hedges.legs."+name+".placement_month", leg.PlacementMonth)
	}

	v.Set("sweep.start", f.Sweep.Start)
	v.Set("sweep.end", f.Sweep.End)
	v.Set("sweep.points", f.Sweep.Points)

	v.Set("daemon.listen", f.Daemon.Listen)
	v.Set("daemon.poll_interval", f.Daemon.PollInterval.String())
	v.Set("daemon.recompute_gap", f.Daemon.RecomputeGap.String())
	v.Set("daemon.db_path", f.Daemon.DBPath)
	v.Set("daemon.snapshot_keep", f.Daemon.SnapshotKeep)

	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	d := Defaults()

	v.SetDefault("deal.ticket_price", d.Deal.TicketPrice)
	v.SetDefault("deal.ticket_count", d.Deal.TicketCount)
	v.SetDefault("deal.resale_fee_rate", d.Deal.ResaleFeeRate)
	v.SetDefault("deal.processing_fee_rate", d.Deal.ProcessingFeeRate)
	v.SetDefault("deal.fixed_cost", d.Deal.FixedCost)
	v.SetDefault("deal.annual_rate", d.Deal.AnnualRate)
	v.SetDefault("deal.resale_price", d.Deal.ResalePrice)
	v.SetDefault("deal.investor_share", d.Deal.InvestorShare)
	v.SetDefault("deal.sale_month", d.Deal.SaleMonth)

	v.SetDefault("odds.format", d.Odds.Format)
	for name, value := range d.Odds.Entries {
		v.SetDefault("odds.entries."+name, value)
	}

	v.SetDefault("hedges.enabled", d.Hedges.Enabled)
	v.SetDefault("hedges.legs", map[string]interface{}{})

	v.SetDefault("sweep.start", d.Sweep.Start)
	v.SetDefault("sweep.end", d.Sweep.End)
	v.SetDefault("sweep.points", d.Sweep.Points)

	v.SetDefault("daemon.listen", d.Daemon.Listen)
	v.SetDefault("daemon.poll_interval", d.Daemon.PollInterval.String())
	v.SetDefault("daemon.recompute_gap", d.Daemon.RecomputeGap.String())
	v.SetDefault("daemon.db_path", d.Daemon.DBPath)
	v.SetDefault("daemon.snapshot_keep", d.Daemon.SnapshotKeep)
}

// Inputs assembles the engine inputs from the file. Odds and hedge keys are
// resolved through the label aliases.
func (f *File) Inputs() (analysis.Inputs, error) {
	cfg := core.Config{
		TicketPrice:       decimal.NewFromFloat(f.Deal.TicketPrice),
		TicketCount:       f.Deal.TicketCount,
		ResaleFeeRate:     f.Deal.ResaleFeeRate,
		ProcessingFeeRate: f.Deal.ProcessingFeeRate,
		FixedCost:         decimal.NewFromFloat(f.Deal.FixedCost),
		AnnualRate:        f.Deal.AnnualRate,
		ResalePrice:       decimal.NewFromFloat(f.Deal.ResalePrice),
		InvestorShare:     f.Deal.InvestorShare,
		HedgeEnabled:      f.Hedges.Enabled,
		SaleMonth:         f.Deal.SaleMonth,
		OddsFormat:        core.OddsFormat(strings.ToLower(strings.TrimSpace(f.Odds.Format))),
	}

	set := make(core.OddsSet, len(f.Odds.Entries))
	for name, value := range f.Odds.Entries {
		outcome, ok := CanonicalOutcome(name)
		if !ok {
			return analysis.Inputs{}, fmt.Errorf("unknown outcome %q in odds entries", name)
		}
		set[outcome] = value
	}

	plan := make(core.HedgePlan, len(f.Hedges.Legs))
	for name, leg := range f.Hedges.Legs {
		outcome, ok := CanonicalOutcome(name)
		if !ok {
			return analysis.Inputs{}, fmt.Errorf("unknown stage %q in hedge legs", name)
		}
		plan[outcome] = core.HedgeLeg{
			Stake:          decimal.NewFromFloat(leg.Stake),
			PlacementMonth: leg.PlacementMonth,
		}
	}

	var sweep *analysis.SweepConfig
	if f.Sweep.Points > 0 && f.Sweep.End > 0 {
		sweep = &analysis.SweepConfig{
			Start:  decimal.NewFromFloat(f.Sweep.Start),
			End:    decimal.NewFromFloat(f.Sweep.End),
			Points: f.Sweep.Points,
		}
	}

	return analysis.Inputs{Config: cfg, Odds: set, Hedges: plan, Sweep: sweep}, nil
}

// Validate checks the assembled inputs and the daemon settings.
func (f *File) Validate() error {
	in, err := f.Inputs()
	if err != nil {
		return err
	}
	if err := in.Config.Validate(); err != nil {
		return err
	}
	if err := in.Hedges.Validate(); err != nil {
		return err
	}

	normalized := make(core.OddsSet, len(in.Odds))
	for outcome, value := range in.Odds {
		normalized[outcome] = odds.ToDecimal(in.Config.OddsFormat, value)
	}
	if err := normalized.Validate(); err != nil {
		return err
	}

	if f.Sweep.Points < 0 {
		return fmt.Errorf("sweep.points must not be negative")
	}
	if f.Sweep.Points > 0 && f.Sweep.End > 0 && f.Sweep.End < f.Sweep.Start {
		return fmt.Errorf("sweep.end %v below sweep.start %v", f.Sweep.End, f.Sweep.Start)
	}

	if f.Daemon.Listen == "" {
		return fmt.Errorf("daemon.listen is required")
	}
	if f.Daemon.PollInterval < time.Second {
		return fmt.Errorf("daemon.poll_interval must be at least 1 second")
	}
	if f.Daemon.RecomputeGap < 0 {
		return fmt.Errorf("daemon.recompute_gap must not be negative")
	}
	if f.Daemon.SnapshotKeep < 1 {
		return fmt.Errorf("daemon.snapshot_keep must be at least 1")
	}
	return nil
}
