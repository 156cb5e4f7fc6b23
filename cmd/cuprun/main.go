// cuprun values a cup-final ticket package against the bookmaker's odds
// board: outcome scenarios, hedge ladder, expected value, IRR, and breakeven.
package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/phenomenon0/cuprun/core"
	"github.com/phenomenon0/cuprun/pkg/desk/config"
	"github.com/phenomenon0/cuprun/pkg/desk/storage"
	"github.com/phenomenon0/cuprun/pkg/engine/analysis"
)

var (
	// Input flags
	configFile = flag.String("config", "", "Path to the desk configuration file (YAML)")
	outputFile = flag.String("output", "", "Output file for the report (JSON or CSV)")
	initConfig = flag.Bool("init", false, "Write the default configuration to -config and exit")

	// Override flags
	resalePrice = flag.Float64("price", 0, "Override the expected resale price per ticket")
	oddsFormat  = flag.String("format", "", "Override the odds format: decimal or american")

	// Output flags
	jsonOut   = flag.Bool("json", false, "Print the report as JSON")
	showSweep = flag.Bool("sweep", false, "Print the resale price sensitivity table")
	history   = flag.Int("history", 0, "Print the last N stored snapshots and exit")
	verbose   = flag.Bool("verbose", false, "Verbose output")
)

func main() {
	flag.Parse()

	if *initConfig {
		if *configFile == "" {
			log.Fatal("-init requires -config")
		}
		if err := config.Save(config.Defaults(), *configFile); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		log.Printf("Wrote default configuration to %s", *configFile)
		return
	}

	file := loadConfig()

	if *history > 0 {
		printHistory(file, *history)
		return
	}

	// Apply overrides
	if *resalePrice > 0 {
		file.Deal.ResalePrice = *resalePrice
	}
	if *oddsFormat != "" {
		file.Odds.Format = *oddsFormat
	}

	in, err := file.Inputs()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	report, err := analysis.New(nil).Analyze(in)
	if err != nil {
		log.Fatalf("Valuation failed: %v", err)
	}

	if *jsonOut {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			log.Fatalf("Failed to marshal report: %v", err)
		}
		fmt.Println(string(data))
	} else {
		printReport(file, in, report)
	}

	if *outputFile != "" {
		if err := exportReport(report, *outputFile); err != nil {
			log.Printf("Failed to export report: %v", err)
		} else {
			log.Printf("Report exported to: %s", *outputFile)
		}
	}
}

func loadConfig() *config.File {
	if *configFile == "" {
		log.Println("No config file provided, valuing the built-in board")
		return config.Defaults()
	}

	file, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return file
}

func printReport(file *config.File, in analysis.Inputs, report *analysis.Report) {
	deal := file.Deal

	fmt.Println()
	fmt.Println("==================== CUP RUN VALUATION ====================")
	fmt.Println()
	fmt.Printf("  Tickets:         %d x $%.2f = $%.2f\n",
		deal.TicketCount, deal.TicketPrice, deal.TicketPrice*float64(deal.TicketCount))
	fmt.Printf("  Resale price:    $%.2f per ticket\n", deal.ResalePrice)
	fmt.Printf("  Fees:            %.1f%% resale + %.1f%% processing\n",
		deal.ResaleFeeRate*100, deal.ProcessingFeeRate*100)
	if deal.FixedCost > 0 {
		fmt.Printf("  Fixed costs:     $%.2f\n", deal.FixedCost)
	}
	fmt.Printf("  Sale month:      %.0f (carry at %.1f%%/yr)\n", deal.SaleMonth, deal.AnnualRate)
	fmt.Printf("  Hedging:         %s\n", onOff(file.Hedges.Enabled))
	fmt.Println()
	fmt.Printf("  Book margin:     %.1f%% (vig factor %.3f)\n",
		report.Model.Margin, report.Model.VigFactor)
	fmt.Printf("  Reaches final:   %.1f%%\n", report.Ladder.FinalProb)

	fmt.Println()
	fmt.Println("  HEDGE LADDER")
	fmt.Println("  Stage                   Fair%    Cond%   Fair odds    Adj odds")
	for _, row := range report.Ladder.Stages {
		fairOdds, adjOdds := "-", "-"
		if row.HasFairOdds {
			fairOdds = fmt.Sprintf("%.2f", row.FairOdds)
			adjOdds = fmt.Sprintf("%.2f", row.AdjustedOdds)
		}
		fmt.Printf("  %-22s %5.1f%%   %5.1f%%  %10s  %10s\n",
			row.Stage.Label(), row.FairProb, row.CondProb, fairOdds, adjOdds)
	}

	if file.Hedges.Enabled && len(in.Hedges) > 0 {
		fmt.Println()
		fmt.Println("  HEDGE PLAN")
		for _, stage := range core.EliminationStages() {
			leg, ok := in.Hedges[stage]
			if !ok || leg.Stake.IsZero() {
				continue
			}
			fmt.Printf("  %-22s stake $%.2f, placed month %.0f\n",
				stage.Label(), leg.Stake.InexactFloat64(), leg.PlacementMonth)
		}
	}

	fmt.Println()
	fmt.Println("  SCENARIOS")
	fmt.Println("  ---------------------------------------------------------")
	for _, s := range report.Scenarios {
		fmt.Printf("  %-22s %5.1f%%   PnL $%11.2f   IRR %8.1f%%\n",
			s.Label, s.Probability, s.NetPL.InexactFloat64(), s.IRRPct)
	}

	fmt.Println()
	fmt.Printf("  Expected value:  $%.2f\n", report.ExpectedValue.InexactFloat64())
	if deal.InvestorShare < 1 {
		fmt.Printf("  Investor value:  $%.2f (%.0f%% share)\n",
			report.InvestorValue.InexactFloat64(), deal.InvestorShare*100)
	}
	fmt.Printf("  Expected IRR:    %.2f%%/yr\n", report.ExpectedIRRPct)
	if report.BreakevenValid {
		fmt.Printf("  Breakeven:       $%.2f per ticket\n", report.Breakeven.InexactFloat64())
	} else {
		fmt.Println("  Breakeven:       undefined (fees consume all proceeds)")
	}

	if *showSweep && len(report.Sensitivity) > 0 {
		fmt.Println()
		fmt.Println("  RESALE PRICE SENSITIVITY")
		fmt.Println("  Price           Finals PnL       Expected")
		for _, p := range report.Sensitivity {
			fmt.Printf("  $%10.2f   $%11.2f   $%11.2f\n",
				p.Price.InexactFloat64(), p.FinalsPL.InexactFloat64(), p.Expected.InexactFloat64())
		}
	}

	if *verbose {
		fmt.Println()
		fmt.Println("  BLENDED TIMELINE")
		for _, f := range report.BlendedFlows {
			fmt.Printf("  Month %4.1f   $%11.2f\n", f.Month, f.Amount.InexactFloat64())
		}
	}

	fmt.Println()
	fmt.Println("===========================================================")
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func printHistory(file *config.File, n int) {
	store, err := storage.New(file.Daemon.DBPath, file.Daemon.SnapshotKeep)
	if err != nil {
		log.Fatalf("Failed to open snapshot store: %v", err)
	}
	defer store.Close()

	snaps, err := store.ListSnapshots(n)
	if err != nil {
		log.Fatalf("Failed to list snapshots: %v", err)
	}
	if len(snaps) == 0 {
		fmt.Println("No snapshots recorded. Run cuprund to start capturing valuations.")
		return
	}

	fmt.Println()
	fmt.Println("  SNAPSHOT HISTORY")
	fmt.Println("  Captured                 Expected        IRR    Breakeven")
	for _, s := range snaps {
		breakeven := "-"
		if s.Breakeven != nil {
			breakeven = fmt.Sprintf("$%.2f", *s.Breakeven)
		}
		fmt.Printf("  %s   $%10.2f   %7.2f%%   %10s\n",
			s.CreatedAt.Format("2006-01-02 15:04:05"),
			s.ExpectedValue, s.ExpectedIRRPct, breakeven)
	}
	fmt.Println()
}

func exportReport(report *analysis.Report, filename string) error {
	if strings.HasSuffix(filename, ".json") {
		return exportJSON(report, filename)
	} else if strings.HasSuffix(filename, ".csv") {
		return exportCSV(report, filename)
	}
	// Default to JSON
	return exportJSON(report, filename+".json")
}

func exportJSON(report *analysis.Report, filename string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	return os.WriteFile(filename, data, 0644)
}

func exportCSV(report *analysis.Report, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	defer w.Flush()

	// Write summary
	w.Write([]string{"Metric", "Value"})
	w.Write([]string{"expected_value", report.ExpectedValue.String()})
	w.Write([]string{"investor_value", report.InvestorValue.String()})
	w.Write([]string{"expected_irr_pct", fmt.Sprintf("%v", report.ExpectedIRRPct)})
	breakeven := ""
	if report.BreakevenValid {
		breakeven = report.Breakeven.String()
	}
	w.Write([]string{"breakeven", breakeven})
	w.Write([]string{"reaches_final_prob_pct", fmt.Sprintf("%v", report.Ladder.FinalProb)})
	w.Write([]string{"book_margin_pct", fmt.Sprintf("%v", report.Model.Margin)})

	// Write blank line
	w.Write([]string{})

	// Write scenarios
	w.Write([]string{"outcome", "probability_pct", "net_pl", "irr_pct", "gross_proceeds", "fees"})
	for _, s := range report.Scenarios {
		w.Write([]string{
			string(s.Outcome),
			fmt.Sprintf("%v", s.Probability),
			s.NetPL.String(),
			fmt.Sprintf("%v", s.IRRPct),
			s.GrossProceeds.String(),
			s.Fees.String(),
		})
	}

	// Write sensitivity sweep
	if len(report.Sensitivity) > 0 {
		w.Write([]string{})
		w.Write([]string{"price", "finals_pl", "expected"})
		for _, p := range report.Sensitivity {
			w.Write([]string{p.Price.String(), p.FinalsPL.String(), p.Expected.String()})
		}
	}

	return nil
}
