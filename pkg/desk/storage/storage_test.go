package storage

import (
	"testing"
	"time"

	"github.com/phenomenon0/cuprun/core"
	"github.com/phenomenon0/cuprun/pkg/engine/analysis"

	"github.com/shopspring/decimal"
)

func newTestStore(t *testing.T, keep int) *Store {
	t.Helper()
	s, err := New(":memory:", keep)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testReport(t *testing.T, resale int64) *analysis.Report {
	t.Helper()
	report, err := analysis.New(nil).Analyze(analysis.Inputs{
		Config: core.Config{
			TicketPrice:       decimal.NewFromInt(1000),
			TicketCount:       1,
			ResaleFeeRate:     0.10,
			AnnualRate:        5,
			ResalePrice:       decimal.NewFromInt(resale),
			InvestorShare:     1,
			SaleMonth:         9,
			OddsFormat:        core.FormatDecimal,
			ProcessingFeeRate: 0.03,
		},
		Odds: core.OddsSet{
			core.StageLeague:     31,
			core.StagePlayoff:    4.3,
			core.StageLast16:     4.0,
			core.StageQuarter:    4.3,
			core.StageSemi:       5.5,
			core.OutcomeRunnerUp: 9,
			core.OutcomeWinner:   9,
		},
	})
	if err != nil {
		t.Fatalf("failed to build report: %v", err)
	}
	return report
}

func TestStore_SaveAndLatest(t *testing.T) {
	s := newTestStore(t, 10)
	report := testReport(t, 1500)

	saved, err := s.SaveSnapshot(report)
	if err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if saved.ID == "" {
		t.Error("snapshot has no id")
	}
	if saved.Breakeven == nil {
		t.Error("breakeven missing despite a valid report value")
	}

	got, err := s.LatestSnapshot()
	if err != nil {
		t.Fatalf("LatestSnapshot: %v", err)
	}
	if got == nil || got.ID != saved.ID {
		t.Fatalf("latest = %+v, want id %s", got, saved.ID)
	}
	if got.Report == nil {
		t.Fatal("latest snapshot has no report")
	}
	if !got.Report.ExpectedValue.Equal(report.ExpectedValue) {
		t.Errorf("expected value round trip: %s vs %s", got.Report.ExpectedValue, report.ExpectedValue)
	}
	if got.Report.ExpectedIRRPct != report.ExpectedIRRPct {
		t.Errorf("expected IRR round trip: %v vs %v", got.Report.ExpectedIRRPct, report.ExpectedIRRPct)
	}
	if len(got.Report.Scenarios) != len(report.Scenarios) {
		t.Fatalf("scenario count round trip: %d vs %d", len(got.Report.Scenarios), len(report.Scenarios))
	}
	for i, sc := range got.Report.Scenarios {
		if !sc.NetPL.Equal(report.Scenarios[i].NetPL) {
			t.Errorf("scenario %s net P&L round trip: %s vs %s", sc.Outcome, sc.NetPL, report.Scenarios[i].NetPL)
		}
	}
}

func TestStore_LatestOnEmpty(t *testing.T) {
	s := newTestStore(t, 10)
	got, err := s.LatestSnapshot()
	if err != nil {
		t.Fatalf("LatestSnapshot: %v", err)
	}
	if got != nil {
		t.Errorf("latest on empty store = %+v, want nil", got)
	}
}

func TestStore_ListNewestFirst(t *testing.T) {
	s := newTestStore(t, 10)

	var ids []string
	for _, resale := range []int64{1200, 1500, 1800} {
		snap, err := s.SaveSnapshot(testReport(t, resale))
		if err != nil {
			t.Fatalf("SaveSnapshot: %v", err)
		}
		ids = append(ids, snap.ID)
		time.Sleep(2 * time.Millisecond)
	}

	list, err := s.ListSnapshots(0)
	if err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("list has %d snapshots, want 3", len(list))
	}
	for i := range list {
		if want := ids[len(ids)-1-i]; list[i].ID != want {
			t.Errorf("list[%d] = %s, want %s", i, list[i].ID, want)
		}
	}

	limited, err := s.ListSnapshots(2)
	if err != nil {
		t.Fatalf("ListSnapshots limited: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("limited list has %d snapshots, want 2", len(limited))
	}
}

func TestStore_SaveEnforcesCap(t *testing.T) {
	s := newTestStore(t, 2)

	var last string
	for i := 0; i < 4; i++ {
		snap, err := s.SaveSnapshot(testReport(t, 1500))
		if err != nil {
			t.Fatalf("SaveSnapshot: %v", err)
		}
		last = snap.ID
		time.Sleep(2 * time.Millisecond)
	}

	list, err := s.ListSnapshots(10)
	if err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("cap not enforced: %d snapshots kept", len(list))
	}
	if list[0].ID != last {
		t.Errorf("newest snapshot missing after cap: %s", list[0].ID)
	}
}

func TestStore_NullBreakevenRoundTrip(t *testing.T) {
	s := newTestStore(t, 10)

	report := testReport(t, 1500)

	// Fees consuming all proceeds leave the breakeven undefined.
	undefinedReport, err := analysis.New(nil).Analyze(analysis.Inputs{
		Config: core.Config{
			TicketPrice:       decimal.NewFromInt(1000),
			TicketCount:       1,
			ResaleFeeRate:     0.6,
			ProcessingFeeRate: 0.4,
			ResalePrice:       decimal.NewFromInt(1500),
			SaleMonth:         9,
			OddsFormat:        core.FormatDecimal,
		},
		Odds: core.OddsSet{
			core.StageLeague:     31,
			core.StagePlayoff:    4.3,
			core.StageLast16:     4.0,
			core.StageQuarter:    4.3,
			core.StageSemi:       5.5,
			core.OutcomeRunnerUp: 9,
			core.OutcomeWinner:   9,
		},
	})
	if err != nil {
		t.Fatalf("failed to build undefined-breakeven report: %v", err)
	}
	if undefinedReport.BreakevenValid {
		t.Fatal("fixture unexpectedly has a defined breakeven")
	}

	if _, err := s.SaveSnapshot(undefinedReport); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	got, err := s.LatestSnapshot()
	if err != nil {
		t.Fatalf("LatestSnapshot: %v", err)
	}
	if got.Breakeven != nil {
		t.Errorf("breakeven = %v, want nil for an undefined value", *got.Breakeven)
	}

	// And a defined one scans back as non-nil.
	if _, err := s.SaveSnapshot(report); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	got, err = s.LatestSnapshot()
	if err != nil {
		t.Fatalf("LatestSnapshot: %v", err)
	}
	if got.Breakeven == nil {
		t.Error("breakeven nil for a defined value")
	}
}
