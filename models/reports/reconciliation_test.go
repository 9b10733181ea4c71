package reports

import (
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/stationops_backend/models"
	"github.com/shopspring/decimal"
)

func d(v string) decimal.Decimal {
	dec, err := decimal.NewFromString(v)
	if err != nil {
		panic(err)
	}
	return dec
}

func hoseRecord(pairs ...[3]string) *models.HoseReport {
	r := &models.HoseReport{}
	for i, p := range pairs {
		r.Hoses = append(r.Hoses, models.HoseReportEntry{
			HoseNo:    i + 1,
			Previous:  d(p[0]),
			Current:   d(p[1]),
			UnitPrice: d(p[2]),
		})
	}
	return r
}

func TestCashOnHandWorkedExample(t *testing.T) {
	// hoseTotal 100, partnerTotal 20, gasPrice 5000, terminals 150000
	got := CashOnHand(d("100"), d("20"), d("5000"), d("150000"))
	if !got.Equal(d("250000")) {
		t.Fatalf("expected cash on hand 250000, got %s", got)
	}
}

func TestCashOnHandClampsToZero(t *testing.T) {
	got := CashOnHand(d("10"), d("50"), d("5000"), d("0"))
	if !got.Equal(decimal.Zero) {
		t.Fatalf("expected cash on hand clamped to zero, got %s", got)
	}
	got = CashOnHand(d("100"), d("20"), d("5000"), d("999999999"))
	if !got.Equal(decimal.Zero) {
		t.Fatalf("expected cash on hand clamped to zero, got %s", got)
	}
}

func TestMatchPercentage(t *testing.T) {
	got := MatchPercentage(d("95000"), d("100000"))
	if !got.Equal(d("95")) {
		t.Fatalf("expected 95.00, got %s", got)
	}
	got = MatchPercentage(d("1"), d("3"))
	if !got.Equal(d("33.33")) {
		t.Fatalf("expected 33.33, got %s", got)
	}
	for _, control := range []string{"0", "1", "12345.67"} {
		got = MatchPercentage(d(control), decimal.Zero)
		if !got.Equal(decimal.Zero) {
			t.Fatalf("expected 0 for zero actual, got %s", got)
		}
		got = MatchPercentage(d(control), d("-5"))
		if !got.Equal(decimal.Zero) {
			t.Fatalf("expected 0 for negative actual, got %s", got)
		}
	}
}

func TestHoseTotals(t *testing.T) {
	record := hoseRecord(
		[3]string{"100", "160", "5000"},
		[3]string{"200", "240", "5000"},
	)
	if got := HoseTotal(record); !got.Equal(d("100")) {
		t.Fatalf("expected hose total 100, got %s", got)
	}
	if got := HoseAmount(record); !got.Equal(d("500000")) {
		t.Fatalf("expected hose amount 500000, got %s", got)
	}
	if got := HoseTotal(nil); !got.Equal(decimal.Zero) {
		t.Fatalf("expected zero hose total for absent record, got %s", got)
	}
}

func TestPartnerTotals(t *testing.T) {
	record := &models.PartnerReport{
		Entries: []models.PartnerReportEntry{
			{ContractId: 1, Quantity: d("12"), UnitPrice: d("4800")},
			{ContractId: 2, Quantity: d("8"), UnitPrice: d("5100")},
		},
	}
	if got := PartnerTotal(record); !got.Equal(d("20")) {
		t.Fatalf("expected partner total 20, got %s", got)
	}
	expected := d("12").Mul(d("4800")).Add(d("8").Mul(d("5100")))
	if got := PartnerAmount(record); !got.Equal(expected) {
		t.Fatalf("expected partner amount %s, got %s", expected, got)
	}
	if got := PartnerTotal(nil); !got.Equal(decimal.Zero) {
		t.Fatalf("expected zero partner total for absent record, got %s", got)
	}
}

func TestBuildDailyReconciliation(t *testing.T) {
	date := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	hose := hoseRecord(
		[3]string{"0", "60", "5000"},
		[3]string{"0", "40", "5000"},
	)
	partner := &models.PartnerReport{
		Entries: []models.PartnerReportEntry{{ContractId: 1, Quantity: d("20"), UnitPrice: d("4800")}},
	}
	general := &models.GeneralReport{
		UnitPrice: d("5000"),
		Terminals: []models.TerminalAmount{
			{Channel: "KBZPay", Amount: d("100000")},
			{Channel: "WavePay", Amount: d("50000")},
		},
		ControlSums: []models.ControlSumEntry{
			{Category: models.ControlSumCategoryCash, Value: d("237500")},
			{Category: models.TerminalControlSumCategory("KBZPay"), Value: d("100000")},
		},
	}

	view := BuildDailyReconciliation(7, date, partner, hose, general)
	if !view.CashOnHand.Equal(d("250000")) {
		t.Fatalf("expected cash on hand 250000, got %s", view.CashOnHand)
	}
	if !view.VolumeDiscrepancy.Equal(decimal.Zero) {
		t.Fatalf("expected no volume discrepancy, got %s", view.VolumeDiscrepancy)
	}
	if len(view.ControlSums) != 2 {
		t.Fatalf("expected 2 control sum matches, got %d", len(view.ControlSums))
	}
	for _, match := range view.ControlSums {
		switch match.Category {
		case models.ControlSumCategoryCash:
			if !match.ActualValue.Equal(d("250000")) {
				t.Fatalf("cash actual should be computed cash on hand, got %s", match.ActualValue)
			}
			if !match.MatchPercent.Equal(d("95")) {
				t.Fatalf("expected cash match 95.00, got %s", match.MatchPercent)
			}
		case models.TerminalControlSumCategory("KBZPay"):
			if !match.ActualValue.Equal(d("100000")) {
				t.Fatalf("terminal actual should be channel amount, got %s", match.ActualValue)
			}
			if !match.MatchPercent.Equal(d("100")) {
				t.Fatalf("expected terminal match 100.00, got %s", match.MatchPercent)
			}
		default:
			t.Fatalf("unexpected category %s", match.Category)
		}
	}
}

func TestBuildDailyReconciliationSurfacesVolumeDiscrepancy(t *testing.T) {
	date := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	hose := hoseRecord([3]string{"0", "10", "5000"}, [3]string{"0", "5", "5000"})
	partner := &models.PartnerReport{
		Entries: []models.PartnerReportEntry{{ContractId: 1, Quantity: d("40"), UnitPrice: d("4800")}},
	}
	general := &models.GeneralReport{
		UnitPrice: d("5000"),
		Terminals: []models.TerminalAmount{
			{Channel: "KBZPay", Amount: d("1000")},
			{Channel: "WavePay", Amount: d("2000")},
		},
	}

	view := BuildDailyReconciliation(7, date, partner, hose, general)
	if !view.CashOnHand.Equal(decimal.Zero) {
		t.Fatalf("expected clamped cash on hand, got %s", view.CashOnHand)
	}
	// the clamp must not swallow the mismatch silently
	if !view.VolumeDiscrepancy.Equal(d("25")) {
		t.Fatalf("expected volume discrepancy 25, got %s", view.VolumeDiscrepancy)
	}
}

func TestBuildDailyReconciliationMissingRecords(t *testing.T) {
	date := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	view := BuildDailyReconciliation(7, date, nil, nil, nil)
	if !view.PartnerMissing || !view.HoseMissing || !view.GeneralMissing {
		t.Fatalf("expected all records flagged missing: %+v", view)
	}
	if !view.CashOnHand.Equal(decimal.Zero) {
		t.Fatalf("expected zero cash with no general record, got %s", view.CashOnHand)
	}
	if len(view.ControlSums) != 0 {
		t.Fatalf("expected no control sums, got %d", len(view.ControlSums))
	}
}
