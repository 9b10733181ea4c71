package reports

import (
	"context"
	"sort"
	"time"

	"bitbucket.org/mmdatafocus/stationops_backend/models"
	"github.com/shopspring/decimal"
)

// The reconciliation engine is pure computation over already-persisted
// sub-ledger records. Everything here is recomputed on every read; the
// CashOnHand column on the general record is a convenience cache and is
// never treated as authoritative.

var oneHundred = decimal.NewFromInt(100)

// HoseTotal is the dispensed volume: sum of per-hose reading deltas,
// clamped at zero per hose.
func HoseTotal(r *models.HoseReport) decimal.Decimal {
	if r == nil {
		return decimal.Zero
	}
	total := decimal.Zero
	for _, h := range r.Hoses {
		delta := h.Current.Sub(h.Previous)
		if delta.IsNegative() {
			delta = decimal.Zero
		}
		total = total.Add(delta)
	}
	return total
}

// HoseAmount is the dispensed volume priced per hose.
func HoseAmount(r *models.HoseReport) decimal.Decimal {
	if r == nil {
		return decimal.Zero
	}
	total := decimal.Zero
	for _, h := range r.Hoses {
		delta := h.Current.Sub(h.Previous)
		if delta.IsNegative() {
			delta = decimal.Zero
		}
		total = total.Add(delta.Mul(h.UnitPrice))
	}
	return total
}

// PartnerTotal is the volume sold to contracted partners that day.
func PartnerTotal(r *models.PartnerReport) decimal.Decimal {
	if r == nil {
		return decimal.Zero
	}
	total := decimal.Zero
	for _, e := range r.Entries {
		total = total.Add(e.Quantity)
	}
	return total
}

// PartnerAmount is the partner volume priced per contract.
func PartnerAmount(r *models.PartnerReport) decimal.Decimal {
	if r == nil {
		return decimal.Zero
	}
	total := decimal.Zero
	for _, e := range r.Entries {
		total = total.Add(e.Quantity.Mul(e.UnitPrice))
	}
	return total
}

// CashOnHand derives the physical cash expected at the station:
//
//	max(0, (hoseTotal - partnerTotal) × gasPrice - Σ terminalAmounts)
//
// Hose meters record all gas dispensed, including gas later invoiced to
// partners at contract prices; subtracting partner volume and electronic
// terminal receipts isolates cash. The zero floor absorbs input error
// rather than displaying negative cash.
func CashOnHand(hoseTotal, partnerTotal, gasPrice, terminalTotal decimal.Decimal) decimal.Decimal {
	cash := hoseTotal.Sub(partnerTotal).Mul(gasPrice).Sub(terminalTotal)
	if cash.IsNegative() {
		return decimal.Zero
	}
	return cash
}

// MatchPercentage compares an audited control value against a computed
// actual, as a percentage rounded to two places. Display and audit only;
// it never gates a write. A non-positive actual yields 0.
func MatchPercentage(controlValue, actualValue decimal.Decimal) decimal.Decimal {
	if !actualValue.IsPositive() {
		return decimal.Zero
	}
	return controlValue.Div(actualValue).Mul(oneHundred).Round(2)
}

type ControlSumMatch struct {
	Category      string          `json:"category"`
	ControlValue  decimal.Decimal `json:"control_value"`
	ActualValue   decimal.Decimal `json:"actual_value"`
	MatchPercent  decimal.Decimal `json:"match_percent"`
	ReceiptNumber string          `json:"receipt_number"`
	ReceivedDate  time.Time       `json:"received_date"`
	Locked        bool            `json:"locked"`
}

type DailyReconciliationResponse struct {
	StationId     int             `json:"station_id"`
	ReportDate    time.Time       `json:"report_date"`
	HoseTotal     decimal.Decimal `json:"hose_total"`
	HoseAmount    decimal.Decimal `json:"hose_amount"`
	PartnerTotal  decimal.Decimal `json:"partner_total"`
	PartnerAmount decimal.Decimal `json:"partner_amount"`
	GasPrice      decimal.Decimal `json:"gas_price"`
	TerminalTotal decimal.Decimal `json:"terminal_total"`
	CashOnHand    decimal.Decimal `json:"cash_on_hand"`

	// VolumeDiscrepancy is partnerTotal - hoseTotal when partners were
	// invoiced more gas than the hoses dispensed. The cash clamp would
	// otherwise swallow that mismatch silently.
	VolumeDiscrepancy decimal.Decimal `json:"volume_discrepancy"`

	PartnerMissing bool `json:"partner_missing"`
	HoseMissing    bool `json:"hose_missing"`
	GeneralMissing bool `json:"general_missing"`

	ControlSums []ControlSumMatch `json:"control_sums"`
}

// BuildDailyReconciliation assembles the reconciliation view from the three
// sub-ledger records of one (station, date). Any record may be nil: a
// missing partner record means no partner sales that day (valid); missing
// hose/general records are flagged for the caller.
func BuildDailyReconciliation(stationId int, date time.Time, partner *models.PartnerReport, hose *models.HoseReport, general *models.GeneralReport) *DailyReconciliationResponse {
	resp := &DailyReconciliationResponse{
		StationId:      stationId,
		ReportDate:     date,
		HoseTotal:      HoseTotal(hose),
		HoseAmount:     HoseAmount(hose),
		PartnerTotal:   PartnerTotal(partner),
		PartnerAmount:  PartnerAmount(partner),
		PartnerMissing: partner == nil,
		HoseMissing:    hose == nil,
		GeneralMissing: general == nil,
		ControlSums:    []ControlSumMatch{},
	}

	if resp.PartnerTotal.GreaterThan(resp.HoseTotal) {
		resp.VolumeDiscrepancy = resp.PartnerTotal.Sub(resp.HoseTotal)
	}

	if general == nil {
		return resp
	}
	resp.GasPrice = general.UnitPrice
	resp.TerminalTotal = general.TerminalTotal()
	resp.CashOnHand = CashOnHand(resp.HoseTotal, resp.PartnerTotal, general.UnitPrice, resp.TerminalTotal)

	for _, entry := range general.ControlSums {
		actual := controlSumActual(entry.Category, resp.CashOnHand, general)
		resp.ControlSums = append(resp.ControlSums, ControlSumMatch{
			Category:      entry.Category,
			ControlValue:  entry.Value,
			ActualValue:   actual,
			MatchPercent:  MatchPercentage(entry.Value, actual),
			ReceiptNumber: entry.ReceiptNumber,
			ReceivedDate:  entry.ReceivedDate,
			Locked:        entry.Locked(),
		})
	}
	return resp
}

// controlSumActual maps a control-sum category to the computed figure it is
// audited against: aggregate cash for CASH, the channel amount for
// per-terminal categories.
func controlSumActual(category string, cashOnHand decimal.Decimal, general *models.GeneralReport) decimal.Decimal {
	if category == models.ControlSumCategoryCash {
		return cashOnHand
	}
	for _, t := range general.Terminals {
		if category == models.TerminalControlSumCategory(t.Channel) {
			return t.Amount
		}
	}
	return decimal.Zero
}

// GetDailyReconciliation reads the three sub-ledger records for the date
// and recomputes everything.
func GetDailyReconciliation(ctx context.Context, stationId int, date time.Time) (*DailyReconciliationResponse, error) {
	partner, err := models.GetPartnerReportByDate(ctx, stationId, date)
	if err != nil {
		return nil, err
	}
	hose, err := models.GetHoseReportByDate(ctx, stationId, date)
	if err != nil {
		return nil, err
	}
	general, err := models.GetGeneralReportByDate(ctx, stationId, date)
	if err != nil {
		return nil, err
	}
	return BuildDailyReconciliation(stationId, date, partner, hose, general), nil
}

// GetDailyReconciliationRange builds the view for each date that has at
// least one sub-ledger record inside [fromDate, toDate].
func GetDailyReconciliationRange(ctx context.Context, stationId int, fromDate, toDate time.Time) ([]*DailyReconciliationResponse, error) {
	partners, err := models.GetPartnerReports(ctx, stationId, fromDate, toDate)
	if err != nil {
		return nil, err
	}
	hoses, err := models.GetHoseReports(ctx, stationId, fromDate, toDate)
	if err != nil {
		return nil, err
	}
	generals, err := models.GetGeneralReports(ctx, stationId, fromDate, toDate)
	if err != nil {
		return nil, err
	}

	partnerByDate := make(map[string]*models.PartnerReport, len(partners))
	for _, r := range partners {
		partnerByDate[dateKey(r.ReportDate)] = r
	}
	hoseByDate := make(map[string]*models.HoseReport, len(hoses))
	for _, r := range hoses {
		hoseByDate[dateKey(r.ReportDate)] = r
	}

	seen := make(map[string]time.Time)
	for _, r := range partners {
		seen[dateKey(r.ReportDate)] = r.ReportDate
	}
	for _, r := range hoses {
		seen[dateKey(r.ReportDate)] = r.ReportDate
	}
	generalByDate := make(map[string]*models.GeneralReport, len(generals))
	for _, r := range generals {
		generalByDate[dateKey(r.ReportDate)] = r
		seen[dateKey(r.ReportDate)] = r.ReportDate
	}

	dates := make([]time.Time, 0, len(seen))
	for _, d := range seen {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	results := make([]*DailyReconciliationResponse, 0, len(dates))
	for _, d := range dates {
		key := dateKey(d)
		results = append(results, BuildDailyReconciliation(
			stationId, d, partnerByDate[key], hoseByDate[key], generalByDate[key]))
	}
	return results, nil
}

func dateKey(t time.Time) string {
	return t.Format("2006-01-02")
}
