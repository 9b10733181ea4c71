package models

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(v string) decimal.Decimal {
	d, err := decimal.NewFromString(v)
	if err != nil {
		panic(err)
	}
	return d
}

func TestReceiveHoseEntriesFirstReport(t *testing.T) {
	input := &NewHoseReport{Hoses: []NewHoseReportEntry{
		{HoseNo: 1, Previous: dec("1000"), Current: dec("1060"), UnitPrice: dec("5000")},
		{HoseNo: 2, Previous: dec("2000"), Current: dec("2040"), UnitPrice: dec("5000")},
	}}

	entries, totalDelta, totalAmount, err := ReceiveHoseEntries(input, nil, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if !totalDelta.Equal(dec("100")) {
		t.Fatalf("expected total delta 100, got %s", totalDelta)
	}
	if !totalAmount.Equal(dec("500000")) {
		t.Fatalf("expected total amount 500000, got %s", totalAmount)
	}
	if !entries[0].Delta.Equal(dec("60")) || !entries[0].Amount.Equal(dec("300000")) {
		t.Fatalf("hose 1 derivation wrong: %+v", entries[0])
	}
}

func TestReceiveHoseEntriesMustCoverAllHoses(t *testing.T) {
	input := &NewHoseReport{Hoses: []NewHoseReportEntry{
		{HoseNo: 1, Current: dec("10"), UnitPrice: dec("5000")},
	}}
	if _, _, _, err := ReceiveHoseEntries(input, nil, 4); err == nil {
		t.Fatal("expected error for incomplete hose coverage")
	}

	dup := &NewHoseReport{Hoses: []NewHoseReportEntry{
		{HoseNo: 1, Current: dec("10"), UnitPrice: dec("5000")},
		{HoseNo: 1, Current: dec("20"), UnitPrice: dec("5000")},
	}}
	if _, _, _, err := ReceiveHoseEntries(dup, nil, 2); err == nil {
		t.Fatal("expected error for duplicate hose number")
	}
}

func TestReceiveHoseEntriesInvalidReading(t *testing.T) {
	input := &NewHoseReport{Hoses: []NewHoseReportEntry{
		{HoseNo: 1, Previous: dec("1000"), Current: dec("900"), UnitPrice: dec("5000")},
		{HoseNo: 2, Previous: dec("0"), Current: dec("10"), UnitPrice: dec("5000")},
	}}
	_, _, _, err := ReceiveHoseEntries(input, nil, 2)
	if !errors.Is(err, ErrInvalidReading) {
		t.Fatalf("expected ErrInvalidReading, got %v", err)
	}
}

func TestReceiveHoseEntriesCarryForward(t *testing.T) {
	prior := &HoseReport{Hoses: []HoseReportEntry{
		{HoseNo: 1, Current: dec("1060")},
		{HoseNo: 2, Current: dec("2040")},
	}}

	// a zero previous takes the carried-forward reading silently
	input := &NewHoseReport{Hoses: []NewHoseReportEntry{
		{HoseNo: 1, Current: dec("1100"), UnitPrice: dec("5000")},
		{HoseNo: 2, Previous: dec("2040"), Current: dec("2080"), UnitPrice: dec("5000")},
	}}
	entries, totalDelta, _, err := ReceiveHoseEntries(input, prior, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !entries[0].Previous.Equal(dec("1060")) {
		t.Fatalf("expected carried-forward previous 1060, got %s", entries[0].Previous)
	}
	if !totalDelta.Equal(dec("80")) {
		t.Fatalf("expected total delta 80, got %s", totalDelta)
	}

	// a non-zero previous disagreeing with yesterday's current is rejected
	tampered := &NewHoseReport{Hoses: []NewHoseReportEntry{
		{HoseNo: 1, Previous: dec("900"), Current: dec("1100"), UnitPrice: dec("5000")},
		{HoseNo: 2, Previous: dec("2040"), Current: dec("2080"), UnitPrice: dec("5000")},
	}}
	if _, _, _, err := ReceiveHoseEntries(tampered, prior, 2); err == nil {
		t.Fatal("expected error for edited previous reading")
	}
}

func TestReceiveHoseEntriesZeroDeltaDay(t *testing.T) {
	prior := &HoseReport{Hoses: []HoseReportEntry{
		{HoseNo: 1, Current: dec("500")},
		{HoseNo: 2, Current: dec("700")},
	}}
	input := &NewHoseReport{Hoses: []NewHoseReportEntry{
		{HoseNo: 1, Current: dec("500"), UnitPrice: dec("5000")},
		{HoseNo: 2, Current: dec("700"), UnitPrice: dec("5000")},
	}}
	_, totalDelta, totalAmount, err := ReceiveHoseEntries(input, prior, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !totalDelta.Equal(decimal.Zero) || !totalAmount.Equal(decimal.Zero) {
		t.Fatalf("expected zero delta and amount, got %s / %s", totalDelta, totalAmount)
	}
}
