package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestReceiveTerminalAmounts(t *testing.T) {
	terminals, err := ReceiveTerminalAmounts([]NewTerminalAmount{
		{Channel: "KBZPay", Amount: dec("100000")},
		{Channel: "WavePay", Amount: dec("0")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(terminals) != 2 {
		t.Fatalf("expected 2 terminals, got %d", len(terminals))
	}

	cases := []struct {
		name  string
		input []NewTerminalAmount
	}{
		{"single channel", []NewTerminalAmount{{Channel: "KBZPay", Amount: dec("1")}}},
		{"duplicate channel", []NewTerminalAmount{
			{Channel: "KBZPay", Amount: dec("1")},
			{Channel: "KBZPay", Amount: dec("2")},
		}},
		{"negative amount", []NewTerminalAmount{
			{Channel: "KBZPay", Amount: dec("-1")},
			{Channel: "WavePay", Amount: dec("2")},
		}},
		{"empty channel name", []NewTerminalAmount{
			{Channel: "", Amount: dec("1")},
			{Channel: "WavePay", Amount: dec("2")},
		}},
	}
	for _, tc := range cases {
		if _, err := ReceiveTerminalAmounts(tc.input); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestControlSumEntryLocked(t *testing.T) {
	entry := ControlSumEntry{Value: decimal.Zero}
	if entry.Locked() {
		t.Fatal("zero value must read as unset, not locked")
	}
	entry.Value = dec("250000")
	if !entry.Locked() {
		t.Fatal("non-zero value must read as locked")
	}
}

func TestControlSumWritable(t *testing.T) {
	if err := controlSumWritable(nil); err != nil {
		t.Fatalf("absent entry must be writable: %v", err)
	}
	placeholder := &ControlSumEntry{Value: decimal.Zero}
	if err := controlSumWritable(placeholder); err != nil {
		t.Fatalf("zero-valued placeholder must be writable: %v", err)
	}

	locked := &ControlSumEntry{Value: dec("95000"), ReceiptNumber: "RC-001"}
	// once committed, every rewrite is refused whatever the new value would be
	newValues := []string{"95000", "100000", "1", "0.0001"}
	for _, v := range newValues {
		if err := controlSumWritable(locked); err != ErrControlSumLocked {
			t.Fatalf("new value %s: expected ErrControlSumLocked, got %v", v, err)
		}
	}
}

func TestGeneralReportTerminalTotalAndLookup(t *testing.T) {
	report := &GeneralReport{
		Terminals: []TerminalAmount{
			{Channel: "KBZPay", Amount: dec("100000")},
			{Channel: "WavePay", Amount: dec("50000")},
		},
		ControlSums: []ControlSumEntry{
			{Category: ControlSumCategoryCash, Value: dec("250000")},
		},
	}
	if got := report.TerminalTotal(); !got.Equal(dec("150000")) {
		t.Fatalf("expected terminal total 150000, got %s", got)
	}
	if report.ControlSum(ControlSumCategoryCash) == nil {
		t.Fatal("expected cash control sum to be found")
	}
	if report.ControlSum(TerminalControlSumCategory("KBZPay")) != nil {
		t.Fatal("expected absent category to return nil")
	}
}
