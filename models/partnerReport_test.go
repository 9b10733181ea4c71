package models

import (
	"testing"
	"time"
)

func testDate(n int) time.Time {
	return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n-1)
}

func testContracts() []*Contract {
	return []*Contract{
		{
			ID:          1,
			PartnerName: "Aung Myay Transport",
			Prices: []ContractPrice{
				{UnitPrice: dec("4800"), EffectiveFrom: testDate(1)},
				{UnitPrice: dec("5100"), EffectiveFrom: testDate(10)},
			},
		},
		{
			ID:          2,
			PartnerName: "Golden Valley Logistics",
			Prices: []ContractPrice{
				{UnitPrice: dec("4500"), EffectiveFrom: testDate(1)},
			},
		},
	}
}

func TestContractPriceOn(t *testing.T) {
	contract := testContracts()[0]

	price, err := contract.PriceOn(testDate(5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !price.Equal(dec("4800")) {
		t.Fatalf("expected 4800 before the raise, got %s", price)
	}

	price, err = contract.PriceOn(testDate(10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !price.Equal(dec("5100")) {
		t.Fatalf("expected 5100 from the effective date on, got %s", price)
	}

	if _, err := contract.PriceOn(testDate(1).AddDate(0, 0, -1)); err == nil {
		t.Fatal("expected error for a date before any price")
	}
}

func TestReceivePartnerEntriesPricesPerContract(t *testing.T) {
	input := &NewPartnerReport{Entries: []NewPartnerReportEntry{
		{ContractId: 1, Quantity: dec("10")},
		{ContractId: 2, Quantity: dec("0")},
	}}

	entries, totalQuantity, totalAmount, err := receivePartnerEntries(input, testContracts(), testDate(12))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// the zero-quantity line is dropped, not stored
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if !entries[0].UnitPrice.Equal(dec("5100")) {
		t.Fatalf("expected the price effective on the report date, got %s", entries[0].UnitPrice)
	}
	if !totalQuantity.Equal(dec("10")) || !totalAmount.Equal(dec("51000")) {
		t.Fatalf("totals wrong: %s / %s", totalQuantity, totalAmount)
	}
}

func TestReceivePartnerEntriesRejections(t *testing.T) {
	contracts := testContracts()
	cases := []struct {
		name  string
		input *NewPartnerReport
	}{
		{"negative quantity", &NewPartnerReport{Entries: []NewPartnerReportEntry{
			{ContractId: 1, Quantity: dec("-1")},
		}}},
		{"duplicate contract", &NewPartnerReport{Entries: []NewPartnerReportEntry{
			{ContractId: 1, Quantity: dec("1")},
			{ContractId: 1, Quantity: dec("2")},
		}}},
		{"unknown contract", &NewPartnerReport{Entries: []NewPartnerReportEntry{
			{ContractId: 99, Quantity: dec("1")},
		}}},
	}
	for _, tc := range cases {
		if _, _, _, err := receivePartnerEntries(tc.input, contracts, testDate(5)); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}
