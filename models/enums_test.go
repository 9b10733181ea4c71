package models

import "testing"

func TestCycleStateTransitions(t *testing.T) {
	legal := []struct {
		from, to CycleState
	}{
		{CycleStateNotStarted, CycleStatePartnerDone},
		{CycleStatePartnerDone, CycleStateHoseDone},
		{CycleStateHoseDone, CycleStateCommitted},
		{CycleStateNotStarted, CycleStateAbandoned},
		{CycleStatePartnerDone, CycleStateAbandoned},
		{CycleStateHoseDone, CycleStateAbandoned},
	}
	for _, tc := range legal {
		if !tc.from.CanTransitionTo(tc.to) {
			t.Fatalf("expected %s -> %s to be legal", tc.from, tc.to)
		}
	}

	illegal := []struct {
		from, to CycleState
	}{
		{CycleStateNotStarted, CycleStateHoseDone},
		{CycleStateNotStarted, CycleStateCommitted},
		{CycleStatePartnerDone, CycleStateCommitted},
		{CycleStateHoseDone, CycleStatePartnerDone},
		{CycleStateCommitted, CycleStateAbandoned},
		{CycleStateAbandoned, CycleStateNotStarted},
		{CycleStateCommitted, CycleStateCommitted},
	}
	for _, tc := range illegal {
		if tc.from.CanTransitionTo(tc.to) {
			t.Fatalf("expected %s -> %s to be illegal", tc.from, tc.to)
		}
	}

	if !CycleStateCommitted.Terminal() || !CycleStateAbandoned.Terminal() {
		t.Fatal("committed and abandoned must be terminal")
	}
	if CycleStateNotStarted.Terminal() || CycleStatePartnerDone.Terminal() || CycleStateHoseDone.Terminal() {
		t.Fatal("in-flight states must not be terminal")
	}
}

func TestWriteAttemptStateTransitions(t *testing.T) {
	// the only two full walks the manager performs
	commit := []WriteAttemptState{WriteAttemptPending, WriteAttemptWritten, WriteAttemptVerifying, WriteAttemptCommitted}
	rollback := []WriteAttemptState{WriteAttemptPending, WriteAttemptWritten, WriteAttemptVerifying, WriteAttemptCompensating, WriteAttemptRolledBack}
	for _, walk := range [][]WriteAttemptState{commit, rollback} {
		for i := 0; i < len(walk)-1; i++ {
			if !walk[i].CanTransitionTo(walk[i+1]) {
				t.Fatalf("expected %s -> %s to be legal", walk[i], walk[i+1])
			}
		}
	}

	if WriteAttemptPending.CanTransitionTo(WriteAttemptVerifying) {
		t.Fatal("pending cannot skip to verifying")
	}
	if WriteAttemptWritten.CanTransitionTo(WriteAttemptCommitted) {
		t.Fatal("written cannot skip verification")
	}
	if WriteAttemptCommitted.CanTransitionTo(WriteAttemptCompensating) {
		t.Fatal("a committed attempt is final")
	}
	if WriteAttemptRolledBack.CanTransitionTo(WriteAttemptPending) {
		t.Fatal("a rolled-back attempt is final")
	}
}

func TestPartnerReportIsEmpty(t *testing.T) {
	empty := &NewPartnerReport{}
	if !empty.IsEmpty() {
		t.Fatal("no entries means empty")
	}
	zeros := &NewPartnerReport{Entries: []NewPartnerReportEntry{
		{ContractId: 1, Quantity: dec("0")},
		{ContractId: 2, Quantity: dec("0")},
	}}
	if !zeros.IsEmpty() {
		t.Fatal("all-zero quantities mean empty")
	}
	sold := &NewPartnerReport{Entries: []NewPartnerReportEntry{
		{ContractId: 1, Quantity: dec("0")},
		{ContractId: 2, Quantity: dec("5")},
	}}
	if sold.IsEmpty() {
		t.Fatal("a non-zero quantity means a real submission")
	}
}

func TestSubLedgerValid(t *testing.T) {
	for _, sl := range AllSubLedgers {
		if !sl.Valid() {
			t.Fatalf("%s should be valid", sl)
		}
	}
	if SubLedger("CASHBOX").Valid() {
		t.Fatal("unknown sub-ledger should be invalid")
	}
}
