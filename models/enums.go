package models

// SubLedger names one of the three per-station, per-date record streams.
type SubLedger string

const (
	SubLedgerPartner SubLedger = "PARTNER"
	SubLedgerHose    SubLedger = "HOSE"
	SubLedgerGeneral SubLedger = "GENERAL"
)

func (s SubLedger) Valid() bool {
	switch s {
	case SubLedgerPartner, SubLedgerHose, SubLedgerGeneral:
		return true
	}
	return false
}

var AllSubLedgers = []SubLedger{SubLedgerPartner, SubLedgerHose, SubLedgerGeneral}

// CycleState is the persisted reporting-cycle state machine. A cycle is one
// partner -> hose -> general sequence for a station/date. Any session may
// resume or abandon a cycle it did not start.
type CycleState string

const (
	CycleStateNotStarted  CycleState = "NOT_STARTED"
	CycleStatePartnerDone CycleState = "PARTNER_DONE"
	CycleStateHoseDone    CycleState = "HOSE_DONE"
	CycleStateCommitted   CycleState = "COMMITTED"
	CycleStateAbandoned   CycleState = "ABANDONED"
)

// CanTransitionTo enforces the legal cycle progression. Committed and
// Abandoned are terminal.
func (s CycleState) CanTransitionTo(next CycleState) bool {
	switch s {
	case CycleStateNotStarted:
		return next == CycleStatePartnerDone || next == CycleStateAbandoned
	case CycleStatePartnerDone:
		return next == CycleStateHoseDone || next == CycleStateAbandoned
	case CycleStateHoseDone:
		return next == CycleStateCommitted || next == CycleStateAbandoned
	}
	return false
}

func (s CycleState) Terminal() bool {
	return s == CycleStateCommitted || s == CycleStateAbandoned
}

// WriteAttemptState tracks one write-verify-compensate pass over a sub-ledger
// record. The store enforces no schema, so every accepted write is re-read
// and field-checked before it counts.
type WriteAttemptState string

const (
	WriteAttemptPending      WriteAttemptState = "PENDING"
	WriteAttemptWritten      WriteAttemptState = "WRITTEN"
	WriteAttemptVerifying    WriteAttemptState = "VERIFYING"
	WriteAttemptCommitted    WriteAttemptState = "COMMITTED"
	WriteAttemptCompensating WriteAttemptState = "COMPENSATING"
	WriteAttemptRolledBack   WriteAttemptState = "ROLLED_BACK"
)

func (s WriteAttemptState) CanTransitionTo(next WriteAttemptState) bool {
	switch s {
	case WriteAttemptPending:
		return next == WriteAttemptWritten
	case WriteAttemptWritten:
		return next == WriteAttemptVerifying
	case WriteAttemptVerifying:
		return next == WriteAttemptCommitted || next == WriteAttemptCompensating
	case WriteAttemptCompensating:
		return next == WriteAttemptRolledBack
	}
	return false
}

// Control-sum categories. Per-terminal sums use TerminalControlSumCategory.
const (
	ControlSumCategoryCash = "CASH"

	controlSumTerminalPrefix = "TERMINAL:"
)

func TerminalControlSumCategory(channel string) string {
	return controlSumTerminalPrefix + channel
}

type UserRole string

const (
	UserRoleAdmin   UserRole = "ADMIN"
	UserRoleManager UserRole = "MANAGER"
	UserRoleAuditor UserRole = "AUDITOR"
)

// Audit actions.
const (
	AuditActionCreate     = "CREATE"
	AuditActionCompensate = "COMPENSATE"
	AuditActionLock       = "LOCK"
	AuditActionAbandon    = "ABANDON"
)
