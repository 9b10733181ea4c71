package workflow

import (
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/stationops_backend/models"
	"github.com/stretchr/testify/assert"
)

func datePtr(n int) *time.Time {
	d := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n-1)
	return &d
}

func TestComputeAlignment(t *testing.T) {
	cases := []struct {
		name    string
		partner *time.Time
		hose    *time.Time
		general *time.Time
		aligned bool
		lagging []models.SubLedger
	}{
		{
			name:    "all absent is aligned",
			aligned: true,
			lagging: []models.SubLedger{},
		},
		{
			name:    "all on the same date",
			partner: datePtr(5), hose: datePtr(5), general: datePtr(5),
			aligned: true,
			lagging: []models.SubLedger{},
		},
		{
			name:    "partner lags one day",
			partner: datePtr(4), hose: datePtr(5), general: datePtr(5),
			aligned: false,
			lagging: []models.SubLedger{models.SubLedgerPartner},
		},
		{
			name:    "hose and general lag after abandoned cycle",
			partner: datePtr(5), hose: datePtr(4), general: datePtr(4),
			aligned: false,
			lagging: []models.SubLedger{models.SubLedgerHose, models.SubLedgerGeneral},
		},
		{
			name: "one sub-ledger never written",
			hose: datePtr(5), general: datePtr(5),
			aligned: false,
			lagging: []models.SubLedger{models.SubLedgerPartner},
		},
		{
			name:    "pairwise different dates",
			partner: datePtr(3), hose: datePtr(4), general: datePtr(5),
			aligned: false,
			lagging: []models.SubLedger{models.SubLedgerPartner, models.SubLedgerHose},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ComputeAlignment(map[models.SubLedger]*time.Time{
				models.SubLedgerPartner: tc.partner,
				models.SubLedgerHose:    tc.hose,
				models.SubLedgerGeneral: tc.general,
			})
			assert.Equal(t, tc.aligned, got.Aligned)
			assert.Equal(t, tc.lagging, got.Lagging)
		})
	}
}
