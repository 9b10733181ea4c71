package models

import (
	"log"

	"bitbucket.org/mmdatafocus/stationops_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Station{},
		&Contract{}, &ContractPrice{}, &ContractTransaction{},
		&PartnerReport{}, &PartnerReportEntry{},
		&HoseReport{}, &HoseReportEntry{},
		&GeneralReport{}, &TerminalAmount{}, &ControlSumEntry{},
		&ReportCursor{},
		&ReportingCycle{},
		&WriteAttempt{},
		&AuditLog{},
		&User{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
