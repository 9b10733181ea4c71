// seed-admin creates or updates the back-office admin user.
//
// Usage (from backend directory):
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-admin
//
// Password comes from SEED_ADMIN_PASSWORD; a missing value aborts rather
// than seeding a known default.
package main

import (
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/stationops_backend/config"
	"bitbucket.org/mmdatafocus/stationops_backend/models"
	"bitbucket.org/mmdatafocus/stationops_backend/utils"
	"gorm.io/gorm"
)

const (
	adminUsername = "stationopsAdmin"
	adminName     = "StationOps Admin"
)

func main() {
	password := os.Getenv("SEED_ADMIN_PASSWORD")
	if len(password) < 8 {
		fmt.Fprintln(os.Stderr, "SEED_ADMIN_PASSWORD must be set (at least 8 characters)")
		os.Exit(2)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	models.MigrateTable()

	hashed, err := utils.HashPassword(password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", err)
		os.Exit(1)
	}

	var existing models.User
	err = db.Where("username = ?", adminUsername).First(&existing).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		fmt.Fprintf(os.Stderr, "failed to lookup user: %v\n", err)
		os.Exit(1)
	}

	if err == gorm.ErrRecordNotFound {
		user := models.User{
			Username: adminUsername,
			Name:     adminName,
			Password: string(hashed),
			Role:     models.UserRoleAdmin,
			IsActive: utils.NewTrue(),
		}
		if err := db.Create(&user).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to create admin user: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("created admin user %q (id=%d)\n", adminUsername, user.ID)
		return
	}

	updates := map[string]interface{}{
		"Password": string(hashed),
		"Role":     models.UserRoleAdmin,
		"IsActive": utils.NewTrue(),
	}
	if err := db.Model(&existing).Updates(updates).Error; err != nil {
		fmt.Fprintf(os.Stderr, "failed to update admin user: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("updated admin user %q (id=%d)\n", adminUsername, existing.ID)
}
