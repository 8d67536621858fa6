// Command admin_seed prepares a fresh database: it writes the default
// platform settings and creates the platform wallet. With ADMIN_USER_ID set
// it also prints a short-lived admin token for operators.
package main

import (
	"context"
	"log"
	"strconv"
	"time"

	"sayan/internal/config"
	"sayan/internal/models"
	"sayan/internal/repositories"
	"sayan/internal/services/settings"
	"sayan/internal/utils"
)

const adminTokenTTL = time.Hour

func main() {
	config.LoadEnv()
	cfg := config.Load()

	db, err := repositories.InitDB(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		sqlDB, err := db.DB()
		if err != nil {
			log.Printf("Failed to get SQL DB instance: %v", err)
			return
		}
		if err := sqlDB.Close(); err != nil {
			log.Printf("Failed to close PostgreSQL connection: %v", err)
		}
	}()

	inserted, err := settings.Seed(context.Background(), repositories.NewStore(db))
	if err != nil {
		log.Fatalf("Failed to seed: %v", err)
	}
	if len(inserted) == 0 {
		log.Println("Platform settings already present")
	} else {
		log.Printf("Seeded platform settings: %v", inserted)
	}
	log.Println("Platform wallet ready")

	rawID := config.GetEnv("ADMIN_USER_ID", "")
	if rawID == "" {
		return
	}
	id, err := strconv.ParseUint(rawID, 10, 64)
	if err != nil || id == 0 {
		log.Fatalf("ADMIN_USER_ID must be a positive integer")
	}
	token, err := utils.GenerateToken(cfg.Auth.JWTSecret, &models.UserClaims{
		UserID: uint(id),
		Role:   models.RoleAdmin,
	}, adminTokenTTL)
	if err != nil {
		log.Fatalf("Failed to issue admin token: %v", err)
	}
	log.Printf("Admin token (valid %s): %s", adminTokenTTL, token)
}
