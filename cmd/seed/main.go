// Command seed inserts demo accounts so the portal can be exercised
// straight after a fresh migration. Existing rows are left untouched.
package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/ST10067544-Thato/JS-Demons-Payment-Portal/pkg/auth"
	"github.com/ST10067544-Thato/JS-Demons-Payment-Portal/pkg/models"
	"github.com/ST10067544-Thato/JS-Demons-Payment-Portal/pkg/store"

	"github.com/google/uuid"
)

type seedAccount struct {
	Username      string
	FullName      string
	IDNumber      string
	AccountNumber string
	Password      string
	Role          string
}

var demoAccounts = []seedAccount{
	{
		Username:      "demo_employee",
		FullName:      "Naledi Dlamini",
		IDNumber:      "9001015800087",
		AccountNumber: "1000000001",
		Password:      "EmployeeDemo1!",
		Role:          models.RoleEmployee,
	},
	{
		Username:      "demo_customer",
		FullName:      "Thabo Nkosi",
		IDNumber:      "9502026800086",
		AccountNumber: "2000000002",
		Password:      "CustomerDemo1!",
		Role:          models.RoleCustomer,
	},
}

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := store.NewPostgresPool(ctx)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	for _, acc := range demoAccounts {
		password := acc.Password
		if override := os.Getenv("SEED_PASSWORD"); override != "" {
			password = override
		}
		hash, err := auth.HashPassword(password)
		if err != nil {
			log.Fatalf("hash password for %s: %v", acc.Username, err)
		}
		tag, err := pool.Exec(ctx, `
			INSERT INTO users (id, username, full_name, id_number, account_number, password_hash, role)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			ON CONFLICT (username) DO NOTHING
		`, uuid.NewString(), acc.Username, acc.FullName, acc.IDNumber, acc.AccountNumber, hash, acc.Role)
		if err != nil {
			log.Fatalf("seed %s: %v", acc.Username, err)
		}
		if tag.RowsAffected() == 0 {
			log.Printf("seed %s: already present", acc.Username)
			continue
		}
		log.Printf("seeded %s (%s)", acc.Username, acc.Role)
	}
}
