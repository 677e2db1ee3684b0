// Package testutil provides an isolated, migrated database and fixtures for tests.
package testutil

import (
	"fmt"
	"strings"
	"testing"

	"fruittrace/internal/config"
	"fruittrace/internal/database"
	"fruittrace/internal/model"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// NewDB returns a fresh in-memory SQLite database with the full schema.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()) + "_" + uuid.NewString()[:8]
	db, err := database.NewConnection(config.DBConfig{
		Driver: "sqlite",
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

// CreateUser inserts a user whose password is "secret".
func CreateUser(t testing.TB, db *gorm.DB, username string, role model.Role) *model.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u := &model.User{Username: username, Email: username + "@fruittrace.test", Password: string(hash), Role: role}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func CreateFarm(t testing.TB, db *gorm.DB, name string) *model.Farm {
	t.Helper()
	f := &model.Farm{Name: name, Address: "12 Orchard Road", Owner: "Le Thi Hoa", Contact: "+84 90 000 0000"}
	if err := db.Create(f).Error; err != nil {
		t.Fatalf("create farm: %v", err)
	}
	return f
}

func CreateCertification(t testing.TB, db *gorm.DB, name string) *model.Certification {
	t.Helper()
	c := &model.Certification{Name: name, Issuer: "VietGAP Office"}
	if err := db.Create(c).Error; err != nil {
		t.Fatalf("create certification: %v", err)
	}
	return c
}

// Count returns the number of rows in the model's table.
func Count(t testing.TB, db *gorm.DB, m interface{}) int64 {
	t.Helper()
	var n int64
	if err := db.Model(m).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}
