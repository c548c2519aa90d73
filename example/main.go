package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/shepherrrd/gonmigrate"
	"github.com/shepherrrd/gonmigrate/internal/logging"
)

// First version of the model: property is a number.
type userV1 struct {
	ID        uint
	Email     string `gonmigrate:"size:255;unique"`
	Property  int
	CreatedAt time.Time
}

func (userV1) TableName() string { return "users" }

// Second version: property became free text and users got a nickname.
type userV2 struct {
	ID        uint
	Email     string `gonmigrate:"size:255;unique"`
	Property  string
	Nickname  *string
	CreatedAt time.Time
}

func (userV2) TableName() string { return "users" }

type post struct {
	ID        uint
	UserID    uint   `gonmigrate:"references:users.id;on_delete:cascade"`
	Title     string `gonmigrate:"size:200;index"`
	Published bool   `gonmigrate:"default:false"`
}

func main() {
	if err := run(context.Background()); err != nil {
		log.Fatalf("❌ %v", err)
	}
}

func run(ctx context.Context) error {
	fmt.Println("🚀 gonmigrate example: evolving a SQLite schema without losing data")
	fmt.Println("==================================================================")

	dir, err := os.MkdirTemp("", "gonmigrate-example")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	logger, err := logging.NewLogger(os.Stderr, "info", "text")
	if err != nil {
		return err
	}

	db, driver, err := gonmigrate.Open("sqlite", filepath.Join(dir, "blog.db"))
	if err != nil {
		return err
	}
	opts := gonmigrate.Options{
		MigrationsDir: filepath.Join(dir, "migrations"),
		Logger:        logger,
		Timeout:       time.Minute,
	}

	fmt.Println("\n📊 Step 1: create the tables")
	v1, err := gonmigrate.SchemaFromEntities(&userV1{}, &post{})
	if err != nil {
		return err
	}
	m, err := gonmigrate.NewMigrator(db, driver, v1, opts)
	if err != nil {
		return err
	}
	if err := createAndApply(ctx, m, "create_blog"); err != nil {
		return err
	}

	if err := db.Exec(`INSERT INTO users (email, property, created_at) VALUES (?, ?, ?)`,
		"ada@example.com", 5, time.Now()).Error; err != nil {
		return err
	}
	fmt.Println("✅ Inserted a user with property = 5")

	fmt.Println("\n📊 Step 2: property becomes a string")
	v2, err := gonmigrate.SchemaFromEntities(&userV2{}, &post{})
	if err != nil {
		return err
	}
	m, err = gonmigrate.NewMigrator(db, driver, v2, opts)
	if err != nil {
		return err
	}
	needed, err := m.CheckMigrationNeeded(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("🔍 Migration needed: %v\n", needed)
	if err := createAndApply(ctx, m, "property_to_string"); err != nil {
		return err
	}

	var property string
	if err := db.Raw(`SELECT property FROM users WHERE email = ?`, "ada@example.com").Scan(&property).Error; err != nil {
		return err
	}
	fmt.Printf("✅ property is now the string %q\n", property)

	fmt.Println("\n📋 Step 3: history")
	printHistory(ctx, m)

	fmt.Println("\n↩️  Step 4: roll back the last migration")
	reverted, err := m.Down(ctx, "")
	if err != nil {
		return err
	}
	fmt.Printf("✅ Reverted %v\n", reverted)
	printHistory(ctx, m)

	_, err = m.CreateMigration(ctx, "nothing")
	if errors.Is(err, gonmigrate.ErrNoChanges) {
		fmt.Println("\nℹ️  The snapshot still matches the model, no new migration is needed")
	}
	return nil
}

func createAndApply(ctx context.Context, m *gonmigrate.Migrator, name string) error {
	rec, err := m.CreateMigration(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to create migration %s: %w", name, err)
	}
	fmt.Printf("📝 Migration %s:\n", rec.ID)
	for _, stmt := range rec.Up {
		fmt.Printf("   %s;\n", stmt)
	}
	applied, err := m.Up(ctx, "")
	if err != nil {
		return err
	}
	fmt.Printf("✅ Applied %v\n", applied)
	return nil
}

func printHistory(ctx context.Context, m *gonmigrate.Migrator) {
	infos, err := m.ListMigrations(ctx)
	if err != nil {
		fmt.Printf("❌ Error listing migrations: %v\n", err)
		return
	}
	for _, info := range infos {
		fmt.Printf("   %-40s %s\n", info.ID, info.Status)
	}
}
