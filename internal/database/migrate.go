// Package database はデータベース接続とマイグレーション管理を提供する。
package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// NewMigrator はマイグレーション実行用のmigrateインスタンスを生成する。
// databaseURLはPostgreSQLの接続URLを指定する。
func NewMigrator(databaseURL string) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}

	return m, nil
}

// RunMigrations はすべてのマイグレーションを適用し、適用後のバージョンを返す。
// すでに最新の場合はエラーなしで返る。
func RunMigrations(databaseURL string) (uint, error) {
	m, err := NewMigrator(databaseURL)
	if err != nil {
		return 0, err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("failed to run migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, fmt.Errorf("failed to read migration version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("database is dirty at version %d", version)
	}

	return version, nil
}

// RollbackLast は直近のマイグレーションを1つだけ巻き戻す。
func RollbackLast(databaseURL string) error {
	m, err := NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Steps(-1); err != nil {
		return fmt.Errorf("failed to roll back migration: %w", err)
	}
	return nil
}
