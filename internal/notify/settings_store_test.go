package notify

import (
	"context"
	"testing"

	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestPostgresSettingsStoreGet(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := newPostgresSettingsStoreWithQuerier(mock)

	mock.ExpectQuery("SELECT t.name, t.email_notifications_enabled").
		WithArgs("tenant-1").
		WillReturnRows(pgxmock.NewRows([]string{"name", "enabled", "extras", "owner_email", "owner_name"}).
			AddRow("Acme Realty", true, "agent@acme.example,backup@acme.example", "owner@acme.example", "Olive Owner"))

	cfg, err := store.Get(context.Background(), "tenant-1")
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	if !cfg.Enabled || cfg.OwnerEmail != "owner@acme.example" || cfg.TenantName != "Acme Realty" {
		t.Fatalf("unexpected settings: %+v", cfg)
	}
	if cfg.AdditionalEmails != "agent@acme.example,backup@acme.example" {
		t.Fatalf("unexpected extras: %v", cfg.AdditionalEmails)
	}

	mock.ExpectQuery("SELECT t.name, t.email_notifications_enabled").
		WithArgs("tenant-x").
		WillReturnError(pgx.ErrNoRows)
	if _, err := store.Get(context.Background(), "tenant-x"); err != ErrTenantSettingsNotFound {
		t.Fatalf("expected ErrTenantSettingsNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
