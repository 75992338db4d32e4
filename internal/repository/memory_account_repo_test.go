package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"

	"account-portal/internal/domain"
)

func TestMemoryAccountRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryAccountRepository()

	user := domain.User{ID: "u1", Email: "Ana@X.com", AuthProvider: domain.AuthProviderPassword}
	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Create(ctx, domain.User{ID: "u2", Email: "ana@x.com"}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for same email, got %v", err)
	}

	got, err := repo.GetByEmail(ctx, "ana@x.com")
	if err != nil || got.ID != "u1" {
		t.Fatalf("expected u1 by email, got %+v err=%v", got, err)
	}

	if err := repo.LinkOAuth(ctx, "u1", domain.AuthProviderGoogle, "g-1"); err != nil {
		t.Fatalf("link: %v", err)
	}
	got, err = repo.GetByAuth(ctx, domain.AuthProviderGoogle, "g-1")
	if err != nil || got.ID != "u1" {
		t.Fatalf("expected u1 by auth, got %+v err=%v", got, err)
	}

	if err := repo.UpdateDisplayName(ctx, "u1", "Ana Li"); err != nil {
		t.Fatalf("update display name: %v", err)
	}
	got, _ = repo.GetByID(ctx, "u1")
	if got.DisplayName != "Ana Li" {
		t.Fatalf("expected display name, got %q", got.DisplayName)
	}

	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("expected pgx.ErrNoRows, got %v", err)
	}
	if err := repo.UpdateDisplayName(ctx, "missing", "x"); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("expected pgx.ErrNoRows, got %v", err)
	}
}
