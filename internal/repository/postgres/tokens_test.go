package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/jash90/accounting-platform-sub001/internal/core/domain"
	"github.com/jash90/accounting-platform-sub001/internal/repository"
)

func TestTokenRepository_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewTokenRepository(mock)

	createdAt := time.Now().UTC()
	sessionID := "session-1"
	token := domain.OpaqueToken{
		ID:         "token-1",
		IdentityID: "identity-1",
		Kind:       domain.TokenKindRefresh,
		TokenHash:  "abcdef",
		SessionID:  &sessionID,
		CreatedAt:  createdAt,
		ExpiresAt:  createdAt.Add(720 * time.Hour),
	}

	mock.ExpectExec(`INSERT INTO auth\.opaque_tokens`).
		WithArgs(
			token.ID,
			token.IdentityID,
			token.Kind,
			token.TokenHash,
			token.SessionID,
			token.DeviceID,
			token.Origin,
			token.UserAgent,
			token.CreatedAt,
			token.ExpiresAt,
			token.RevokedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := repo.Create(context.Background(), token); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTokenRepository_CreateDuplicateHash(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewTokenRepository(mock)

	mock.ExpectExec(`INSERT INTO auth\.opaque_tokens`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	token := domain.OpaqueToken{
		ID:         "token-1",
		IdentityID: "identity-1",
		Kind:       domain.TokenKindRefresh,
		TokenHash:  "abcdef",
	}
	if err := repo.Create(context.Background(), token); !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestTokenRepository_GetByHash(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewTokenRepository(mock)

	createdAt := time.Now().UTC()
	expiresAt := createdAt.Add(30 * time.Minute)
	sessionID := "session-1"

	rows := pgxmock.NewRows([]string{
		"id", "identity_id", "kind", "token_hash", "session_id", "device_id", "origin", "user_agent", "created_at", "expires_at", "revoked_at",
	}).AddRow(
		"token-1", "identity-1", domain.TokenKindPasswordReset, "abcdef", &sessionID, nil, nil, nil, createdAt, expiresAt, nil,
	)

	mock.ExpectQuery(`SELECT .+ FROM auth\.opaque_tokens WHERE kind = \$1 AND token_hash = \$2`).
		WithArgs(domain.TokenKindPasswordReset, "abcdef").
		WillReturnRows(rows)

	token, err := repo.GetByHash(context.Background(), domain.TokenKindPasswordReset, "abcdef")
	if err != nil {
		t.Fatalf("GetByHash returned error: %v", err)
	}
	if token.ID != "token-1" {
		t.Fatalf("expected token-1, got %s", token.ID)
	}
	if token.Kind != domain.TokenKindPasswordReset {
		t.Fatalf("expected password reset kind, got %s", token.Kind)
	}
	if token.SessionID == nil || *token.SessionID != sessionID {
		t.Fatalf("expected session id %q, got %v", sessionID, token.SessionID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTokenRepository_GetByHash_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewTokenRepository(mock)

	rows := pgxmock.NewRows([]string{
		"id", "identity_id", "kind", "token_hash", "session_id", "device_id", "origin", "user_agent", "created_at", "expires_at", "revoked_at",
	})

	mock.ExpectQuery(`SELECT .+ FROM auth\.opaque_tokens WHERE kind = \$1 AND token_hash = \$2`).
		WithArgs(domain.TokenKindRefresh, "missing").
		WillReturnRows(rows)

	if _, err := repo.GetByHash(context.Background(), domain.TokenKindRefresh, "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
