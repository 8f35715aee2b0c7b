package utils

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestPoolConfig_Defaults(t *testing.T) {
	got := PoolConfig{}.withDefaults()
	if got.MaxOpenConns != 10 || got.MaxIdleConns != 10 {
		t.Fatalf("unexpected conns: %+v", got)
	}
	if got.ConnMaxLifetime != 15*time.Minute || got.PingTimeout != 3*time.Second {
		t.Fatalf("unexpected durations: %+v", got)
	}

	kept := PoolConfig{MaxOpenConns: 3, MaxIdleConns: 8, PingTimeout: time.Second}.withDefaults()
	if kept.MaxOpenConns != 3 || kept.PingTimeout != time.Second {
		t.Fatalf("explicit values must be kept: %+v", kept)
	}
	if kept.MaxIdleConns != 3 {
		t.Fatalf("idle conns must not exceed open conns: %+v", kept)
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(fmt.Errorf("merge: %w", &pgconn.PgError{Code: "40001"})) {
		t.Fatalf("expected wrapped serialization failure to be retryable")
	}
	if !Retryable(&pgconn.PgError{Code: "40P01"}) {
		t.Fatalf("expected deadlock to be retryable")
	}
	if Retryable(&pgconn.PgError{Code: "23505"}) || Retryable(errors.New("boom")) {
		t.Fatalf("unexpected retryable error")
	}
}

func TestOpenPostgres_EmptyDSN(t *testing.T) {
	if _, err := OpenPostgres(context.Background(), "pgx", "", PoolConfig{}); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
}
