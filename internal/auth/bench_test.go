package auth

import (
	"testing"
	"time"
)

// ─── Password hashing (Argon2id, intentionally slow) ────────────────

func BenchmarkHashPassword(b *testing.B) {
	for b.Loop() {
		HashPassword("correct-horse-battery-staple") //nolint:errcheck // benchmark
	}
}

func BenchmarkVerifyPassword(b *testing.B) {
	hash, err := HashPassword("correct-horse-battery-staple")
	if err != nil {
		b.Fatalf("HashPassword: %v", err)
	}

	for b.Loop() {
		VerifyPassword("correct-horse-battery-staple", hash) //nolint:errcheck // benchmark
	}
}

// ─── JWT tokens (per-request hot path) ──────────────────────────────

func BenchmarkParseToken(b *testing.B) {
	user := &User{ID: 7, Role: RoleAdmin}
	secret := []byte("benchmark-secret-key-32-bytes-xx")

	token, err := GenerateAccessToken(user, secret, 15*time.Minute)
	if err != nil {
		b.Fatalf("GenerateAccessToken: %v", err)
	}

	for b.Loop() {
		ParseToken(token, secret) //nolint:errcheck // benchmark
	}
}
