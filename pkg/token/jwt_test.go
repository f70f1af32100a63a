package token

import (
	"testing"
	"time"
)

func TestJWTManager_RoundTrip(t *testing.T) {
	m := NewJWTManager("secret", "pdf-vectorize-go")
	tok, err := m.GenerateToken("ingest-worker", []string{"vectorize"}, time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	claims, err := m.VerifyToken(tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != "ingest-worker" || !claims.HasScope("vectorize") || claims.HasScope("admin") {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestJWTManager_Rejects(t *testing.T) {
	m := NewJWTManager("secret", "pdf-vectorize-go")

	noExpiry, _ := m.GenerateToken("svc", nil, 0)
	// ttl <= 0 表示不过期
	if _, err := m.VerifyToken(noExpiry); err != nil {
		t.Fatalf("token without expiry rejected: %v", err)
	}

	other := NewJWTManager("other-secret", "pdf-vectorize-go")
	tok, _ := other.GenerateToken("svc", nil, time.Hour)
	if _, err := m.VerifyToken(tok); err == nil {
		t.Fatal("token signed with another secret accepted")
	}

	wrongIssuer := NewJWTManager("secret", "someone-else")
	tok, _ = wrongIssuer.GenerateToken("svc", nil, time.Hour)
	if _, err := m.VerifyToken(tok); err == nil {
		t.Fatal("token from another issuer accepted")
	}

	if _, err := m.VerifyToken("not-a-token"); err == nil {
		t.Fatal("garbage accepted")
	}
}
