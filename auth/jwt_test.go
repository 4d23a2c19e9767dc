package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("this-is-a-test-secret-key-32-bytes!")

func TestIssueApprovalToken(t *testing.T) {
	cfg := TokenConfig{Secret: testSecret}

	t.Run("round trip", func(t *testing.T) {
		token, err := IssueApprovalToken(cfg, "alice", "a1b2c3d4")
		if err != nil {
			t.Fatalf("IssueApprovalToken() error = %v", err)
		}

		claims, err := ValidateApprovalToken(cfg, token)
		if err != nil {
			t.Fatalf("ValidateApprovalToken() error = %v", err)
		}
		if claims.Approver() != "alice" {
			t.Errorf("Approver() = %q, want alice", claims.Approver())
		}
		if claims.RunID != "a1b2c3d4" {
			t.Errorf("RunID = %q", claims.RunID)
		}
		if claims.Issuer != DefaultIssuer {
			t.Errorf("Issuer = %q, want %q", claims.Issuer, DefaultIssuer)
		}
		if claims.ID == "" {
			t.Error("token ID should be set")
		}
		if ttl := claims.ExpiresAt.Sub(claims.IssuedAt.Time); ttl != DefaultTokenTTL {
			t.Errorf("ttl = %v, want %v", ttl, DefaultTokenTTL)
		}
	})

	t.Run("secret too short", func(t *testing.T) {
		_, err := IssueApprovalToken(TokenConfig{Secret: []byte("short")}, "alice", "")
		if !errors.Is(err, ErrSecretTooShort) {
			t.Errorf("error = %v, want ErrSecretTooShort", err)
		}
	})

	t.Run("approver required", func(t *testing.T) {
		_, err := IssueApprovalToken(cfg, "", "")
		if !errors.Is(err, ErrApproverRequired) {
			t.Errorf("error = %v, want ErrApproverRequired", err)
		}
	})
}

func TestValidateApprovalToken(t *testing.T) {
	cfg := TokenConfig{Secret: testSecret, Issuer: "ci"}

	sign := func(claims jwt.Claims, method jwt.SigningMethod, key any) string {
		t.Helper()
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return s
	}
	now := time.Now()
	valid := func() ApprovalClaims {
		return ApprovalClaims{RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "ci",
			Subject:   "bob",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		}}
	}

	expired := valid()
	expired.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Minute))
	wrongIssuer := valid()
	wrongIssuer.Issuer = "someone-else"
	noSubject := valid()
	noSubject.Subject = ""

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{"valid", sign(valid(), jwt.SigningMethodHS256, testSecret), nil},
		{"expired", sign(expired, jwt.SigningMethodHS256, testSecret), ErrTokenExpired},
		{"wrong issuer", sign(wrongIssuer, jwt.SigningMethodHS256, testSecret), ErrInvalidToken},
		{"missing subject", sign(noSubject, jwt.SigningMethodHS256, testSecret), ErrInvalidToken},
		{"wrong secret", sign(valid(), jwt.SigningMethodHS256, []byte("another-secret-that-is-32-bytes-long")), ErrInvalidToken},
		{"unsigned", sign(valid(), jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType), ErrInvalidToken},
		{"garbage", "not.a.token", ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateApprovalToken(cfg, tt.token)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestAuthorizeApproval(t *testing.T) {
	cfg := TokenConfig{Secret: testSecret}

	scoped, err := IssueApprovalToken(cfg, "alice", "run1")
	if err != nil {
		t.Fatal(err)
	}
	unscoped, err := IssueApprovalToken(cfg, "carol", "")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		token   string
		runID   string
		want    string
		wantErr error
	}{
		{"scoped match", scoped, "run1", "alice", nil},
		{"scoped mismatch", scoped, "run2", "", ErrRunNotAuthorized},
		{"unscoped", unscoped, "run2", "carol", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AuthorizeApproval(cfg, tt.token, tt.runID)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("approver = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTokenConfig_Defaults(t *testing.T) {
	if got := (TokenConfig{}).ttl(); got != DefaultTokenTTL {
		t.Errorf("ttl() = %v", got)
	}
	if got := (TokenConfig{TTL: time.Minute}).ttl(); got != time.Minute {
		t.Errorf("ttl() = %v", got)
	}
	if got := (TokenConfig{}).issuer(); got != DefaultIssuer {
		t.Errorf("issuer() = %q", got)
	}
}
