package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	nanoid "github.com/matoous/go-nanoid/v2"
)

// Token defaults.
const (
	DefaultTokenTTL = 24 * time.Hour
	DefaultIssuer   = "agentic-pipeline"
)

// MinSecretLength is the shortest accepted HMAC secret.
const MinSecretLength = 32

// TokenConfig holds configuration for approval token generation and
// validation.
type TokenConfig struct {
	// Secret is the HMAC signing key (must be at least 32 bytes).
	Secret []byte

	// Issuer is the token issuer. Defaults to DefaultIssuer.
	Issuer string

	// TTL is the token lifetime. Defaults to DefaultTokenTTL if zero.
	TTL time.Duration
}

func (c TokenConfig) ttl() time.Duration {
	if c.TTL == 0 {
		return DefaultTokenTTL
	}
	return c.TTL
}

func (c TokenConfig) issuer() string {
	if c.Issuer == "" {
		return DefaultIssuer
	}
	return c.Issuer
}

// ApprovalClaims are the claims carried by an approval token.
type ApprovalClaims struct {
	jwt.RegisteredClaims

	// RunID limits the token to a single run. Empty means any run.
	RunID string `json:"run,omitempty"`
}

// Approver returns the identity that approves with this token.
func (c *ApprovalClaims) Approver() string {
	return c.Subject
}

// Authorizes reports whether the token may approve runID.
func (c *ApprovalClaims) Authorizes(runID string) bool {
	return c.RunID == "" || c.RunID == runID
}

// IssueApprovalToken creates a signed token for approver. A non-empty runID
// scopes the token to that run.
func IssueApprovalToken(cfg TokenConfig, approver, runID string) (string, error) {
	if len(cfg.Secret) < MinSecretLength {
		return "", ErrSecretTooShort
	}
	if approver == "" {
		return "", ErrApproverRequired
	}

	tokenID, err := nanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate token ID: %w", err)
	}

	now := time.Now()
	claims := ApprovalClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.issuer(),
			Subject:   approver,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.ttl())),
			ID:        tokenID,
		},
		RunID: runID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(cfg.Secret)
}

// ValidateApprovalToken parses and validates an approval token.
func ValidateApprovalToken(cfg TokenConfig, tokenString string) (*ApprovalClaims, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, ErrSecretTooShort
	}

	claims := &ApprovalClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return cfg.Secret, nil
	}, jwt.WithIssuer(cfg.issuer()))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// AuthorizeApproval validates tokenString and checks that it may approve
// runID. It returns the approver.
func AuthorizeApproval(cfg TokenConfig, tokenString, runID string) (string, error) {
	claims, err := ValidateApprovalToken(cfg, tokenString)
	if err != nil {
		return "", err
	}
	if !claims.Authorizes(runID) {
		return "", fmt.Errorf("%w: %s", ErrRunNotAuthorized, runID)
	}
	return claims.Approver(), nil
}
