package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"calltrack/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const serviceTokenTTL = time.Hour

// RoleSuperAdmin is the only role whose tokens may carry no tenant.
const RoleSuperAdmin = "super_admin"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
	TokenTypeService TokenType = "service" // service account calling /internal/recompute
)

// Claims is the one token shape: user tokens carry UserID/TenantID/Role,
// service tokens carry the account in Subject.
type Claims struct {
	jwt.RegisteredClaims

	UserID    string    `json:"user_id,omitempty"`
	TenantID  string    `json:"tenant_id,omitempty"`
	Role      string    `json:"role,omitempty"`
	TokenType TokenType `json:"token_type"`
}

type Manager struct {
	secret     []byte
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration

	now func() time.Time
}

func NewManager(cfg config.AuthConfig) (*Manager, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	return &Manager{
		secret:     []byte(cfg.JWTSecret),
		issuer:     cfg.JWTIssuer,
		audience:   cfg.JWTAudience,
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
		now:        time.Now,
	}, nil
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

/* ===================== ISSUE TOKENS ===================== */

func (m *Manager) IssuePair(now time.Time, userID, tenantID, role string) (TokenPair, error) {
	access, err := m.issue(now, Claims{
		UserID:    userID,
		TenantID:  tenantID,
		Role:      role,
		TokenType: TokenTypeAccess,
	}, m.audience, m.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}

	refresh, err := m.issue(now, Claims{
		UserID:    userID,
		TenantID:  tenantID,
		TokenType: TokenTypeRefresh, // refresh tokens DO NOT carry role
	}, m.audience, m.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}

// IssueServiceToken signs a short-lived identity token for serviceAccount, scoped to audience
// (the URL being called).
func (m *Manager) IssueServiceToken(now time.Time, serviceAccount, audience string) (string, error) {
	serviceAccount = strings.TrimSpace(serviceAccount)
	if serviceAccount == "" {
		return "", errors.New("service account required")
	}
	if audience == "" {
		return "", errors.New("audience required")
	}
	return m.issue(now, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: serviceAccount},
		UserID:           serviceAccount,
		TokenType:        TokenTypeService,
	}, audience, serviceTokenTTL)
}

// IdentityToken lets the manager act as the recompute dispatcher's token source.
func (m *Manager) IdentityToken(ctx context.Context, serviceAccount, audience string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return m.IssueServiceToken(m.now(), serviceAccount, audience)
}

/* ===================== VERIFY TOKEN ===================== */

func (m *Manager) Verify(tokenString string, expected TokenType, now time.Time) (Claims, error) {
	claims, err := m.parse(tokenString, m.audience, now)
	if err != nil {
		return Claims{}, err
	}

	// Custom claims validation
	if claims.TokenType != expected {
		return Claims{}, errors.New("token_type mismatch")
	}
	if claims.UserID == "" {
		return Claims{}, errors.New("user_id missing")
	}
	if claims.TenantID == "" && claims.Role != RoleSuperAdmin {
		return Claims{}, errors.New("tenant_id missing")
	}

	// Role is required ONLY for access tokens
	if expected == TokenTypeAccess && claims.Role == "" {
		return Claims{}, errors.New("role missing in access token")
	}

	return claims, nil
}

// VerifyServiceToken checks a token minted by IssueServiceToken for the given audience.
func (m *Manager) VerifyServiceToken(tokenString, audience string, now time.Time) (Claims, error) {
	if audience == "" {
		return Claims{}, errors.New("audience required")
	}
	claims, err := m.parse(tokenString, audience, now)
	if err != nil {
		return Claims{}, err
	}
	if claims.TokenType != TokenTypeService {
		return Claims{}, errors.New("token_type mismatch")
	}
	if claims.Subject == "" {
		return Claims{}, errors.New("subject missing")
	}
	return claims, nil
}

func (m *Manager) parse(tokenString, audience string, now time.Time) (Claims, error) {
	var claims Claims

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithLeeway(30 * time.Second), // clock skew tolerance
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}

	_, err := jwt.NewParser(opts...).ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil {
		return Claims{}, err
	}
	return claims, nil
}

/* ===================== INTERNAL ISSUE ===================== */

func (m *Manager) issue(now time.Time, claims Claims, audience string, ttl time.Duration) (string, error) {
	claims.Issuer = m.issuer
	claims.Audience = audienceOrNil(audience)
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	claims.ID = uuid.NewString()

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(m.secret)
}

func audienceOrNil(aud string) jwt.ClaimStrings {
	if aud == "" {
		return nil
	}
	return jwt.ClaimStrings{aud}
}
