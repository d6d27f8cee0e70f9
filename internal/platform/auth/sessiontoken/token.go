package sessiontoken

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	platformclock "github.com/convention-registry/member-api/internal/platform/clock"
	"github.com/convention-registry/member-api/internal/platform/config"
	clockport "github.com/convention-registry/member-api/internal/ports/out/clock"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrExpired      = errors.New("session token expired")
)

// Session is the authenticated caller: the login email plus the admin roles granted to it.
type Session struct {
	Email       string
	MemberAdmin bool
	MemberList  bool
	AdminAdmin  bool
}

// Claims is the JWT payload of a session token.
type Claims struct {
	Email       string `json:"email"`
	MemberAdmin bool   `json:"member_admin,omitempty"`
	MemberList  bool   `json:"member_list,omitempty"`
	AdminAdmin  bool   `json:"admin_admin,omitempty"`
	jwt.RegisteredClaims
}

// Service signs and verifies HS256 session tokens.
type Service struct {
	cfg   config.SessionTokenConfig
	clock clockport.Clock
}

func New(cfg config.SessionTokenConfig) *Service {
	return NewWithClock(cfg, nil)
}

func NewWithClock(cfg config.SessionTokenConfig, clock clockport.Clock) *Service {
	if clock == nil {
		clock = platformclock.NewSystemClock()
	}
	return &Service{cfg: cfg, clock: clock}
}

// Mint issues a token for s valid for ttl.
func (s *Service) Mint(sess Session, ttl time.Duration) (string, error) {
	now := s.clock.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email:       sess.Email,
		MemberAdmin: sess.MemberAdmin,
		MemberList:  sess.MemberList,
		AdminAdmin:  sess.AdminAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strings.ToLower(sess.Email),
			Issuer:    s.cfg.Issuer,
			Audience:  jwt.ClaimStrings{s.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	})
	return tok.SignedString(s.cfg.Secret)
}

// Verify checks signature, issuer, audience and expiry and returns the session.
func (s *Service) Verify(raw string) (Session, error) {
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.cfg.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithAudience(s.cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(s.cfg.ClockSkew),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Session{}, ErrExpired
		}
		return Session{}, ErrUnauthorized
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.Email) == "" {
		return Session{}, ErrUnauthorized
	}
	return Session{
		Email:       strings.TrimSpace(claims.Email),
		MemberAdmin: claims.MemberAdmin,
		MemberList:  claims.MemberList,
		AdminAdmin:  claims.AdminAdmin,
	}, nil
}
