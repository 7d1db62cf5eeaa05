package auth

import (
	"errors"
	"fmt"
	"time"

	domsvc "TradeReview/internal/domain/service"

	"github.com/golang-jwt/jwt/v5"
)

const (
	issuer           = "tradereview"
	callbackAudience = "engine-callback"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrTokenMismatch = errors.New("token does not match attempt")
)

// CallbackClaims bind one engine callback to one review attempt.
type CallbackClaims struct {
	TradeLogID string `json:"tlid"`
	AttemptID  string `json:"aid"`

	jwt.RegisteredClaims
}

// CallbackTokens signs and verifies per-attempt callback tokens with HS256.
type CallbackTokens struct {
	Secret []byte
	Now    func() time.Time
}

func NewCallbackTokens(secret string) *CallbackTokens {
	return &CallbackTokens{Secret: []byte(secret), Now: time.Now}
}

func (c *CallbackTokens) Sign(tradeLogID, attemptID string, ttl time.Duration) (string, error) {
	now := c.Now().UTC()
	claims := CallbackClaims{
		TradeLogID: tradeLogID,
		AttemptID:  attemptID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{callbackAudience},
			Subject:   attemptID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-5 * time.Second)),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.Secret)
}

func (c *CallbackTokens) Verify(token, tradeLogID, attemptID string) error {
	var claims CallbackClaims
	if err := parse(token, &claims, c.Secret, c.Now, jwt.WithAudience(callbackAudience)); err != nil {
		return err
	}
	if claims.TradeLogID != tradeLogID || claims.AttemptID != attemptID {
		return ErrTokenMismatch
	}
	return nil
}

// AccountTokens resolves the account id from a bearer token's subject.
type AccountTokens struct {
	Secret []byte
	Now    func() time.Time
}

func NewAccountTokens(secret string) *AccountTokens {
	return &AccountTokens{Secret: []byte(secret), Now: time.Now}
}

// Issue is used by the admin CLI and tests; production tokens come from the identity service.
func (a *AccountTokens) Issue(accountID string, ttl time.Duration) (string, error) {
	now := a.Now().UTC()
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   accountID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.Secret)
}

func (a *AccountTokens) AccountID(token string) (string, error) {
	var claims jwt.RegisteredClaims
	if err := parse(token, &claims, a.Secret, a.Now); err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}

func parse(token string, claims jwt.Claims, secret []byte, now func() time.Time, opts ...jwt.ParserOption) error {
	opts = append(opts,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(now),
	)
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, opts...)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return ErrInvalidToken
	}
	return nil
}

var _ domsvc.CallbackSigner = (*CallbackTokens)(nil)
