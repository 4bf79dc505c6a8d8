package jwttoken

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"formvault/internal/submission/models"
	dErrors "formvault/pkg/domain-errors"
)

// ErrInvalidToken covers every verification failure: bad signature, wrong
// algorithm, malformed structure, expiry or missing claims.
var ErrInvalidToken = dErrors.New(dErrors.CodeUnauthorized, "invalid token")

// SubmissionClaims is a snapshot of the submission at issuance time.
type SubmissionClaims struct {
	Name     string `json:"name"`
	LastName string `json:"last-name"`
	Email    string `json:"email"`
	ID       int64  `json:"id"`
	jwt.RegisteredClaims
}

// JWTService signs and verifies retrieval tokens with one shared HMAC secret.
type JWTService struct {
	signingKey []byte
	issuer     string
	ttl        time.Duration
	now        func() time.Time
}

// NewJWTService builds the service. A zero ttl issues tokens without expiry.
func NewJWTService(signingKey string, issuer string, ttl time.Duration) *JWTService {
	return &JWTService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		ttl:        ttl,
		now:        time.Now,
	}
}

// Issue mints a token for a complete submission.
func (s *JWTService) Issue(sub *models.Submission) (string, error) {
	if sub == nil || !sub.Complete() {
		return "", dErrors.New(dErrors.CodeInvalidState, "submission is not complete")
	}

	now := s.now()
	registered := jwt.RegisteredClaims{
		IssuedAt: jwt.NewNumericDate(now),
		Issuer:   s.issuer,
		ID:       uuid.NewString(),
	}
	if s.ttl > 0 {
		registered.ExpiresAt = jwt.NewNumericDate(now.Add(s.ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, SubmissionClaims{
		Name:             sub.Name,
		LastName:         sub.LastName,
		Email:            sub.EmailAddress(),
		ID:               sub.ID,
		RegisteredClaims: registered,
	})
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign token")
	}
	return signed, nil
}

// Validate verifies the signature and returns the embedded claims.
func (s *JWTService) Validate(tokenString string) (*SubmissionClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &SubmissionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, ErrInvalidToken.Message)
	}

	claims, ok := parsed.Claims.(*SubmissionClaims)
	if !ok || !parsed.Valid || claims.ID <= 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
