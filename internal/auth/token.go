package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// トークン検証エラー。いずれも401として扱い、クライアントは再ログインする。
var (
	ErrTokenMissing = errors.New("auth: token missing")
	ErrTokenInvalid = errors.New("auth: token invalid")
	ErrTokenExpired = errors.New("auth: token expired")
)

const tokenIssuer = "devicehub"

// Identity は検証済みトークンから取り出したユーザー識別情報。
type Identity struct {
	UserID string
}

// Claims はアクセストークンのクレーム。sub にユーザーIDを格納する。
type Claims struct {
	jwt.RegisteredClaims
}

// TokenVerifier はベアラートークンを検証するインターフェース。
type TokenVerifier interface {
	Verify(rawToken string) (*Identity, error)
}

// Verifier はHS256で署名されたトークンを検証する。
// ストアへのアクセスは行わない。
type Verifier struct {
	secret []byte
	now    func() time.Time
}

// NewVerifier はVerifierを生成する。
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret), now: time.Now}
}

// Verify はトークンを検証してIdentityを返す。
func (v *Verifier) Verify(rawToken string) (*Identity, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return nil, ErrTokenMissing
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(rawToken, claims,
		func(t *jwt.Token) (any, error) {
			return v.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}

	return &Identity{UserID: claims.Subject}, nil
}

// Issuer はサインアップ・ログイン時にアクセストークンを発行する。
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer はIssuerを生成する。
func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue はユーザーIDをsubに持つトークンを発行する。
func (i *Issuer) Issue(userID string) (string, error) {
	now := i.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
