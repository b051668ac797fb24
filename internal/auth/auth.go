// Package auth 把身份令牌解析为 types.Identity，核心逻辑只接触解析后的身份
package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/palemoky/quest-arena/internal/apperrors"
	"github.com/palemoky/quest-arena/internal/types"
)

// Claims 身份令牌载荷
type Claims struct {
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Verifier HS256 令牌校验器
type Verifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewVerifier 创建校验器，issuer 为空时不校验签发者
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Resolve 校验令牌并返回调用者身份
func (v *Verifier) Resolve(token string) (types.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return types.Identity{}, apperrors.WithDetail(apperrors.ErrUnauthorized, "token is required")
	}
	if len(v.secret) == 0 {
		return types.Identity{}, errors.New("jwt secret is not configured")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return types.Identity{}, mapJWTError(err)
	}

	userID := strings.TrimSpace(claims.UserID)
	if userID == "" {
		userID = strings.TrimSpace(claims.Subject)
	}
	if userID == "" {
		return types.Identity{}, apperrors.WithDetail(apperrors.ErrUnauthorized, "token has no user id")
	}
	role, err := parseRole(claims.Role)
	if err != nil {
		return types.Identity{}, err
	}

	name := claims.Name
	if name == "" {
		name = userID
	}
	return types.Identity{UserID: userID, Name: name, Role: role}, nil
}

// Issue 签发令牌，供本地工具与测试使用
func (v *Verifier) Issue(ident types.Identity, ttl time.Duration) (string, error) {
	if len(v.secret) == 0 {
		return "", errors.New("jwt secret is not configured")
	}
	now := v.now()
	claims := Claims{
		UserID: ident.UserID,
		Name:   ident.Name,
		Role:   string(ident.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   ident.UserID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// BearerToken 从 Authorization 头中取出令牌
func BearerToken(header string) string {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// parseRole 缺省为 PLAYER
func parseRole(s string) (types.UserRole, error) {
	switch role := types.UserRole(strings.ToUpper(strings.TrimSpace(s))); role {
	case "":
		return types.RolePlayer, nil
	case types.RolePlayer, types.RoleGM, types.RoleAdmin:
		return role, nil
	default:
		return "", apperrors.WithDetail(apperrors.ErrUnauthorized, "unknown role "+s)
	}
}

func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return apperrors.Wrap(apperrors.WithDetail(apperrors.ErrUnauthorized, "token expired"), err)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return apperrors.Wrap(apperrors.WithDetail(apperrors.ErrUnauthorized, "issuer mismatch"), err)
	default:
		return apperrors.Wrap(apperrors.ErrUnauthorized, err)
	}
}
