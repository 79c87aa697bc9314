package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/aq2208/gcheckout-api/configs"
	domain "github.com/aq2208/gcheckout-api/internal/entity"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	DeviceTokenHeader = "X-Device-Token"

	ctxIdentity = "identity_id"
	ctxPerms    = "perms"
	ctxDevice   = "device_token"
)

type Authz struct {
	secret []byte
	parser *jwt.Parser
}

func NewAuthz(cfg configs.Config) *Authz {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg()}),
		jwt.WithLeeway(30 * time.Second), // small clock skew
		jwt.WithExpirationRequired(),
	}
	if cfg.Security.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Security.Issuer))
	}
	if cfg.Security.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Security.Audience))
	}
	return &Authz{secret: []byte(cfg.Security.JWTSecret), parser: jwt.NewParser(opts...)}
}

// Identify resolves who is calling. A bearer token is optional, but when one is
// sent it must be valid. The device token header is taken as is.
func (a *Authz) Identify() gin.HandlerFunc {
	return func(c *gin.Context) {
		if dev := strings.TrimSpace(c.GetHeader(DeviceTokenHeader)); dev != "" {
			c.Set(ctxDevice, dev)
		}

		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.Next()
			return
		}
		if !strings.HasPrefix(auth, "Bearer ") {
			unauth(c, "invalid_request", "malformed authorization header")
			return
		}

		claims := jwt.MapClaims{}
		_, err := a.parser.ParseWithClaims(strings.TrimPrefix(auth, "Bearer "), claims, func(*jwt.Token) (any, error) {
			return a.secret, nil
		})
		if err != nil {
			unauth(c, "invalid_token", "invalid jwt")
			return
		}

		sub, err := claims.GetSubject()
		if err != nil || sub == "" {
			unauth(c, "invalid_token", "missing subject")
			return
		}
		c.Set(ctxIdentity, sub)
		c.Set(ctxPerms, extractPerms(claims))
		c.Next()
	}
}

// Require needs a verified identity holding every listed permission.
// It must run after Identify.
func (a *Authz) Require(requiredPerms ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ctxIdentity) == "" {
			unauth(c, "invalid_request", "missing bearer token")
			return
		}
		perms, _ := c.Get(ctxPerms)
		have, _ := perms.(map[string]struct{})
		if !hasAll(have, requiredPerms) {
			forbidden(c, "insufficient_scope", "missing required permissions")
			return
		}
		c.Next()
	}
}

// ShopperFrom returns the caller as resolved by Identify.
func ShopperFrom(c *gin.Context) domain.Shopper {
	return domain.Shopper{
		IdentityID:  c.GetString(ctxIdentity),
		DeviceToken: c.GetString(ctxDevice),
	}
}

func HasPerm(c *gin.Context, perm string) bool {
	perms, _ := c.Get(ctxPerms)
	have, _ := perms.(map[string]struct{})
	_, ok := have[perm]
	return ok
}

func extractPerms(claims jwt.MapClaims) map[string]struct{} {
	out := map[string]struct{}{}
	switch v := claims["perms"].(type) {
	case []any:
		for _, p := range v {
			if s, ok := p.(string); ok && s != "" {
				out[s] = struct{}{}
			}
		}
	case string:
		// space separated, OAuth scope style
		for _, s := range strings.Fields(v) {
			out[s] = struct{}{}
		}
	}
	return out
}

func hasAll(have map[string]struct{}, req []string) bool {
	for _, r := range req {
		if _, ok := have[r]; !ok {
			return false
		}
	}
	return true
}

func unauth(c *gin.Context, code, desc string) {
	c.Header("WWW-Authenticate", `Bearer error="`+code+`", error_description="`+desc+`"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": code, "error_description": desc})
}

func forbidden(c *gin.Context, code, desc string) {
	c.Header("WWW-Authenticate", `Bearer error="`+code+`", error_description="`+desc+`"`)
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": code, "error_description": desc})
}
