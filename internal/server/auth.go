package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sievehq/sieve/internal/tenantctx"
)

const devToken = "devtoken"

type tokenClaims struct {
	TenantID string `json:"tenant_id"`
	jwt.RegisteredClaims
}

// AuthRequired authenticates the Bearer token, binds the tenant and actor
// into the request context, and rejects tokens scoped to another tenant.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		traceID := strings.TrimSpace(c.GetHeader("X-Request-ID"))
		if traceID == "" {
			traceID = uuid.NewString()
		}
		ctx = tenantctx.WithTraceID(ctx, traceID)
		c.Header("X-Request-ID", traceID)

		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		if token == devToken {
			if !s.cfg.AllowDevToken {
				AbortWithError(c, ErrUnauthorized)
				return
			}
			ctx = tenantctx.WithTenant(ctx, s.cfg.TenantID)
			ctx = tenantctx.WithActor(ctx, "dev")
			c.Request = c.Request.WithContext(ctx)
			c.Next()
			return
		}

		claims, err := s.parseToken(token)
		if err != nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if claims.TenantID != s.cfg.TenantID {
			AbortWithError(c, ErrForbidden)
			return
		}

		ctx = tenantctx.WithTenant(ctx, claims.TenantID)
		ctx = tenantctx.WithActor(ctx, claims.Subject)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (s *Server) parseToken(token string) (*tokenClaims, error) {
	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(s.cfg.JWTSecret), nil
		},
		jwt.WithAudience(s.cfg.JWTAudience),
		jwt.WithIssuer(s.cfg.JWTIssuer),
		jwt.WithValidMethods([]string{"HS256"}),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func bearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
