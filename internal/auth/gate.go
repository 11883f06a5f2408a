// Package auth verifies bearer tokens and attaches the caller's identity to requests.
package auth

import (
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Outcome is the result of inspecting a request's credentials.
type Outcome int

const (
	// OutcomePublic means the path needs no credential; the header was not read.
	OutcomePublic Outcome = iota
	// OutcomeAnonymous means no bearer token was presented.
	OutcomeAnonymous
	// OutcomeRejected means a token was presented but failed verification.
	OutcomeRejected
	// OutcomeAuthenticated means the token verified and an identity is available.
	OutcomeAuthenticated
)

func (o Outcome) String() string {
	switch o {
	case OutcomePublic:
		return "public"
	case OutcomeAnonymous:
		return "anonymous"
	case OutcomeRejected:
		return "rejected"
	case OutcomeAuthenticated:
		return "authenticated"
	}
	return "unknown"
}

const (
	identityKey  = "auth.identity"
	outcomeKey   = "auth.outcome"
	bearerPrefix = "Bearer "
)

// Gate is the stateless request-authentication check.
type Gate struct {
	secret   []byte
	basePath string
	log      *zap.Logger
}

// NewGate builds a gate. basePath is the API prefix public paths are relative to.
func NewGate(secret, basePath string, log *zap.Logger) *Gate {
	return &Gate{
		secret:   []byte(secret),
		basePath: "/" + strings.Trim(basePath, "/"),
		log:      log.With(zap.String("component", "token_gate")),
	}
}

// IsPublicPath reports whether path (relative to the API base, no leading
// slash) may be served without a credential.
func IsPublicPath(path string) bool {
	path = strings.TrimPrefix(path, "/")
	switch {
	case strings.HasPrefix(path, "auth/"):
		return true
	case path == "health", strings.HasPrefix(path, "health/"):
		return true
	case strings.HasPrefix(path, "visualizations/"), strings.HasPrefix(path, "snapshots/"):
		return true
	}
	return false
}

// relative strips the API base path from a cleaned request path. ok is
// false for paths outside the base, which are never public.
func (g *Gate) relative(requestPath string) (string, bool) {
	p := path.Clean("/" + requestPath)
	if g.basePath == "/" {
		return strings.TrimPrefix(p, "/"), true
	}
	if p != g.basePath && !strings.HasPrefix(p, g.basePath+"/") {
		return "", false
	}
	return strings.TrimPrefix(strings.TrimPrefix(p, g.basePath), "/"), true
}

// Authenticate inspects the raw Authorization header for requestPath.
// A failed verification is logged and reported as OutcomeRejected; it never
// aborts the request by itself.
func (g *Gate) Authenticate(header, requestPath string) (Identity, Outcome) {
	if rel, ok := g.relative(requestPath); ok && IsPublicPath(rel) {
		return Identity{}, OutcomePublic
	}

	token, ok := bearerToken(header)
	if !ok {
		return Identity{}, OutcomeAnonymous
	}

	id, err := ParseToken(token, g.secret)
	if err != nil {
		g.log.Warn("token verification failed", zap.String("path", requestPath), zap.Error(err))
		return Identity{}, OutcomeRejected
	}
	return id, OutcomeAuthenticated
}

// Verify checks a bare header without any path exemption. Used by the
// token validation endpoint, which is itself public.
func (g *Gate) Verify(header string) (Identity, bool) {
	token, ok := bearerToken(header)
	if !ok {
		return Identity{}, false
	}
	id, err := ParseToken(token, g.secret)
	if err != nil {
		g.log.Debug("token validation failed", zap.Error(err))
		return Identity{}, false
	}
	return id, true
}

func bearerToken(header string) (string, bool) {
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	return token, token != ""
}

// Middleware runs Authenticate and stores the result on the gin context.
func (g *Gate) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, outcome := g.Authenticate(c.GetHeader("Authorization"), c.Request.URL.Path)
		c.Set(outcomeKey, outcome)
		if outcome == OutcomeAuthenticated {
			c.Set(identityKey, id)
		}
		c.Next()
	}
}

// IdentityFrom returns the identity stored by Middleware, if any.
func IdentityFrom(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}

// OutcomeFrom returns the outcome stored by Middleware.
func OutcomeFrom(c *gin.Context) (Outcome, bool) {
	v, ok := c.Get(outcomeKey)
	if !ok {
		return 0, false
	}
	o, ok := v.(Outcome)
	return o, ok
}

// RequireIdentity aborts with 401 when no identity was established.
func RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := IdentityFrom(c); ok {
			c.Next()
			return
		}
		message := "Authentication required"
		if o, _ := OutcomeFrom(c); o == OutcomeRejected {
			message = "Invalid or expired token"
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthorized",
			"message": message,
		})
	}
}
