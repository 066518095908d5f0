package middleware

import (
	"net/http"
	"strings"

	"erpcore/internal/permission"
	"erpcore/internal/repository"
	"erpcore/internal/service"
	"erpcore/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
)

// Auth authenticates requests and attaches a permission.Session to the request context.
type Auth struct {
	tokens *service.TokenIssuer
	store  repository.RecordStore
	secure bool
}

// NewAuth builds the middleware. secureCookies switches cookies to SameSite=None and
// Secure, which cross-origin production deployments need.
func NewAuth(tokens *service.TokenIssuer, store repository.RecordStore, secureCookies bool) *Auth {
	return &Auth{tokens: tokens, store: store, secure: secureCookies}
}

func (a *Auth) cookieMode(c *gin.Context) {
	if a.secure {
		c.SetSameSite(http.SameSiteNoneMode)
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
}

// SetTokenCookies sets access_token and refresh_token as HttpOnly cookies
func (a *Auth) SetTokenCookies(c *gin.Context, tok *service.TokenResponse) {
	a.cookieMode(c)
	c.SetCookie(AccessTokenCookie, tok.Token, int(a.tokens.AccessTTL().Seconds()), "/", "", a.secure, true)
	c.SetCookie(RefreshTokenCookie, tok.RefreshToken, int(a.tokens.RefreshTTL().Seconds()), "/", "", a.secure, true)
}

// ClearTokenCookies removes access_token and refresh_token cookies
func (a *Auth) ClearTokenCookies(c *gin.Context) {
	a.cookieMode(c)
	c.SetCookie(AccessTokenCookie, "", -1, "/", "", a.secure, true)
	c.SetCookie(RefreshTokenCookie, "", -1, "/", "", a.secure, true)
}

// TokenFromRequest reads the access token from the cookie, then the Authorization header.
func TokenFromRequest(c *gin.Context) (string, bool) {
	if token, err := c.Cookie(AccessTokenCookie); err == nil && token != "" {
		return token, true
	}
	scheme, token, ok := strings.Cut(c.GetHeader("Authorization"), " ")
	if !ok || scheme != "Bearer" || token == "" {
		return "", false
	}
	return token, true
}

// Authenticate validates the access token and resolves the user's permissions for the
// rest of the request. A failed permission load leaves a session that denies everything.
func (a *Auth) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := TokenFromRequest(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
			return
		}

		claims, err := a.tokens.Parse(tokenString, service.TokenTypeAccess)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid token"))
			return
		}
		userID, _ := claims.UserID()
		companyID, _ := claims.Company()

		ctx := c.Request.Context()
		logger := zerolog.Ctx(ctx).With().Str("user_id", userID.String()).Str("company_id", companyID.String()).Logger()
		ctx = logger.WithContext(ctx)

		session, err := permission.NewSession(ctx, a.store, userID, companyID)
		if err != nil {
			logger.Warn().Err(err).Msg("permissions unavailable for request")
		}
		defer session.Close()

		c.Set("userID", userID)
		c.Set("companyID", companyID)
		c.Request = c.Request.WithContext(permission.WithSession(ctx, session))

		c.Next()
	}
}

// CurrentSession returns the session set by Authenticate.
func CurrentSession(c *gin.Context) (*permission.Session, bool) {
	return permission.FromContext(c.Request.Context())
}

// RequirePermission lets the request through only when the session holds every code.
func RequirePermission(codes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, ok := CurrentSession(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
			return
		}
		for _, code := range codes {
			if !session.Can(code) {
				c.AbortWithStatusJSON(http.StatusForbidden, response.Error(http.StatusForbidden, "Access denied: missing permission '"+code+"'"))
				return
			}
		}
		c.Next()
	}
}

// RequireAnyPermission lets the request through when the session holds one of codes.
func RequireAnyPermission(codes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, ok := CurrentSession(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
			return
		}
		if !session.Resolver.CheckAny(codes...) {
			c.AbortWithStatusJSON(http.StatusForbidden, response.Error(http.StatusForbidden, "Access denied: insufficient permissions"))
			return
		}
		c.Next()
	}
}

// QueryToken copies a ?token= query parameter into the Authorization header. Browsers
// cannot set headers on websocket handshakes.
func QueryToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := c.Query("token"); token != "" && c.GetHeader("Authorization") == "" {
			c.Request.Header.Set("Authorization", "Bearer "+token)
		}
		c.Next()
	}
}
