package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"preventanyl/models"
	"preventanyl/utils"
)

// UserLookup loads the account behind a token.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

type AuthMiddleware struct {
	jwtService *utils.JWTService
	users      UserLookup
}

func NewAuthMiddleware(jwtService *utils.JWTService, users UserLookup) *AuthMiddleware {
	return &AuthMiddleware{
		jwtService: jwtService,
		users:      users,
	}
}

// RequireAuth validates JWT token and sets user context
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			utils.UnauthorizedResponse(c, "Authentication token required")
			c.Abort()
			return
		}

		user, claims, err := am.authenticate(c.Request.Context(), token)
		if err != nil {
			logrus.Debugf("Rejected token: %v", err)
			utils.HandleServiceError(c, err)
			c.Abort()
			return
		}

		setUserContext(c, user, claims)
		c.Next()
	}
}

// OptionalAuth validates token if present but doesn't require it
func (am *AuthMiddleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			c.Next()
			return
		}

		user, claims, err := am.authenticate(c.Request.Context(), token)
		if err != nil {
			// Log but don't abort for optional auth
			logrus.Debugf("Optional auth - ignoring token: %v", err)
			c.Next()
			return
		}

		setUserContext(c, user, claims)
		c.Next()
	}
}

// RequireRole validates user has one of roles
func (am *AuthMiddleware) RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString("userRole")
		if role == "" {
			utils.UnauthorizedResponse(c, "User role not found in context")
			c.Abort()
			return
		}

		if !utils.StringSliceContains(roles, role) {
			utils.ForbiddenResponse(c, "Insufficient permissions")
			c.Abort()
			return
		}

		c.Next()
	}
}

// RequireDevice reads the X-Device-ID header (or deviceId query parameter)
// and stores it as "deviceID". Help and device endpoints are keyed by it.
func RequireDevice() gin.HandlerFunc {
	return func(c *gin.Context) {
		deviceID := c.GetHeader("X-Device-ID")
		if deviceID == "" {
			deviceID = c.Query("deviceId")
		}
		deviceID = utils.NormalizeDeviceID(deviceID)
		if deviceID == "" {
			utils.BadRequestResponse(c, "X-Device-ID header is required")
			c.Abort()
			return
		}

		c.Set("deviceID", deviceID)
		c.Next()
	}
}

// Authenticate validates token for connections that cannot carry headers,
// such as websocket upgrades from browsers.
func (am *AuthMiddleware) Authenticate(ctx context.Context, token string) (*models.User, error) {
	user, _, err := am.authenticate(ctx, token)
	return user, err
}

func (am *AuthMiddleware) authenticate(ctx context.Context, token string) (*models.User, *utils.Claims, error) {
	claims, err := am.jwtService.ValidateToken(token)
	if err != nil {
		return nil, nil, utils.NewUnauthorizedError("Invalid authentication token")
	}

	if claims.TokenType != "access" {
		return nil, nil, utils.NewUnauthorizedError("Invalid token type")
	}

	// Get user from database to ensure account is still active
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	user, err := am.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if serviceErr, ok := utils.GetServiceError(err); ok && serviceErr.Code == utils.ErrCodeNotFound {
			return nil, nil, utils.NewUnauthorizedError("User account not found")
		}
		logrus.Errorf("Error fetching user %s: %v", claims.UserID, err)
		return nil, nil, utils.NewServiceError(utils.ErrCodeInternal, "Failed to validate authentication")
	}

	if !user.IsActive {
		return nil, nil, utils.NewUnauthorizedError("User account is deactivated")
	}

	return user, claims, nil
}

func setUserContext(c *gin.Context, user *models.User, claims *utils.Claims) {
	c.Set("user", user)
	c.Set("userID", user.ID.Hex())
	c.Set("userEmail", user.Email)
	// the stored role wins over the one baked into the token
	role := user.Role
	if role == "" {
		role = claims.Role
	}
	c.Set("userRole", role)
}

// extractToken extracts JWT token from request
func extractToken(c *gin.Context) string {
	// Check Authorization header
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		// Bearer token format
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
	}

	// Check query parameter
	if token := c.Query("token"); token != "" {
		return token
	}

	return ""
}

// GetCurrentUser returns the current authenticated user from context
func GetCurrentUser(c *gin.Context) (*models.User, bool) {
	user, exists := c.Get("user")
	if !exists {
		return nil, false
	}

	userModel, ok := user.(*models.User)
	return userModel, ok
}
