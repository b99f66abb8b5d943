package controllers

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"preventanyl/models"
	"preventanyl/services"
	"preventanyl/utils"
)

type AuthController struct {
	authService *services.AuthService
}

func NewAuthController(authService *services.AuthService) *AuthController {
	return &AuthController{
		authService: authService,
	}
}

// ============== PUBLIC AUTHENTICATION ENDPOINTS ==============

// Register handles user registration
// @Summary Register a new user
// @Description Register a new user account
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body models.RegisterRequest true "Registration data"
// @Success 201 {object} models.APIResponse{data=models.AuthResponse}
// @Failure 400 {object} models.APIResponse
// @Failure 409 {object} models.APIResponse
// @Router /auth/register [post]
func (ac *AuthController) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body")
		return
	}

	response, err := ac.authService.Register(c.Request.Context(), req)
	if err != nil {
		logrus.Infof("Registration failed: %v", err)
		utils.HandleServiceError(c, err)
		return
	}

	utils.CreatedResponse(c, "Account created successfully", response)
}

// Login handles user authentication
// @Summary Login user
// @Description Authenticate user and return tokens
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body models.LoginRequest true "Login credentials"
// @Success 200 {object} models.APIResponse{data=models.AuthResponse}
// @Failure 400 {object} models.APIResponse
// @Failure 401 {object} models.APIResponse
// @Router /auth/login [post]
func (ac *AuthController) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body")
		return
	}

	response, err := ac.authService.Login(c.Request.Context(), req)
	if err != nil {
		logrus.Infof("Login failed: %v", err)
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, "Login successful", response)
}

// RefreshToken exchanges a refresh token for a new token pair
// @Summary Refresh tokens
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body models.RefreshTokenRequest true "Refresh token"
// @Success 200 {object} models.APIResponse{data=models.AuthResponse}
// @Failure 401 {object} models.APIResponse
// @Router /auth/refresh [post]
func (ac *AuthController) RefreshToken(c *gin.Context) {
	var req models.RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		utils.BadRequestResponse(c, "Refresh token is required")
		return
	}

	response, err := ac.authService.RefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, "Token refreshed successfully", response)
}

// ============== PROFILE ==============

func (ac *AuthController) GetProfile(c *gin.Context) {
	user, err := ac.authService.GetProfile(c.Request.Context(), utils.GetUserID(c))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, "Profile retrieved successfully", user)
}

func (ac *AuthController) UpdateProfile(c *gin.Context) {
	var req models.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body")
		return
	}

	user, err := ac.authService.UpdateProfile(c.Request.Context(), utils.GetUserID(c), req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, "Profile updated successfully", user)
}

// ============== ANGELS ==============

// SubscribeAngel registers the caller's device for help alerts
// @Summary Become an angel
// @Description Subscribes a push token to help alerts and grants the angel role
// @Tags Angels
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.AngelSubscriptionRequest true "Push token"
// @Success 200 {object} models.APIResponse{data=models.User}
// @Failure 502 {object} models.APIResponse
// @Router /angels/subscription [post]
func (ac *AuthController) SubscribeAngel(c *gin.Context) {
	var req models.AngelSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body")
		return
	}

	user, err := ac.authService.SubscribeAngel(c.Request.Context(), utils.GetUserID(c), req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, "Subscribed to help alerts", user)
}

func (ac *AuthController) UnsubscribeAngel(c *gin.Context) {
	var req models.AngelSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body")
		return
	}

	user, err := ac.authService.UnsubscribeAngel(c.Request.Context(), utils.GetUserID(c), req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, "Unsubscribed from help alerts", user)
}
