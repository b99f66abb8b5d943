package services

import (
	"context"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"

	"preventanyl/models"
	"preventanyl/utils"
)

// UserStore is the user persistence AuthService needs.
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Update(ctx context.Context, id string, update bson.M) error
	UpdateLastLogin(ctx context.Context, id string) error
	AddFCMToken(ctx context.Context, id, token string) error
	RemoveFCMToken(ctx context.Context, id, token string) error
}

// TopicSubscriber manages push topic membership for device tokens.
type TopicSubscriber interface {
	Subscribe(ctx context.Context, audience models.Audience, tokens []string) error
	Unsubscribe(ctx context.Context, audience models.Audience, tokens []string) error
}

type AuthService struct {
	userRepo        UserStore
	jwtService      *utils.JWTService
	passwordService *utils.PasswordService
	validator       *utils.ValidationService
	topics          TopicSubscriber
}

// NewAuthService creates the service. topics may be nil when push is not
// configured; angel subscriptions are then only recorded.
func NewAuthService(userRepo UserStore, jwtService *utils.JWTService, topics TopicSubscriber) *AuthService {
	return &AuthService{
		userRepo:        userRepo,
		jwtService:      jwtService,
		passwordService: utils.NewPasswordService(),
		validator:       utils.NewValidationService(),
		topics:          topics,
	}
}

func (as *AuthService) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error) {
	req.Email = utils.NormalizeEmail(req.Email)
	if validationErrors := as.validator.ValidateStruct(req); len(validationErrors) > 0 {
		return nil, utils.NewBadRequestError(validationErrors[0].Message)
	}

	if existing, _ := as.userRepo.GetByEmail(ctx, req.Email); existing != nil {
		return nil, utils.NewConflictError("User with this email already exists")
	}

	hashedPassword, err := as.passwordService.HashPassword(req.Password)
	if err != nil {
		logrus.Error("Failed to hash password: ", err)
		return nil, utils.NewServiceError(utils.ErrCodeInternal, "Failed to create user")
	}

	user := models.User{
		Email:        req.Email,
		PasswordHash: hashedPassword,
		Name:         strings.TrimSpace(req.Name),
		Phone:        req.Phone,
		Role:         models.RoleReporter,
	}

	if err := as.userRepo.Create(ctx, &user); err != nil {
		if _, ok := utils.GetServiceError(err); ok {
			return nil, err
		}
		logrus.Error("Failed to create user: ", err)
		return nil, utils.NewDatabaseError("create user", err)
	}

	return as.issueTokens(&user)
}

func (as *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	req.Email = utils.NormalizeEmail(req.Email)
	if validationErrors := as.validator.ValidateStruct(req); len(validationErrors) > 0 {
		return nil, utils.NewBadRequestError(validationErrors[0].Message)
	}

	user, err := as.userRepo.GetByEmail(ctx, req.Email)
	if err != nil {
		return nil, utils.NewInvalidCredentialsError()
	}
	if !user.IsActive {
		return nil, utils.NewForbiddenError("Account is deactivated")
	}

	isValid, err := as.passwordService.ComparePassword(req.Password, user.PasswordHash)
	if err != nil || !isValid {
		return nil, utils.NewInvalidCredentialsError()
	}

	if err := as.userRepo.UpdateLastLogin(ctx, user.ID.Hex()); err != nil {
		logrus.Warn("Failed to update last login: ", err)
	}

	return as.issueTokens(user)
}

func (as *AuthService) RefreshToken(ctx context.Context, refreshToken string) (*models.AuthResponse, error) {
	claims, err := as.jwtService.ValidateToken(refreshToken)
	if err != nil || claims.TokenType != "refresh" {
		return nil, utils.NewUnauthorizedError("Invalid refresh token")
	}

	user, err := as.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, utils.NewUnauthorizedError("Invalid refresh token")
	}
	if !user.IsActive {
		return nil, utils.NewForbiddenError("Account is deactivated")
	}

	// reissue from the stored user so role changes take effect
	return as.issueTokens(user)
}

func (as *AuthService) GetProfile(ctx context.Context, userID string) (*models.User, error) {
	return as.userRepo.GetByID(ctx, userID)
}

func (as *AuthService) UpdateProfile(ctx context.Context, userID string, req models.UpdateProfileRequest) (*models.User, error) {
	if validationErrors := as.validator.ValidateStruct(req); len(validationErrors) > 0 {
		return nil, utils.NewBadRequestError(validationErrors[0].Message)
	}

	update := bson.M{}
	if req.Name != nil {
		update["name"] = strings.TrimSpace(*req.Name)
	}
	if req.Phone != nil {
		update["phone"] = *req.Phone
	}
	if req.SMSAlerts != nil {
		update["smsAlerts"] = *req.SMSAlerts
	}
	if len(update) == 0 {
		return nil, utils.NewBadRequestError("Nothing to update")
	}

	if err := as.userRepo.Update(ctx, userID, update); err != nil {
		return nil, err
	}
	return as.userRepo.GetByID(ctx, userID)
}

// SubscribeAngel joins a device push token to the angels topic and marks the
// user as an angel.
func (as *AuthService) SubscribeAngel(ctx context.Context, userID string, req models.AngelSubscriptionRequest) (*models.User, error) {
	if validationErrors := as.validator.ValidateStruct(req); len(validationErrors) > 0 {
		return nil, utils.NewBadRequestError(validationErrors[0].Message)
	}

	user, err := as.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if as.topics != nil {
		if err := as.topics.Subscribe(ctx, models.AudienceAngels, []string{req.FCMToken}); err != nil {
			logrus.Errorf("Failed to subscribe %s to angels: %v", userID, err)
			return nil, utils.NewServiceErrorWithStatus(utils.ErrCodeDispatch, "Failed to subscribe to help alerts", http.StatusBadGateway)
		}
	}

	if err := as.userRepo.AddFCMToken(ctx, userID, req.FCMToken); err != nil {
		return nil, err
	}
	if user.Role == models.RoleReporter {
		if err := as.userRepo.Update(ctx, userID, bson.M{"role": models.RoleAngel}); err != nil {
			return nil, err
		}
	}

	logrus.Infof("User %s subscribed to help alerts", userID)
	return as.userRepo.GetByID(ctx, userID)
}

// UnsubscribeAngel removes a push token. A user left with no tokens and no
// SMS alerts stops being an angel.
func (as *AuthService) UnsubscribeAngel(ctx context.Context, userID string, req models.AngelSubscriptionRequest) (*models.User, error) {
	if validationErrors := as.validator.ValidateStruct(req); len(validationErrors) > 0 {
		return nil, utils.NewBadRequestError(validationErrors[0].Message)
	}

	if as.topics != nil {
		if err := as.topics.Unsubscribe(ctx, models.AudienceAngels, []string{req.FCMToken}); err != nil {
			logrus.Warnf("Failed to unsubscribe %s from angels: %v", userID, err)
		}
	}

	if err := as.userRepo.RemoveFCMToken(ctx, userID, req.FCMToken); err != nil {
		return nil, err
	}

	user, err := as.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Role == models.RoleAngel && len(user.FCMTokens) == 0 && !user.SMSAlerts {
		if err := as.userRepo.Update(ctx, userID, bson.M{"role": models.RoleReporter}); err != nil {
			return nil, err
		}
		user.Role = models.RoleReporter
	}
	return user, nil
}

func (as *AuthService) issueTokens(user *models.User) (*models.AuthResponse, error) {
	tokenPair, err := as.jwtService.GenerateTokenPair(user.ID.Hex(), user.Email, user.Role)
	if err != nil {
		logrus.Error("Failed to generate tokens: ", err)
		return nil, utils.NewServiceError(utils.ErrCodeInternal, "Failed to generate authentication tokens")
	}

	return &models.AuthResponse{
		User:         user,
		AccessToken:  tokenPair.AccessToken,
		RefreshToken: tokenPair.RefreshToken,
		TokenType:    tokenPair.TokenType,
		ExpiresAt:    tokenPair.ExpiresAt,
	}, nil
}
