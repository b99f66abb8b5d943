package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ==================== USER MODELS ====================

const (
	RoleReporter = "reporter"
	RoleAngel    = "angel"
	RoleAdmin    = "admin"
)

type User struct {
	ID           primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Email        string             `json:"email" bson:"email"`
	PasswordHash string             `json:"-" bson:"passwordHash"`
	Name         string             `json:"name" bson:"name"`
	Phone        string             `json:"phone,omitempty" bson:"phone,omitempty"`
	Role         string             `json:"role" bson:"role"`
	SMSAlerts    bool               `json:"smsAlerts" bson:"smsAlerts"`
	FCMTokens    []string           `json:"-" bson:"fcmTokens,omitempty"`
	IsActive     bool               `json:"isActive" bson:"isActive"`
	LastLoginAt  time.Time          `json:"lastLoginAt,omitempty" bson:"lastLoginAt,omitempty"`
	CreatedAt    time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt    time.Time          `json:"updatedAt" bson:"updatedAt"`
}

func (u *User) IsAngel() bool {
	return u.Role == RoleAngel
}

// ==================== AUTH MODELS ====================

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=128"`
	Name     string `json:"name" validate:"required,min=1,max=80"`
	Phone    string `json:"phone,omitempty" validate:"omitempty,phone"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type AuthResponse struct {
	User         *User     `json:"user"`
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	TokenType    string    `json:"tokenType"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

type UpdateProfileRequest struct {
	Name      *string `json:"name,omitempty" validate:"omitempty,min=1,max=80"`
	Phone     *string `json:"phone,omitempty" validate:"omitempty,phone"`
	SMSAlerts *bool   `json:"smsAlerts,omitempty"`
}

// AngelSubscriptionRequest registers a device push token with the angels topic.
type AngelSubscriptionRequest struct {
	FCMToken string `json:"fcmToken" validate:"required,min=10"`
}
