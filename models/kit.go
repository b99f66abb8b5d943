package models

import (
	"strings"
	"time"
)

// ==================== KIT MODELS ====================

// Kit is a reported overdose-prevention kit location.
type Kit struct {
	ID          string     `json:"id" bson:"_id,omitempty" firestore:"-"`
	Title       string     `json:"title" bson:"title" firestore:"title"`
	Description string     `json:"description" bson:"description" firestore:"description"`
	Latitude    float64    `json:"latitude" bson:"latitude" firestore:"latitude"`
	Longitude   float64    `json:"longitude" bson:"longitude" firestore:"longitude"`
	Address     KitAddress `json:"address" bson:"address" firestore:"address"`
	Phone       string     `json:"phone,omitempty" bson:"phone,omitempty" firestore:"phone,omitempty"`
	CreatedBy   string     `json:"createdBy,omitempty" bson:"createdBy,omitempty" firestore:"createdBy,omitempty"`
	CreatedAt   time.Time  `json:"createdAt" bson:"createdAt" firestore:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt" bson:"updatedAt" firestore:"updatedAt"`
}

type KitAddress struct {
	Street     string `json:"street,omitempty" bson:"street,omitempty" firestore:"street,omitempty"`
	City       string `json:"city,omitempty" bson:"city,omitempty" firestore:"city,omitempty"`
	Province   string `json:"province,omitempty" bson:"province,omitempty" firestore:"province,omitempty"`
	PostalCode string `json:"postalCode,omitempty" bson:"postalCode,omitempty" firestore:"postalCode,omitempty"`
	Country    string `json:"country,omitempty" bson:"country,omitempty" firestore:"country,omitempty"`
}

// Format joins the non-empty address parts into a single display line.
func (a KitAddress) Format() string {
	var parts []string
	for _, part := range []string{a.Street, a.City, a.Province, a.PostalCode, a.Country} {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, ", ")
}

// FormattedDescription is the marker callout text: description, then address.
func (k Kit) FormattedDescription() string {
	address := k.Address.Format()
	switch {
	case k.Description == "":
		return address
	case address == "":
		return k.Description
	default:
		return k.Description + "\n" + address
	}
}

func (k Kit) Coordinate() Coordinate {
	return Coordinate{Latitude: k.Latitude, Longitude: k.Longitude}
}

// KitMarker is what the map renders for one kit.
type KitMarker struct {
	ID                   string     `json:"id"`
	Title                string     `json:"title"`
	FormattedDescription string     `json:"formattedDescription"`
	Coordinate           Coordinate `json:"coordinate"`
	DirectionsURL        string     `json:"directionsUrl,omitempty"`
}

// ==================== REQUEST MODELS ====================

type CreateKitRequest struct {
	Title       string     `json:"title" validate:"required,min=1,max=120"`
	Description string     `json:"description" validate:"max=1000"`
	Latitude    float64    `json:"latitude" validate:"coordinate"`
	Longitude   float64    `json:"longitude" validate:"coordinate"`
	Address     KitAddress `json:"address"`
	Phone       string     `json:"phone,omitempty" validate:"omitempty,phone"`
}

type UpdateKitRequest struct {
	Title       *string     `json:"title,omitempty" validate:"omitempty,min=1,max=120"`
	Description *string     `json:"description,omitempty" validate:"omitempty,max=1000"`
	Latitude    *float64    `json:"latitude,omitempty" validate:"omitempty,coordinate"`
	Longitude   *float64    `json:"longitude,omitempty" validate:"omitempty,coordinate"`
	Address     *KitAddress `json:"address,omitempty"`
	Phone       *string     `json:"phone,omitempty" validate:"omitempty,phone"`
}
