// dto.go
package dto

import "time"

type CoordinatesDTO struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type ContactDTO struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

type LocationDTO struct {
	Address     string          `json:"address" binding:"required"`
	City        string          `json:"city" binding:"required"`
	State       string          `json:"state" binding:"required"`
	ZipCode     string          `json:"zipCode"`
	Coordinates *CoordinatesDTO `json:"coordinates"`
	Contact     *ContactDTO     `json:"contact"`
}

type CargoItemDTO struct {
	Name        string  `json:"name" binding:"required"`
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity" binding:"required,gt=0"`
	Unit        string  `json:"unit" binding:"required"`
	Weight      float64 `json:"weight"`
	Category    string  `json:"category" binding:"omitempty,oneof=grain livestock equipment fertilizer other"`
}

type FeeDTO struct {
	Name        string  `json:"name" binding:"required"`
	Amount      float64 `json:"amount" binding:"required"`
	Description string  `json:"description"`
}

type PricingDTO struct {
	BasePrice      float64  `json:"basePrice" binding:"required,gt=0"`
	AdditionalFees []FeeDTO `json:"additionalFees"`
	Currency       string   `json:"currency"`
}

// CreateFreightOrderRequest: el buyer sale del token, no del body.
type CreateFreightOrderRequest struct {
	SellerID             string         `json:"sellerId" binding:"required"`
	Origin               LocationDTO    `json:"origin" binding:"required"`
	Destination          LocationDTO    `json:"destination" binding:"required"`
	PickupDate           time.Time      `json:"pickupDate" binding:"required"`
	DeliveryDateEstimate time.Time      `json:"deliveryDateEstimate" binding:"required"`
	Items                []CargoItemDTO `json:"items" binding:"required,min=1,dive"`
	Pricing              PricingDTO     `json:"pricing" binding:"required"`
}

type EventMetadataDTO struct {
	Driver    string   `json:"driver"`
	Vehicle   string   `json:"vehicle"`
	Notes     string   `json:"notes"`
	Images    []string `json:"images"`
	Documents []string `json:"documents"`
}

type TrackingEventRequest struct {
	Status      string            `json:"status" binding:"required,oneof=accepted picked_up in_transit delayed delivered exception"`
	Location    *LocationDTO      `json:"location" binding:"required"`
	Description string            `json:"description"`
	Metadata    *EventMetadataDTO `json:"metadata"`
}

type RatingDTO struct {
	Score   int    `json:"score" binding:"required,min=1,max=5"`
	Comment string `json:"comment"`
}

type CompleteClosureRequest struct {
	ConfirmClosure bool       `json:"confirmClosure"`
	CustomMessage  string     `json:"customMessage"`
	Rating         *RatingDTO `json:"rating"`
}

type CancelOrderRequest struct {
	Reason string `json:"reason"`
}

type DisputeRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type ValidateTaxIDRequest struct {
	Value string `json:"value" binding:"required"`
	Kind  string `json:"kind" binding:"required"`
}
