package domain

import (
	"context"
	"errors"

	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/pkg/db/pagination"
)

type CreateServiceRequest struct {
	ProviderID             string `json:"provider_id"`
	DisplayName            string `json:"display_name"`
	PricingModel           string `json:"pricing_model"`
	FixedPrice             int64  `json:"fixed_price"`
	HourlyRate             int64  `json:"hourly_rate"`
	DefaultDurationMinutes int64  `json:"default_duration_minutes"`
}

type UpdateServiceRequest struct {
	ServiceID              string  `json:"-"`
	DisplayName            *string `json:"display_name,omitempty"`
	FixedPrice             *int64  `json:"fixed_price,omitempty"`
	HourlyRate             *int64  `json:"hourly_rate,omitempty"`
	DefaultDurationMinutes *int64  `json:"default_duration_minutes,omitempty"`
}

type ListServicesRequest struct {
	ProviderID string
	PageToken  string
	PageSize   int32
}

type ListServicesResponse struct {
	pagination.PageInfo
	Services []Service `json:"services"`
}

type Catalog interface {
	Create(ctx context.Context, req CreateServiceRequest) (Service, error)
	Update(ctx context.Context, req UpdateServiceRequest) (Service, error)
	GetByID(ctx context.Context, id string) (Service, error)
	List(ctx context.Context, req ListServicesRequest) (ListServicesResponse, error)
	Deactivate(ctx context.Context, id string) error
}

var (
	ErrServiceNotFound     = errors.New("service_not_found")
	ErrServiceInactive     = errors.New("service_inactive")
	ErrInvalidProvider     = errors.New("invalid_provider")
	ErrInvalidService      = errors.New("invalid_service")
	ErrInvalidDisplayName  = errors.New("invalid_display_name")
	ErrInvalidPricingModel = errors.New("invalid_pricing_model")
	ErrInvalidPriceTerms   = errors.New("invalid_price_terms")
)
