package service

import (
	"context"
	"strings"

	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/catalog/domain"
	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/clock"
	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/pricing"
	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/pkg/db/option"
	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/pkg/db/pagination"
	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/pkg/repository"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Catalog struct {
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	store repository.Repository[domain.Service]
}

func NewCatalog(p ServiceParam) domain.Catalog {
	return &Catalog{
		log:   p.Log.Named("catalog.service"),
		genID: p.GenID,
		clock: p.Clock,
		store: repository.ProvideStore[domain.Service](p.DB),
	}
}

func (s *Catalog) Create(ctx context.Context, req domain.CreateServiceRequest) (domain.Service, error) {
	providerID, err := parseID(req.ProviderID, domain.ErrInvalidProvider)
	if err != nil {
		return domain.Service{}, err
	}
	if strings.TrimSpace(req.DisplayName) == "" {
		return domain.Service{}, domain.ErrInvalidDisplayName
	}

	model, err := parsePricingModel(req.PricingModel)
	if err != nil {
		return domain.Service{}, err
	}
	if err := validatePriceTerms(model, req.FixedPrice, req.HourlyRate); err != nil {
		return domain.Service{}, err
	}

	duration := req.DefaultDurationMinutes
	if duration <= 0 {
		duration = 60
	}

	now := s.clock.Now()
	svc := domain.Service{
		ID:                     s.genID.Generate(),
		ProviderID:             providerID,
		DisplayName:            strings.TrimSpace(req.DisplayName),
		PricingModel:           model,
		FixedPrice:             req.FixedPrice,
		HourlyRate:             req.HourlyRate,
		DefaultDurationMinutes: duration,
		Active:                 true,
		CreatedAt:              now,
		UpdatedAt:              now,
	}

	if err := s.store.Create(ctx, &svc); err != nil {
		s.log.Error("failed to create service", zap.Error(err))
		return domain.Service{}, err
	}

	return svc, nil
}

func (s *Catalog) Update(ctx context.Context, req domain.UpdateServiceRequest) (domain.Service, error) {
	svc, err := s.findByID(ctx, req.ServiceID)
	if err != nil {
		return domain.Service{}, err
	}

	if req.DisplayName != nil {
		if strings.TrimSpace(*req.DisplayName) == "" {
			return domain.Service{}, domain.ErrInvalidDisplayName
		}
		svc.DisplayName = strings.TrimSpace(*req.DisplayName)
	}
	if req.FixedPrice != nil {
		svc.FixedPrice = *req.FixedPrice
	}
	if req.HourlyRate != nil {
		svc.HourlyRate = *req.HourlyRate
	}
	if req.DefaultDurationMinutes != nil && *req.DefaultDurationMinutes > 0 {
		svc.DefaultDurationMinutes = *req.DefaultDurationMinutes
	}
	if err := validatePriceTerms(svc.PricingModel, svc.FixedPrice, svc.HourlyRate); err != nil {
		return domain.Service{}, err
	}
	svc.UpdatedAt = s.clock.Now()

	if err := s.store.Update(ctx, svc.ID.String(), svc); err != nil {
		s.log.Error("failed to update service", zap.Error(err))
		return domain.Service{}, err
	}

	return *svc, nil
}

func (s *Catalog) GetByID(ctx context.Context, id string) (domain.Service, error) {
	svc, err := s.findByID(ctx, id)
	if err != nil {
		return domain.Service{}, err
	}
	return *svc, nil
}

func (s *Catalog) List(ctx context.Context, req domain.ListServicesRequest) (domain.ListServicesResponse, error) {
	filter := &domain.Service{}
	if req.ProviderID != "" {
		providerID, err := parseID(req.ProviderID, domain.ErrInvalidProvider)
		if err != nil {
			return domain.ListServicesResponse{}, err
		}
		filter.ProviderID = providerID
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	items, err := s.store.Find(ctx, filter,
		option.ApplyPagination(pagination.Pagination{
			PageToken: req.PageToken,
			PageSize:  int(pageSize),
		}),
		option.WithSortBy(option.WithQuerySortBy("created_at", "desc", map[string]bool{"created_at": true})),
	)
	if err != nil {
		return domain.ListServicesResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(item *domain.Service) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.CreatedAt.Format("2006-01-02T15:04:05.999999999Z07:00"),
		})
		if err != nil {
			return ""
		}
		return token
	})

	services := make([]domain.Service, 0, len(items))
	for i, item := range items {
		if int32(i) >= pageSize {
			break
		}
		services = append(services, *item)
	}

	return domain.ListServicesResponse{
		PageInfo: *pageInfo,
		Services: services,
	}, nil
}

func (s *Catalog) Deactivate(ctx context.Context, id string) error {
	svc, err := s.findByID(ctx, id)
	if err != nil {
		return err
	}

	svc.Active = false
	svc.UpdatedAt = s.clock.Now()
	if err := s.store.Update(ctx, svc.ID.String(), map[string]any{
		"active":     false,
		"updated_at": svc.UpdatedAt,
	}); err != nil {
		s.log.Error("failed to deactivate service", zap.Error(err))
		return err
	}

	s.log.Info("service deactivated", zap.String("service_id", svc.ID.String()))
	return nil
}

func (s *Catalog) findByID(ctx context.Context, id string) (*domain.Service, error) {
	serviceID, err := parseID(id, domain.ErrInvalidService)
	if err != nil {
		return nil, err
	}

	svc, err := s.store.FindOne(ctx, &domain.Service{ID: serviceID})
	if err != nil {
		return nil, err
	}
	if svc == nil {
		return nil, domain.ErrServiceNotFound
	}
	return svc, nil
}

func parseID(raw string, invalid error) (snowflake.ID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, invalid
	}
	id, err := snowflake.ParseString(raw)
	if err != nil {
		return 0, invalid
	}
	return id, nil
}

func parsePricingModel(raw string) (pricing.Model, error) {
	switch pricing.Model(strings.ToLower(strings.TrimSpace(raw))) {
	case pricing.ModelFixed:
		return pricing.ModelFixed, nil
	case pricing.ModelHourly:
		return pricing.ModelHourly, nil
	case pricing.ModelQuote:
		return pricing.ModelQuote, nil
	case pricing.ModelDonation:
		return pricing.ModelDonation, nil
	default:
		return "", domain.ErrInvalidPricingModel
	}
}

func validatePriceTerms(model pricing.Model, fixedPrice, hourlyRate int64) error {
	switch model {
	case pricing.ModelFixed:
		if fixedPrice <= 0 {
			return domain.ErrInvalidPriceTerms
		}
	case pricing.ModelHourly:
		if hourlyRate <= 0 {
			return domain.ErrInvalidPriceTerms
		}
	}
	return nil
}
