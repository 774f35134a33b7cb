package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/catalog/domain"
	catalogservice "github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/catalog/service"
	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/clock"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newCatalog(t *testing.T) (domain.Catalog, *snowflake.Node) {
	t.Helper()

	db := setupTestDB(t)
	node, err := snowflake.NewNode(23)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	svc := catalogservice.NewCatalog(catalogservice.ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)),
	})
	return svc, node
}

func TestCreateService(t *testing.T) {
	catalog, node := newCatalog(t)

	svc, err := catalog.Create(context.Background(), domain.CreateServiceRequest{
		ProviderID:   node.Generate().String(),
		DisplayName:  "  Lawn Mowing  ",
		PricingModel: "Fixed",
		FixedPrice:   7500,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if svc.DisplayName != "Lawn Mowing" {
		t.Fatalf("display name not trimmed: %q", svc.DisplayName)
	}
	if !svc.Active {
		t.Fatal("new service must start active")
	}
	if svc.DefaultDurationMinutes != 60 {
		t.Fatalf("expected default duration 60, got %d", svc.DefaultDurationMinutes)
	}
}

func TestCreateServiceValidation(t *testing.T) {
	catalog, node := newCatalog(t)
	ctx := context.Background()
	providerID := node.Generate().String()

	cases := []struct {
		name string
		req  domain.CreateServiceRequest
		want error
	}{
		{
			name: "missing provider",
			req:  domain.CreateServiceRequest{DisplayName: "X", PricingModel: "fixed", FixedPrice: 100},
			want: domain.ErrInvalidProvider,
		},
		{
			name: "blank display name",
			req:  domain.CreateServiceRequest{ProviderID: providerID, DisplayName: "   ", PricingModel: "fixed", FixedPrice: 100},
			want: domain.ErrInvalidDisplayName,
		},
		{
			name: "unknown pricing model",
			req:  domain.CreateServiceRequest{ProviderID: providerID, DisplayName: "X", PricingModel: "barter"},
			want: domain.ErrInvalidPricingModel,
		},
		{
			name: "fixed without price",
			req:  domain.CreateServiceRequest{ProviderID: providerID, DisplayName: "X", PricingModel: "fixed"},
			want: domain.ErrInvalidPriceTerms,
		},
		{
			name: "hourly without rate",
			req:  domain.CreateServiceRequest{ProviderID: providerID, DisplayName: "X", PricingModel: "hourly"},
			want: domain.ErrInvalidPriceTerms,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := catalog.Create(ctx, tc.req)
			if err != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestUpdateServicePreservesPricingModel(t *testing.T) {
	catalog, node := newCatalog(t)
	ctx := context.Background()

	svc, err := catalog.Create(ctx, domain.CreateServiceRequest{
		ProviderID:   node.Generate().String(),
		DisplayName:  "Tutoring",
		PricingModel: "hourly",
		HourlyRate:   4000,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	newRate := int64(4500)
	updated, err := catalog.Update(ctx, domain.UpdateServiceRequest{
		ServiceID:  svc.ID.String(),
		HourlyRate: &newRate,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.HourlyRate != 4500 {
		t.Fatalf("expected rate 4500, got %d", updated.HourlyRate)
	}
	if updated.PricingModel != svc.PricingModel {
		t.Fatalf("pricing model must not change on update")
	}

	zero := int64(0)
	_, err = catalog.Update(ctx, domain.UpdateServiceRequest{
		ServiceID:  svc.ID.String(),
		HourlyRate: &zero,
	})
	if err != domain.ErrInvalidPriceTerms {
		t.Fatalf("expected ErrInvalidPriceTerms, got %v", err)
	}
}

func TestDeactivateService(t *testing.T) {
	catalog, node := newCatalog(t)
	ctx := context.Background()

	svc, err := catalog.Create(ctx, domain.CreateServiceRequest{
		ProviderID:   node.Generate().String(),
		DisplayName:  "Dog Walking",
		PricingModel: "donation",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := catalog.Deactivate(ctx, svc.ID.String()); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	got, err := catalog.GetByID(ctx, svc.ID.String())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Active {
		t.Fatal("expected inactive service")
	}
}

func TestGetByIDNotFound(t *testing.T) {
	catalog, node := newCatalog(t)

	_, err := catalog.GetByID(context.Background(), node.Generate().String())
	if err != domain.ErrServiceNotFound {
		t.Fatalf("expected ErrServiceNotFound, got %v", err)
	}
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	if err := db.Exec(`CREATE TABLE services (
		id BIGINT PRIMARY KEY,
		provider_id BIGINT NOT NULL,
		display_name TEXT NOT NULL,
		pricing_model TEXT NOT NULL,
		fixed_price BIGINT NOT NULL DEFAULT 0,
		hourly_rate BIGINT NOT NULL DEFAULT 0,
		default_duration_minutes BIGINT NOT NULL DEFAULT 60,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`).Error; err != nil {
		t.Fatalf("schema exec failed: %v", err)
	}

	return db
}
