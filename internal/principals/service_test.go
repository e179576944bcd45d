package principals

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/civitaslab/docregister/internal/policy"
)

type staticIDGenerator struct {
	ids   []string
	index int
}

func (g *staticIDGenerator) NewID() (string, error) {
	if g.index >= len(g.ids) {
		return "", errors.New("exhausted ids")
	}
	id := g.ids[g.index]
	g.index++
	return id, nil
}

func TestCreateAuditorRequiresValidTaxID(t *testing.T) {
	service, _ := newTestService(t, []string{"p-1"})

	principal, err := service.Create(context.Background(), policy.RoleAdmin, CreateInput{
		DisplayName: "Ana Pereira",
		Role:        "auditor",
		TaxID:       "529.982.247-25",
		Credential:  "opaque-token",
	})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	if principal.ID != "p-1" {
		t.Fatalf("expected assigned id p-1, got %s", principal.ID)
	}
	if principal.TaxID != "52998224725" {
		t.Fatalf("expected normalized tax id, got %q", principal.TaxID)
	}
	if principal.Role != policy.RoleAuditor {
		t.Fatalf("expected auditor role, got %s", principal.Role)
	}
}

func TestCreateAuditorRejectsBadTaxID(t *testing.T) {
	service, db := newTestService(t, []string{"p-1"})

	_, err := service.Create(context.Background(), policy.RoleAdmin, CreateInput{
		DisplayName: "Ana Pereira",
		Role:        "auditor",
		TaxID:       "111.111.111-11",
		Credential:  "opaque-token",
	})
	if !errors.Is(err, ErrInvalidTaxID) {
		t.Fatalf("expected ErrInvalidTaxID, got %v", err)
	}

	var count int64
	if err := db.Model(&Principal{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count principals: %v", err)
	}
	if count != 0 {
		t.Fatalf("rejected create left %d records", count)
	}
}

func TestCreateAdminSkipsTaxID(t *testing.T) {
	service, _ := newTestService(t, []string{"p-1"})

	principal, err := service.Create(context.Background(), policy.RoleAdmin, CreateInput{
		DisplayName: "Chefe de Gabinete",
		Role:        "admin",
		Credential:  "opaque-token",
	})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	if principal.TaxID != "" {
		t.Fatalf("admin should carry no tax id, got %q", principal.TaxID)
	}
}

func TestCreateRejectsUnknownRole(t *testing.T) {
	service, _ := newTestService(t, []string{"p-1"})

	_, err := service.Create(context.Background(), policy.RoleAdmin, CreateInput{
		DisplayName: "Ana",
		Role:        "prefeito",
		Credential:  "opaque-token",
	})
	if !errors.Is(err, policy.ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
}

func TestCreateDeniedForAuditor(t *testing.T) {
	service, db := newTestService(t, []string{"p-1"})

	_, err := service.Create(context.Background(), policy.RoleAuditor, CreateInput{
		DisplayName: "Ana",
		Role:        "auditor",
		TaxID:       "52998224725",
		Credential:  "opaque-token",
	})
	if !errors.Is(err, policy.ErrDenied) {
		t.Fatalf("expected ErrDenied, got %v", err)
	}

	var count int64
	if err := db.Model(&Principal{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count principals: %v", err)
	}
	if count != 0 {
		t.Fatalf("denied create left %d records", count)
	}
}

func TestCreateRejectsDuplicateDisplayName(t *testing.T) {
	service, _ := newTestService(t, []string{"p-1", "p-2"})

	input := CreateInput{
		DisplayName: "Ana Pereira",
		Role:        "auditor",
		TaxID:       "52998224725",
		Credential:  "opaque-token",
	}
	if _, err := service.Create(context.Background(), policy.RoleAdmin, input); err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	if _, err := service.Create(context.Background(), policy.RoleAdmin, input); !errors.Is(err, ErrDisplayNameTaken) {
		t.Fatalf("expected ErrDisplayNameTaken, got %v", err)
	}
}

func TestDeletePrincipal(t *testing.T) {
	service, _ := newTestService(t, []string{"p-1"})

	if _, err := service.Create(context.Background(), policy.RoleAdmin, CreateInput{
		DisplayName: "Ana Pereira",
		Role:        "auditor",
		TaxID:       "52998224725",
		Credential:  "opaque-token",
	}); err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}

	if err := service.Delete(context.Background(), policy.RoleAdmin, "p-1"); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	if err := service.Delete(context.Background(), policy.RoleAdmin, "p-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	if err := service.Delete(context.Background(), policy.RoleAuditor, "p-1"); !errors.Is(err, policy.ErrDenied) {
		t.Fatalf("expected ErrDenied for auditor, got %v", err)
	}
}

func TestListAndGet(t *testing.T) {
	service, _ := newTestService(t, []string{"p-1", "p-2"})

	for index, name := range []string{"Ana Pereira", "Bruno Lima"} {
		if _, err := service.Create(context.Background(), policy.RoleAdmin, CreateInput{
			DisplayName: name,
			Role:        "auditor",
			TaxID:       pickCPF(index),
			Credential:  "opaque-token",
		}); err != nil {
			t.Fatalf("unexpected create error for %s: %v", name, err)
		}
	}

	records, err := service.List(context.Background(), policy.RoleAdmin)
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 principals, got %d", len(records))
	}
	if records[0].ID != "p-1" || records[1].ID != "p-2" {
		t.Fatalf("listing out of registration order: %s, %s", records[0].ID, records[1].ID)
	}

	if _, err := service.List(context.Background(), policy.RoleAuditor); !errors.Is(err, policy.ErrDenied) {
		t.Fatalf("expected ErrDenied for auditor listing, got %v", err)
	}

	principal, err := service.Get(context.Background(), "p-2")
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if principal.DisplayName != "Bruno Lima" {
		t.Fatalf("expected Bruno Lima, got %s", principal.DisplayName)
	}

	if _, err := service.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func pickCPF(index int) string {
	cpfs := []string{"52998224725", "11144477735"}
	return cpfs[index%len(cpfs)]
}

func newTestService(t *testing.T, ids []string) (*Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:principals_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Principal{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	generator := &staticIDGenerator{ids: ids}
	clock := func() time.Time { return time.Unix(1700000600, 0).UTC() }

	service, err := NewService(ServiceConfig{
		Database:   db,
		IDProvider: generator,
		Clock:      clock,
	})
	if err != nil {
		t.Fatalf("failed to construct principals service: %v", err)
	}

	return service, db
}
