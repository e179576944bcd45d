package principals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/civitaslab/docregister/internal/policy"
)

var (
	// ErrNotFound indicates the requested principal does not exist.
	ErrNotFound = errors.New("principals: not found")
	// ErrDisplayNameTaken indicates another principal already carries the name.
	ErrDisplayNameTaken = errors.New("principals: display name already registered")

	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

const (
	opServiceNew      = "principals.service.new"
	opCreatePrincipal = "principals.create"
	opDeletePrincipal = "principals.delete"
	opListPrincipals  = "principals.list"
	opGetPrincipal    = "principals.get"
)

// ServiceError carries a stable operation.reason code alongside its cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// IDProvider issues surrogate identifiers for new principals.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies of the principal service.
type ServiceConfig struct {
	Database   *gorm.DB
	IDProvider IDProvider
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Service manages principal records. Only administrators may mutate them;
// documents reference principals by id and are never cascaded.
type Service struct {
	db         *gorm.DB
	idProvider IDProvider
	clock      func() time.Time
	logger     *zap.Logger
}

// NewService constructs the principal service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{db: cfg.Database, idProvider: cfg.IDProvider, clock: clock, logger: logger}, nil
}

// CreateInput carries the fields for a new principal. Credential is an
// opaque token produced by the excluded login layer.
type CreateInput struct {
	DisplayName string
	Role        string
	TaxID       string
	Credential  string
}

// Create registers a new principal. Auditors must present a valid CPF;
// administrators are registered without one.
func (s *Service) Create(ctx context.Context, callerRole policy.Role, input CreateInput) (*Principal, error) {
	if err := policy.Authorize(callerRole, policy.OpCreatePrincipal); err != nil {
		return nil, newServiceError(opCreatePrincipal, "denied", err)
	}

	displayName, err := NormalizeDisplayName(input.DisplayName)
	if err != nil {
		return nil, newServiceError(opCreatePrincipal, "invalid_display_name", err)
	}
	role, err := policy.ParseRole(input.Role)
	if err != nil {
		return nil, newServiceError(opCreatePrincipal, "invalid_role", err)
	}

	taxID := ""
	if role != policy.RoleAdmin {
		taxID, err = NormalizeTaxID(input.TaxID)
		if err != nil {
			return nil, newServiceError(opCreatePrincipal, "invalid_tax_id", err)
		}
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreatePrincipal, "id_generation_failed", err)
		return nil, newServiceError(opCreatePrincipal, "id_generation_failed", err)
	}

	principal := &Principal{
		ID:          id,
		DisplayName: displayName,
		Role:        role,
		TaxID:       taxID,
		Credential:  input.Credential,
		CreatedAt:   s.clock().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(principal).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, newServiceError(opCreatePrincipal, "display_name_taken", ErrDisplayNameTaken)
		}
		s.logError(opCreatePrincipal, "insert_failed", err, zap.String("display_name", displayName))
		return nil, newServiceError(opCreatePrincipal, "insert_failed", err)
	}

	s.logger.Info("principal created",
		zap.String("principal_id", principal.ID),
		zap.String("role", string(principal.Role)))
	return principal, nil
}

// Delete removes a principal by id. Document records keep referencing the
// deleted id; the document ledger itself is append-only.
func (s *Service) Delete(ctx context.Context, callerRole policy.Role, id string) error {
	if err := policy.Authorize(callerRole, policy.OpDeletePrincipal); err != nil {
		return newServiceError(opDeletePrincipal, "denied", err)
	}

	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&Principal{})
	if result.Error != nil {
		s.logError(opDeletePrincipal, "delete_failed", result.Error, zap.String("principal_id", id))
		return newServiceError(opDeletePrincipal, "delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return newServiceError(opDeletePrincipal, "not_found", ErrNotFound)
	}

	s.logger.Info("principal deleted", zap.String("principal_id", id))
	return nil
}

// List returns all principals ordered by registration time.
func (s *Service) List(ctx context.Context, callerRole policy.Role) ([]Principal, error) {
	if err := policy.Authorize(callerRole, policy.OpListPrincipals); err != nil {
		return nil, newServiceError(opListPrincipals, "denied", err)
	}

	var records []Principal
	if err := s.db.WithContext(ctx).Order("created_at, id").Find(&records).Error; err != nil {
		s.logError(opListPrincipals, "query_failed", err)
		return nil, newServiceError(opListPrincipals, "query_failed", err)
	}
	return records, nil
}

// Get resolves a principal by id. Callers use the returned role as the
// subject for access policy checks; no policy gate applies to the lookup
// itself.
func (s *Service) Get(ctx context.Context, id string) (*Principal, error) {
	var principal Principal
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&principal).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newServiceError(opGetPrincipal, "not_found", ErrNotFound)
	}
	if err != nil {
		s.logError(opGetPrincipal, "query_failed", err, zap.String("principal_id", id))
		return nil, newServiceError(opGetPrincipal, "query_failed", err)
	}
	return &principal, nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("principals service error", attrs...)
}
