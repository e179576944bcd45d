package register

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/civitaslab/docregister/internal/blob"
	"github.com/civitaslab/docregister/internal/digest"
	"github.com/civitaslab/docregister/internal/policy"
)

// DefaultQuorum is the number of distinct approvers required before a
// document becomes Validated, including the submitter's implicit approval.
const DefaultQuorum = 5

var (
	// ErrNotFound indicates the requested document does not exist.
	ErrNotFound = errors.New("register: document not found")
	// ErrInvalidDigest indicates a lookup value that is not a content digest.
	ErrInvalidDigest = errors.New("register: invalid content digest")

	errMissingDatabase   = errors.New("database handle is required")
	errMissingBlobStore  = errors.New("blob store is required")
	errMissingIDProvider = errors.New("id provider is required")
	errNegativeQuorum    = errors.New("quorum must be positive")
	noOpLogger           = zap.NewNop()
)

const (
	opServiceNew      = "register.service.new"
	opSubmit          = "register.submit"
	opLookupByHash    = "register.lookup_by_hash"
	opListByCategory  = "register.list_by_category"
	opListPending     = "register.list_pending_by_category"
	opApproveDocument = "register.approve"
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

// ServiceConfig describes the dependencies of the document ledger.
type ServiceConfig struct {
	Database   *gorm.DB
	Blobs      *blob.Store
	IDProvider IDProvider
	Clock      func() time.Time
	Logger     *zap.Logger
	// Quorum overrides DefaultQuorum when positive.
	Quorum int
}

// Service is the single entry point the surrounding layers call. It
// composes the hasher, the document store, the approval engine and the
// access policy.
type Service struct {
	store      *Store
	blobs      *blob.Store
	idProvider IDProvider
	clock      func() time.Time
	logger     *zap.Logger
	quorum     int
	locks      stripedLocks
}

// NewService constructs the ledger service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.Blobs == nil {
		return nil, newServiceError(opServiceNew, "missing_blob_store", errMissingBlobStore)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	if cfg.Quorum < 0 {
		return nil, newServiceError(opServiceNew, "invalid_quorum", errNegativeQuorum)
	}
	quorum := cfg.Quorum
	if quorum == 0 {
		quorum = DefaultQuorum
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		store:      NewStore(cfg.Database),
		blobs:      cfg.Blobs,
		idProvider: cfg.IDProvider,
		clock:      clock,
		logger:     logger,
		quorum:     quorum,
	}, nil
}

// Quorum returns the configured approval threshold.
func (s *Service) Quorum() int {
	return s.quorum
}

// Caller identifies the authenticated principal invoking an operation.
type Caller struct {
	ID   string
	Role policy.Role
}

// SubmissionInput carries the submitter-chosen metadata of an upload.
type SubmissionInput struct {
	DisplayName  string
	Category     string
	DocumentDate string
}

// SubmitOutcome reports the result of a submission. A duplicate is not an
// error: the register already holds the same bytes and no record was
// created.
type SubmitOutcome struct {
	Document  *Document
	Duplicate bool
}

// Submit registers an uploaded byte stream. The bytes are staged to the
// blob store, digested, and inserted under the digest-uniqueness
// constraint. The submitter's own id seeds the approval set, so its
// implicit approval counts toward the quorum. On a duplicate digest or any
// storage failure the staged bytes are removed; nothing is orphaned.
func (s *Service) Submit(ctx context.Context, caller Caller, stream io.Reader, input SubmissionInput) (SubmitOutcome, error) {
	if err := policy.Authorize(caller.Role, policy.OpSubmitDocument); err != nil {
		return SubmitOutcome{}, newServiceError(opSubmit, "denied", err)
	}

	ownerID, err := ParsePrincipalID(caller.ID)
	if err != nil {
		return SubmitOutcome{}, newServiceError(opSubmit, "invalid_owner", err)
	}
	displayName, err := ParseDisplayName(input.DisplayName)
	if err != nil {
		return SubmitOutcome{}, newServiceError(opSubmit, "invalid_display_name", err)
	}
	category, err := ParseCategory(input.Category)
	if err != nil {
		return SubmitOutcome{}, newServiceError(opSubmit, "invalid_category", err)
	}
	documentDate, err := ParseDocumentDate(input.DocumentDate)
	if err != nil {
		return SubmitOutcome{}, newServiceError(opSubmit, "invalid_document_date", err)
	}

	location, err := s.blobs.Save(stream)
	if err != nil {
		s.logError(opSubmit, "stage_failed", err, zap.String("owner_id", ownerID))
		return SubmitOutcome{}, newServiceError(opSubmit, "stage_failed", err)
	}

	contentDigest, err := s.digestBlob(location)
	if err != nil {
		s.discardBlob(opSubmit, location)
		s.logError(opSubmit, "digest_failed", err, zap.String("owner_id", ownerID))
		return SubmitOutcome{}, newServiceError(opSubmit, "digest_failed", err)
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		s.discardBlob(opSubmit, location)
		s.logError(opSubmit, "id_generation_failed", err)
		return SubmitOutcome{}, newServiceError(opSubmit, "id_generation_failed", err)
	}

	approvers, err := EncodeApprovers(initialApprovers(ownerID))
	if err != nil {
		s.discardBlob(opSubmit, location)
		return SubmitOutcome{}, newServiceError(opSubmit, "encode_approvers_failed", err)
	}

	doc := &Document{
		ID:              id,
		DisplayName:     displayName,
		StorageLocation: location,
		ContentDigest:   contentDigest,
		OwnerID:         ownerID,
		Category:        category,
		Status:          s.statusFor(1, StatusPending),
		ApproversJSON:   approvers,
		DocumentDate:    documentDate,
		SubmittedAt:     s.clock().UTC(),
	}

	if err := s.store.Insert(ctx, doc); err != nil {
		s.discardBlob(opSubmit, location)
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			s.logger.Info("duplicate submission rejected",
				zap.String("owner_id", ownerID),
				zap.String("content_digest", contentDigest))
			return SubmitOutcome{Duplicate: true}, nil
		}
		s.logError(opSubmit, "insert_failed", err, zap.String("owner_id", ownerID))
		return SubmitOutcome{}, newServiceError(opSubmit, "insert_failed", err)
	}

	s.logger.Info("document registered",
		zap.String("document_id", doc.ID),
		zap.String("category", string(doc.Category)),
		zap.String("owner_id", ownerID))
	return SubmitOutcome{Document: doc}, nil
}

// LookupByHash reports whether any registered document carries the digest.
// It never mutates state and creates no record; the standalone tamper
// check calls it without a submission.
func (s *Service) LookupByHash(ctx context.Context, contentDigest string) (bool, error) {
	if !digest.IsValid(contentDigest) {
		return false, newServiceError(opLookupByHash, "invalid_digest", fmt.Errorf("%w: %q", ErrInvalidDigest, contentDigest))
	}
	exists, err := s.store.DigestExists(ctx, contentDigest)
	if err != nil {
		s.logError(opLookupByHash, "query_failed", err)
		return false, newServiceError(opLookupByHash, "query_failed", err)
	}
	return exists, nil
}

// ListByCategory returns the category's documents in submission order.
func (s *Service) ListByCategory(ctx context.Context, caller Caller, rawCategory string) ([]Document, error) {
	if err := policy.Authorize(caller.Role, policy.OpListDocuments); err != nil {
		return nil, newServiceError(opListByCategory, "denied", err)
	}
	category, err := ParseCategory(rawCategory)
	if err != nil {
		return nil, newServiceError(opListByCategory, "invalid_category", err)
	}
	docs, err := s.store.ListByCategory(ctx, category)
	if err != nil {
		s.logError(opListByCategory, "query_failed", err, zap.String("category", rawCategory))
		return nil, newServiceError(opListByCategory, "query_failed", err)
	}
	return docs, nil
}

// ListPendingByCategory returns the category's documents still awaiting
// quorum, in submission order.
func (s *Service) ListPendingByCategory(ctx context.Context, caller Caller, rawCategory string) ([]Document, error) {
	if err := policy.Authorize(caller.Role, policy.OpListDocuments); err != nil {
		return nil, newServiceError(opListPending, "denied", err)
	}
	category, err := ParseCategory(rawCategory)
	if err != nil {
		return nil, newServiceError(opListPending, "invalid_category", err)
	}
	docs, err := s.store.ListPendingByCategory(ctx, category)
	if err != nil {
		s.logError(opListPending, "query_failed", err, zap.String("category", rawCategory))
		return nil, newServiceError(opListPending, "query_failed", err)
	}
	return docs, nil
}

// ApprovalOutcome reports the result of an approval. AlreadyApproved marks
// the idempotent no-op case: the caller had voted before and the record is
// unchanged.
type ApprovalOutcome struct {
	Document        *Document
	AlreadyApproved bool
}

// Approve records the caller's vote on a document. The fetch-mutate-persist
// sequence runs as a single critical section per document id: a stripe lock
// serializes writers on the same record, so no two votes can read the same
// approval snapshot. Repeated votes by the same principal are
// no-ops; the status flips to Validated on the vote that reaches the
// quorum and never reverts, while later votes still join the set for audit
// completeness.
func (s *Service) Approve(ctx context.Context, caller Caller, documentID string) (ApprovalOutcome, error) {
	if err := policy.Authorize(caller.Role, policy.OpApproveDocument); err != nil {
		return ApprovalOutcome{}, newServiceError(opApproveDocument, "denied", err)
	}
	voterID, err := ParsePrincipalID(caller.ID)
	if err != nil {
		return ApprovalOutcome{}, newServiceError(opApproveDocument, "invalid_voter", err)
	}

	stripe := s.locks.forKey(documentID)
	stripe.Lock()
	defer stripe.Unlock()

	var outcome ApprovalOutcome
	txErr := s.store.Transaction(ctx, func(tx *Store) error {
		doc, err := tx.Get(ctx, documentID)
		if IsNotFound(err) {
			return newServiceError(opApproveDocument, "not_found", fmt.Errorf("%w: %s", ErrNotFound, documentID))
		}
		if err != nil {
			s.logError(opApproveDocument, "fetch_failed", err, zap.String("document_id", documentID))
			return newServiceError(opApproveDocument, "fetch_failed", err)
		}

		approvers, err := doc.Approvers()
		if err != nil {
			return newServiceError(opApproveDocument, "decode_approvers_failed", err)
		}
		if approvers.Contains(voterID) {
			outcome = ApprovalOutcome{Document: doc, AlreadyApproved: true}
			return nil
		}

		approvers.Add(voterID)
		doc.Status = s.statusFor(approvers.Cardinality(), doc.Status)
		doc.ApproversJSON, err = EncodeApprovers(approvers)
		if err != nil {
			return newServiceError(opApproveDocument, "encode_approvers_failed", err)
		}

		if err := tx.UpdateApproval(ctx, doc.ID, doc.ApproversJSON, doc.Status); err != nil {
			s.logError(opApproveDocument, "persist_failed", err, zap.String("document_id", documentID))
			return newServiceError(opApproveDocument, "persist_failed", err)
		}

		outcome = ApprovalOutcome{Document: doc}
		return nil
	})
	if txErr != nil {
		return ApprovalOutcome{}, txErr
	}

	if !outcome.AlreadyApproved {
		s.logger.Info("document approved",
			zap.String("document_id", documentID),
			zap.String("voter_id", voterID),
			zap.String("status", string(outcome.Document.Status)))
	}
	return outcome, nil
}

// statusFor recomputes the approval status. Validation is monotonic: an
// already Validated record keeps its status regardless of the count.
func (s *Service) statusFor(approverCount int, current Status) Status {
	if current == StatusValidated || approverCount >= s.quorum {
		return StatusValidated
	}
	return StatusPending
}

func (s *Service) digestBlob(location string) (string, error) {
	reader, err := s.blobs.Open(location)
	if err != nil {
		return "", err
	}
	defer reader.Close()
	return digest.FromReader(reader)
}

// discardBlob cleans up staged bytes after a failed or duplicate
// submission. Cleanup failures are logged, never propagated over the
// original outcome.
func (s *Service) discardBlob(operation, location string) {
	if err := s.blobs.Remove(location); err != nil {
		s.logError(operation, "stage_cleanup_failed", err, zap.String("storage_location", location))
	}
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
	s.logger.Error("register service error", attrs...)
}
