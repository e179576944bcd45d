package register

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
)

// Status is the approval state of a registered document. The transition is
// one-directional: once Validated a document never returns to Pending.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusValidated Status = "Validated"
)

// Category is one of the fixed municipal filing categories.
type Category string

const (
	CategoryRevenues          Category = "Receitas"
	CategoryExpenses          Category = "Despesas"
	CategoryAccountingReports Category = "Relatórios Contábeis"
	CategoryMunicipalBudget   Category = "Orçamento do Município"
	CategoryProcurement       Category = "Licitações e Contratos"
)

// Categories lists every filing category in presentation order.
var Categories = []Category{
	CategoryRevenues,
	CategoryExpenses,
	CategoryAccountingReports,
	CategoryMunicipalBudget,
	CategoryProcurement,
}

var (
	// ErrUnknownCategory indicates a category outside the fixed set.
	ErrUnknownCategory = errors.New("register: unknown category")
	// ErrInvalidDisplayName indicates an empty or oversized display name.
	ErrInvalidDisplayName = errors.New("register: invalid display name")
	// ErrInvalidDocumentDate indicates a document date that is not a
	// calendar date.
	ErrInvalidDocumentDate = errors.New("register: invalid document date")
	// ErrInvalidPrincipalID indicates an empty or oversized principal id.
	ErrInvalidPrincipalID = errors.New("register: invalid principal id")
)

const (
	maxIdentifierLength = 190
	documentDateLayout  = "2006-01-02"
)

// ParseCategory validates raw input against the fixed category set.
func ParseCategory(raw string) (Category, error) {
	candidate := Category(strings.TrimSpace(raw))
	for _, category := range Categories {
		if candidate == category {
			return category, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCategory, raw)
}

// ParseDisplayName trims and validates a human-chosen filename.
func ParseDisplayName(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidDisplayName)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidDisplayName, maxIdentifierLength)
	}
	return trimmed, nil
}

// ParseDocumentDate validates the submitter-supplied calendar date and
// returns it normalized to ISO form. The date refers to the underlying
// paper document, not the submission time.
func ParseDocumentDate(raw string) (string, error) {
	parsed, err := time.Parse(documentDateLayout, strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidDocumentDate, raw)
	}
	return parsed.Format(documentDateLayout), nil
}

// ParsePrincipalID validates a principal identifier.
func ParsePrincipalID(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPrincipalID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidPrincipalID, maxIdentifierLength)
	}
	return trimmed, nil
}

// Document is the unit of registration. Every column except the approval
// set and status is immutable after insertion; the content digest carries a
// unique index so duplicate submissions are rejected by the database, not
// by a check-then-act sequence in application code.
type Document struct {
	ID              string    `gorm:"column:id;primaryKey;size:190;not null"`
	DisplayName     string    `gorm:"column:display_name;size:190;not null"`
	StorageLocation string    `gorm:"column:storage_location;size:190;not null"`
	ContentDigest   string    `gorm:"column:content_digest;size:64;uniqueIndex;not null"`
	OwnerID         string    `gorm:"column:owner_id;size:190;not null;index"`
	Category        Category  `gorm:"column:category;size:64;not null;index:idx_documents_category_status,priority:1"`
	Status          Status    `gorm:"column:status;size:16;not null;default:'Pending';index:idx_documents_category_status,priority:2"`
	ApproversJSON   string    `gorm:"column:approvers;type:text;not null"`
	DocumentDate    string    `gorm:"column:document_date;size:10;not null"`
	SubmittedAt     time.Time `gorm:"column:submitted_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Document) TableName() string {
	return "documents"
}

// Approvers decodes the persisted approval list into a set. Legacy rows
// may hold duplicate entries; the set collapses them.
func (d *Document) Approvers() (mapset.Set[string], error) {
	approvers := mapset.NewSet[string]()
	if strings.TrimSpace(d.ApproversJSON) == "" {
		return approvers, nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(d.ApproversJSON), &ids); err != nil {
		return nil, fmt.Errorf("register: decoding approvers of %s: %w", d.ID, err)
	}
	for _, id := range ids {
		approvers.Add(id)
	}
	return approvers, nil
}

// initialApprovers builds the approval set a new record starts with. The
// submitter's own id is its only member; the implicit self-approval counts
// toward the quorum.
func initialApprovers(ownerID string) mapset.Set[string] {
	approvers := mapset.NewSet[string]()
	approvers.Add(ownerID)
	return approvers
}

// EncodeApprovers serializes an approval set for storage. Entries are
// sorted so the persisted form is deterministic.
func EncodeApprovers(approvers mapset.Set[string]) (string, error) {
	ids := approvers.ToSlice()
	sort.Strings(ids)
	encoded, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("register: encoding approvers: %w", err)
	}
	return string(encoded), nil
}
