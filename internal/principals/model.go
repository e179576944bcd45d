package principals

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/civitaslab/docregister/internal/policy"
)

var (
	// ErrInvalidDisplayName indicates an empty or oversized display name.
	ErrInvalidDisplayName = errors.New("principals: invalid display name")
	// ErrInvalidTaxID indicates a tax id that fails the CPF checksum.
	ErrInvalidTaxID = errors.New("principals: invalid tax id")
)

const maxIdentifierLength = 190

// Principal is an authenticated actor with exactly one role. The credential
// column is an opaque token owned by the excluded login layer; this module
// stores it untouched and never interprets it.
type Principal struct {
	ID          string      `gorm:"column:id;primaryKey;size:190;not null"`
	DisplayName string      `gorm:"column:display_name;size:190;uniqueIndex;not null"`
	Role        policy.Role `gorm:"column:role;size:32;not null"`
	TaxID       string      `gorm:"column:tax_id;size:11"`
	Credential  string      `gorm:"column:credential;size:512;not null"`
	CreatedAt   time.Time   `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Principal) TableName() string {
	return "principals"
}

// NormalizeDisplayName trims and validates a display name.
func NormalizeDisplayName(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidDisplayName)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidDisplayName, maxIdentifierLength)
	}
	return trimmed, nil
}

// NormalizeTaxID strips punctuation from a Brazilian CPF and validates its
// two mod-11 check digits. Auditors must carry a valid CPF; administrators
// are registered without one.
func NormalizeTaxID(raw string) (string, error) {
	var digits []rune
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}
	cpf := string(digits)

	if len(cpf) != 11 {
		return "", fmt.Errorf("%w: expected 11 digits", ErrInvalidTaxID)
	}
	if strings.Count(cpf, cpf[:1]) == 11 {
		// All-equal CPFs pass the checksum but are reserved as invalid.
		return "", fmt.Errorf("%w: repeated digits", ErrInvalidTaxID)
	}
	if int(cpf[9]-'0') != checkDigit(cpf, 9) || int(cpf[10]-'0') != checkDigit(cpf, 10) {
		return "", fmt.Errorf("%w: checksum mismatch", ErrInvalidTaxID)
	}
	return cpf, nil
}

// checkDigit computes the mod-11 verification digit over the first
// length digits of the CPF.
func checkDigit(cpf string, length int) int {
	sum := 0
	for i := 0; i < length; i++ {
		sum += int(cpf[i]-'0') * (length + 1 - i)
	}
	rest := sum % 11
	if rest < 2 {
		return 0
	}
	return 11 - rest
}
