package companies

import (
	"errors"
	"strings"
	"time"
	"unicode"
)

// ErrNotFound indicates a missing company.
var ErrNotFound = errors.New("companies: not found")

// ErrDuplicateCode indicates a company code collision.
var ErrDuplicateCode = errors.New("companies: duplicate code")

// Company owns documents and contributes its code to every generated number.
type Company struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	Address   string    `json:"address"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateCompanyRequest creates a company. Code is derived from the name when
// left blank.
type CreateCompanyRequest struct {
	Name    string `json:"name" validate:"required,max=200"`
	Code    string `json:"code,omitempty" validate:"omitempty,alphanum,max=8"`
	Address string `json:"address" validate:"max=500"`
	Email   string `json:"email,omitempty" validate:"omitempty,email"`
	Phone   string `json:"phone,omitempty" validate:"max=50"`
}

// UpdateCompanyRequest updates the mutable fields of a company. The code is
// fixed after creation because issued document numbers embed it.
type UpdateCompanyRequest struct {
	Name    string `json:"name" validate:"required,max=200"`
	Address string `json:"address" validate:"max=500"`
	Email   string `json:"email,omitempty" validate:"omitempty,email"`
	Phone   string `json:"phone,omitempty" validate:"max=50"`
}

// DeriveCode builds a company code from the first letter of each word in the
// name, uppercased, capped at four characters. Words without a leading letter
// or digit are skipped.
func DeriveCode(name string) string {
	var b strings.Builder
	for _, word := range strings.Fields(name) {
		for _, r := range word {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				b.WriteRune(unicode.ToUpper(r))
				break
			}
		}
		if b.Len() >= 4 {
			break
		}
	}
	return b.String()
}
