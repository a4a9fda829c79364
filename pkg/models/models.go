package models

import (
	"regexp"
	"strings"
	"time"
)

const (
	RoleCustomer = "customer"
	RoleEmployee = "employee"

	PaymentPending  = "pending"
	PaymentVerified = "verified"
)

// Account is a portal user. Uniqueness of Username, IDNumber and
// AccountNumber is enforced by the persistence layer.
type Account struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	FullName      string    `json:"fullName"`
	IDNumber      string    `json:"idNumber"`
	AccountNumber string    `json:"accountNumber"`
	PasswordHash  string    `json:"-"`
	Role          string    `json:"role"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Payment is an international payment instruction submitted by a customer.
type Payment struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	OwnerName     string    `json:"ownerName,omitempty"`
	Amount        float64   `json:"amount"`
	Currency      string    `json:"currency"`
	BankName      string    `json:"bankName"`
	SwiftCode     string    `json:"swiftCode"`
	Method        string    `json:"method,omitempty"`
	Reference     string    `json:"reference"`
	RecipientName string    `json:"recipientName"`
	AccountNumber string    `json:"accountNumber"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

var (
	loginUsernameRe = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,15}$`)
	numericRe       = regexp.MustCompile(`^[0-9]+$`)
	fullNameRe      = regexp.MustCompile(`^[A-Za-z\s]+$`)
	idNumberRe      = regexp.MustCompile(`^\d{13}$`)
	accountNumberRe = regexp.MustCompile(`^\d{10}$`)
)

// allowedCurrencies is the fixed 16-code ISO 4217 allow-list accepted at
// payment creation.
var allowedCurrencies = map[string]struct{}{
	"USD": {}, "EUR": {}, "GBP": {}, "JPY": {},
	"AUD": {}, "CAD": {}, "CHF": {}, "CNY": {},
	"ZAR": {}, "INR": {}, "SGD": {}, "NZD": {},
	"HKD": {}, "NOK": {}, "SEK": {}, "MXN": {},
}

// ValidLoginUsername reports whether a username matches the login pattern:
// 3-15 characters, letters, digits, underscores or hyphens.
func ValidLoginUsername(username string) bool {
	return loginUsernameRe.MatchString(username)
}

// ValidNumeric reports whether the value is non-empty and digits only.
func ValidNumeric(value string) bool {
	return numericRe.MatchString(value)
}

func ValidFullName(name string) bool {
	return strings.TrimSpace(name) != "" && fullNameRe.MatchString(name)
}

func ValidIDNumber(id string) bool {
	return idNumberRe.MatchString(id)
}

func ValidAccountNumber(acc string) bool {
	return accountNumberRe.MatchString(acc)
}

// AllowedCurrency reports whether the code is in the allow-list. Codes are
// matched exactly; lowercase input is not normalized, matching the portal's
// original behavior.
func AllowedCurrency(code string) bool {
	_, ok := allowedCurrencies[code]
	return ok
}

func ValidRole(role string) bool {
	return role == RoleCustomer || role == RoleEmployee
}

// ValidatePaymentInput checks presence of every required payment field and
// allow-list membership of the currency. It returns an empty string when the
// input is acceptable, otherwise a client-facing reason. Amount carries no
// range validation beyond presence.
func ValidatePaymentInput(p Payment) string {
	if p.Amount == 0 || strings.TrimSpace(p.Currency) == "" ||
		strings.TrimSpace(p.BankName) == "" || strings.TrimSpace(p.SwiftCode) == "" ||
		strings.TrimSpace(p.Reference) == "" || strings.TrimSpace(p.RecipientName) == "" ||
		strings.TrimSpace(p.AccountNumber) == "" {
		return "All fields are required"
	}
	if !AllowedCurrency(p.Currency) {
		return "Invalid currency"
	}
	return ""
}

// RegistrationInput carries the fields the registration form submits.
type RegistrationInput struct {
	Username      string `json:"username"`
	FullName      string `json:"fullName"`
	IDNumber      string `json:"idNumber"`
	AccountNumber string `json:"accountNumber"`
	Password      string `json:"password"`
	Role          string `json:"role"`
}

// ValidateRegistration mirrors the account schema constraints. It returns an
// empty string when the input is acceptable, otherwise a client-facing reason.
func ValidateRegistration(in RegistrationInput) string {
	if !ValidLoginUsername(in.Username) {
		return "Invalid username format. It must be 3-15 characters long and can include letters, numbers, underscores, or hyphens."
	}
	if !ValidFullName(in.FullName) {
		return "Full name can only contain letters and spaces"
	}
	if !ValidIDNumber(in.IDNumber) {
		return "ID number must be a 13-digit number"
	}
	if !ValidAccountNumber(in.AccountNumber) {
		return "Account number must be a 10-digit number"
	}
	if len(in.Password) < 8 {
		return "Password must be at least 8 characters long"
	}
	if in.Role != "" && !ValidRole(in.Role) {
		return "Role must be customer or employee"
	}
	return ""
}
