package model

import "strings"

type Account struct {
	ID       string          `json:"id,omitempty"`
	Email    string          `json:"email"`
	Password string          `json:"password"`
	Proxy    string          `json:"proxy,omitempty"`
	Billing  *BillingProfile `json:"billing,omitempty"`
	Card     *CardProfile    `json:"card,omitempty"`
}

// BillingProfile 账号的账单信息；为空的字段在填写时直接跳过。
type BillingProfile struct {
	FirstName      string `json:"first_name,omitempty"`
	LastName       string `json:"last_name,omitempty"`
	DocumentNumber string `json:"document_number,omitempty"`
	Phone          string `json:"phone,omitempty"`
	Address        string `json:"address,omitempty"`
	City           string `json:"city,omitempty"`
	PostalCode     string `json:"postal_code,omitempty"`
}

type CardProfile struct {
	Number      string `json:"number,omitempty"`
	Holder      string `json:"holder,omitempty"`
	ExpiryMonth string `json:"expiry_month,omitempty"`
	ExpiryYear  string `json:"expiry_year,omitempty"`
	CVV         string `json:"cvv,omitempty"`
}

// MaskedEmail 用于日志/通知里展示账号，避免完整邮箱落盘到公共输出。
func (a Account) MaskedEmail() string {
	email := strings.TrimSpace(a.Email)
	local, domain, ok := strings.Cut(email, "@")
	if !ok || len(local) <= 2 {
		return email
	}
	return local[:2] + strings.Repeat("*", len(local)-2) + "@" + domain
}
