package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID            int64       `json:"id"`
	Kind          ProductKind `json:"kind"`
	Name          string      `json:"name"`
	Location      string      `json:"location"`
	OwnerID       int64       `json:"owner_id"`
	Status        bool        `json:"status"`
	AdminApproval bool        `json:"admin_approval"`
	AverageRating float64     `json:"average_rating"`
	CommentCount  int         `json:"comment_count"`
	Highlight     bool        `json:"highlight"`
	CreatedAt     time.Time   `json:"created_at"`
	DeletedAt     *time.Time  `json:"deleted_at,omitempty"`
}

// Visible reports whether the product may be shown on storefronts.
func (p Product) Visible() bool {
	return p.Status && p.AdminApproval && p.DeletedAt == nil
}

type Package struct {
	ID            int64  `json:"id"`
	ProductID     int64  `json:"product_id"`
	Name          string `json:"name"`
	ConstantPrice bool   `json:"constant_price"`
}

// Price is one pricing row of a package. Optional amounts use NullDecimal.
type Price struct {
	ID             int64               `json:"id"`
	PackageID      int64               `json:"package_id"`
	MainPrice      decimal.Decimal     `json:"main_price"`
	ChildPrice     decimal.NullDecimal `json:"child_price"`
	BabyPrice      decimal.NullDecimal `json:"baby_price"`
	SinglePrice    decimal.NullDecimal `json:"single_price"`
	CurrencyID     int64               `json:"currency_id"`
	CurrencyCode   string              `json:"currency_code"`
	Discount       decimal.NullDecimal `json:"discount"`
	StartDate      *time.Time          `json:"start_date"`
	EndDate        *time.Time          `json:"end_date"`
	TotalTaxAmount decimal.Decimal     `json:"total_tax_amount"`
}

type ProductImage struct {
	ID        int64  `json:"id"`
	ProductID int64  `json:"product_id"`
	URL       string `json:"url"`
}

type CommissionType string

const (
	CommissionPercentage CommissionType = "percentage"
	CommissionFixed      CommissionType = "fixed"
)

type Commission struct {
	ID             int64           `json:"id"`
	SalesPartnerID int64           `json:"sales_partner_id"`
	ServiceType    string          `json:"service_type"`
	ServiceID      *int64          `json:"service_id"`
	Type           CommissionType  `json:"commission_type"`
	Value          decimal.Decimal `json:"commission_value"`
	Currency       string          `json:"commission_currency"`
}

type Currency struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
}

type DiscountCode struct {
	ID     int64  `json:"id"`
	Code   string `json:"code"`
	Active bool   `json:"active"`
}
