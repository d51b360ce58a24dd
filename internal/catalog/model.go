package catalog

import (
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

type Size string

const (
	SizeS  Size = "S"
	SizeM  Size = "M"
	SizeL  Size = "L"
	SizeXL Size = "XL"
)

// DefaultSize is applied to imported variants with no size.
const DefaultSize = SizeM

func (s Size) String() string {
	return string(s)
}

func (s Size) Valid() bool {
	switch s {
	case SizeS, SizeM, SizeL, SizeXL:
		return true
	}
	return false
}

type Product struct {
	ID        uuid.UUID        `json:"id" db:"id"`
	Handle    *string          `json:"handle,omitempty" db:"handle"`
	Title     string           `json:"title" db:"title"`
	IsDeleted bool             `json:"-" db:"is_deleted"`
	CreatedAt time.Time        `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time        `json:"updatedAt" db:"updated_at"`
	Variants  []ProductVariant `json:"variants" db:"-"`
}

type ProductVariant struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	ProductID uuid.UUID       `json:"productId" db:"product_id"`
	Color     string          `json:"color" db:"color"`
	ColorCode *string         `json:"colorCode,omitempty" db:"color_code"`
	Size      Size            `json:"size" db:"size"`
	Img       string          `json:"img" db:"img"`
	Price     decimal.Decimal `json:"price" db:"price"`
	Stock     int             `json:"stock" db:"stock"`
	IsDeleted bool            `json:"-" db:"is_deleted"`
	CreatedAt time.Time       `json:"-" db:"created_at"`
	UpdatedAt time.Time       `json:"-" db:"updated_at"`
}
