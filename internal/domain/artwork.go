package domain

import "github.com/shopspring/decimal"

type Artwork struct {
	ID    string          `json:"id"`
	Title string          `json:"title"`
	Price decimal.Decimal `json:"price"`
}
