package types

import "time"

// PriceData is one hourly close of an asset's USD price.
type PriceData struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
}
