package platform

import "strings"

// StatusActive is the only game status that accepts traffic.
const StatusActive = "ACTIVE"

// Play statuses reported by the result endpoint.
const (
	PlayQueued     = "QUEUED"
	PlayProcessing = "PROCESSING"
	PlayWinner     = "WINNER"
	PlayLoser      = "LOSER"
)

type Game struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

func (g Game) Active() bool {
	return strings.EqualFold(g.Status, StatusActive)
}

type Coupon struct {
	BrandID    string `json:"brandId,omitempty"`
	BrandName  string `json:"brandName,omitempty"`
	CouponCode string `json:"couponCode"`
}

// PlayResult is a settled play as reported by the result endpoint.
type PlayResult struct {
	Status  string   `json:"status,omitempty"`
	Winner  bool     `json:"winner"`
	Coupons []Coupon `json:"coupons,omitempty"`
}
