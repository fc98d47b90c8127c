package model

import "strings"

// Tier is a subscription duration with its own price and key pool.
type Tier string

const (
	TierDay   Tier = "day"
	TierWeek  Tier = "week"
	TierMonth Tier = "month"
)

// Tiers lists every tier in panel order (cheapest first).
var Tiers = []Tier{TierDay, TierWeek, TierMonth}

// unit prices in VND
var prices = map[Tier]int64{
	TierDay:   10000,
	TierWeek:  50000,
	TierMonth: 150000,
}

// ParseTier converts user or command input into a Tier.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", ErrInvalidTier
	}
	return t, nil
}

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	_, ok := prices[t]
	return ok
}

// Price returns the unit price of t, or 0 for an unknown tier.
func (t Tier) Price() int64 {
	return prices[t]
}

// Total returns the price of quantity keys of tier t.
func (t Tier) Total(quantity int) int64 {
	return int64(quantity) * t.Price()
}

func (t Tier) String() string { return string(t) }
