package model

import "time"

// Product はカタログに掲載する商品を表す。
type Product struct {
	ID         string
	Name       string
	PriceCents int64
	Image      string
	Category   string
	CreatedAt  time.Time
}
