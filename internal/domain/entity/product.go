package entity

import (
	"time"
)

type Product struct {
	ID        string    `json:"id" firestore:"id"`
	SellerID  string    `json:"seller_id" firestore:"sellerId"`
	Title     string    `json:"title" firestore:"title"`
	Price     float64   `json:"price" firestore:"price"`
	Status    string    `json:"status" firestore:"status"`
	ImageURL  string    `json:"image_url,omitempty" firestore:"imageUrl,omitempty"`
	CreatedAt time.Time `json:"created_at" firestore:"createdAt"`
}

type ProductSummary struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Price    float64 `json:"price"`
	ImageURL string  `json:"image_url,omitempty"`
}

func (p *Product) Summary() ProductSummary {
	return ProductSummary{ID: p.ID, Title: p.Title, Price: p.Price, ImageURL: p.ImageURL}
}
