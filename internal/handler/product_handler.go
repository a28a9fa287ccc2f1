package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/devicehub/internal/model"
)

// ProductLister は商品カタログの参照インターフェース。
type ProductLister interface {
	List(ctx context.Context) ([]*model.Product, error)
}

// ProductHandler は商品カタログのHTTPハンドラー。
type ProductHandler struct {
	products ProductLister
}

// NewProductHandler はProductHandlerを生成する。
func NewProductHandler(products ProductLister) *ProductHandler {
	return &ProductHandler{products: products}
}

// productResponse は商品情報のAPIレスポンス。
// price は既存クライアント向けの通貨単位の値、priceCents は最小通貨単位の値。
type productResponse struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Price      float64 `json:"price"`
	PriceCents int64   `json:"priceCents"`
	Image      string  `json:"image"`
	Category   string  `json:"category"`
}

// List は商品一覧を返す。
// GET /api/products
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]productResponse, len(products))
	for i, p := range products {
		resp[i] = productResponse{
			ID:         p.ID,
			Name:       p.Name,
			Price:      float64(p.PriceCents) / 100,
			PriceCents: p.PriceCents,
			Image:      p.Image,
			Category:   p.Category,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
