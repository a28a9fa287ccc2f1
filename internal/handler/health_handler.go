package handler

import (
	"context"
	"log/slog"
	"net/http"
)

// Pinger はデータストアの疎通確認インターフェース。*sql.DB が満たす。
type Pinger interface {
	PingContext(ctx context.Context) error
}

type healthResponse struct {
	Status string `json:"status"`
}

// NewHealthHandler はデータストアへの疎通を確認するヘルスチェックハンドラーを返す。
// GET /health
func NewHealthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				slog.Warn("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
	}
}
