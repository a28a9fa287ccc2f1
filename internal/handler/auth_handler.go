// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/devicehub/internal/model"
)

// AccountServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AccountServiceInterface interface {
	Register(ctx context.Context, name, email, password string) (*model.User, string, error)
	Login(ctx context.Context, email, password string) (*model.User, string, error)
	CurrentUser(ctx context.Context, userID string) (*model.User, error)
}

// AuthHandler はサインアップ・ログイン関連のHTTPハンドラー。
type AuthHandler struct {
	service AccountServiceInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AccountServiceInterface) *AuthHandler {
	return &AuthHandler{service: service}
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// subscriptionBody はユーザーレスポンスに含めるサブスクリプション状態。
// 課金プロバイダーの参照IDはクライアントに返さない。
type subscriptionBody struct {
	Plan   string `json:"plan"`
	Status string `json:"status"`
}

// userResponse はユーザー情報のAPIレスポンス。
type userResponse struct {
	ID           string           `json:"id"`
	Email        string           `json:"email"`
	Name         string           `json:"name"`
	Subscription subscriptionBody `json:"subscription"`
	CreatedAt    time.Time        `json:"createdAt"`
}

type tokenResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

// Register はアカウント作成を処理する。
// POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, token, err := h.service.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, tokenResponse{Token: token, User: toUserResponse(user)})
}

// Login はログインを処理する。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, token, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{Token: token, User: toUserResponse(user)})
}

// Me は認証済みユーザーの情報を返す。
// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	user, err := h.service.CurrentUser(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(user))
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:    u.ID,
		Email: u.Email,
		Name:  u.Name,
		Subscription: subscriptionBody{
			Plan:   string(u.Subscription.Plan),
			Status: string(u.Subscription.Status),
		},
		CreatedAt: u.CreatedAt,
	}
}
