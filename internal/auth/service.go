// Package auth はベアラートークンの発行・検証とアカウント認証を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/devicehub/internal/model"
	"github.com/hitoshi/devicehub/internal/repository"
	"github.com/hitoshi/devicehub/internal/security"
)

const (
	minPasswordLength = 8
	// bcryptは72バイトを超える入力を扱えない
	maxPasswordLength = 72
)

// TokenIssuer はアクセストークンを発行するインターフェース。
type TokenIssuer interface {
	Issue(userID string) (string, error)
}

// AccountService はサインアップ・ログインのビジネスロジックを提供する。
type AccountService struct {
	userRepo  repository.UserRepository
	issuer    TokenIssuer
	sanitizer security.TextSanitizer
	cost      int
	now       func() time.Time

	dummyOnce sync.Once
	dummyHash []byte
}

// NewAccountService はAccountServiceを生成する。
func NewAccountService(userRepo repository.UserRepository, issuer TokenIssuer) *AccountService {
	return &AccountService{
		userRepo:  userRepo,
		issuer:    issuer,
		sanitizer: security.NewTextSanitizer(),
		cost:      bcrypt.DefaultCost,
		now:       time.Now,
	}
}

// Register はユーザーを作成し、アクセストークンを発行する。
// 作成直後のサブスクリプションは plan=none / status=none。
func (s *AccountService) Register(ctx context.Context, name, email, password string) (*model.User, string, error) {
	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, "", model.NewInvalidAccountError("email")
	}
	if len(password) < minPasswordLength || len(password) > maxPasswordLength {
		return nil, "", model.NewInvalidAccountError("password")
	}

	// 名前は任意だが、マークアップしか含まない名前は受け付けない
	cleanName := s.sanitizer.Sanitize(name)
	if cleanName == "" && strings.TrimSpace(name) != "" {
		return nil, "", model.NewInvalidAccountError("name")
	}

	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, "", fmt.Errorf("failed to find user by email: %w", err)
	}
	if existing != nil {
		return nil, "", model.NewEmailTakenError()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now().UTC()
	user := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         cleanName,
		PasswordHash: string(hash),
		Subscription: model.NoSubscription(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		// 確認後に別リクエストが同じメールアドレスで作成した場合
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, "", model.NewEmailTakenError()
		}
		return nil, "", fmt.Errorf("failed to create user: %w", err)
	}

	token, err := s.issuer.Issue(user.ID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to issue token: %w", err)
	}

	slog.Info("user registered", slog.String("user_id", user.ID))
	return user, token, nil
}

// Login はメールアドレスとパスワードを検証し、アクセストークンを発行する。
// どちらが誤っているかは区別せず同じエラーを返す。
func (s *AccountService) Login(ctx context.Context, email, password string) (*model.User, string, error) {
	user, err := s.userRepo.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, "", fmt.Errorf("failed to find user by email: %w", err)
	}
	if user == nil {
		// 登録済みかどうかが応答時間から分からないよう、同じコストで照合を行う
		_ = bcrypt.CompareHashAndPassword(s.dummyPasswordHash(), []byte(password))
		return nil, "", model.NewInvalidCredentialsError()
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, "", model.NewInvalidCredentialsError()
	}

	token, err := s.issuer.Issue(user.ID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to issue token: %w", err)
	}

	slog.Info("user logged in", slog.String("user_id", user.ID))
	return user, token, nil
}

// CurrentUser はトークンから取り出したユーザーIDでユーザーを取得する。
func (s *AccountService) CurrentUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// dummyPasswordHash は存在しないユーザーとの照合に使うハッシュを返す。
func (s *AccountService) dummyPasswordHash() []byte {
	s.dummyOnce.Do(func() {
		hash, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), s.cost)
		if err != nil {
			slog.Error("failed to generate dummy password hash", slog.String("error", err.Error()))
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
