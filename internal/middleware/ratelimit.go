package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/devicehub/internal/model"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralRate     rate.Limit    // API全般のレート（req/sec）
	GeneralBurst    int           // API全般のバーストサイズ
	DeviceRegRate   rate.Limit    // デバイス登録のレート（req/sec）
	DeviceRegBurst  int           // デバイス登録のバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// API全般 120 req/min/user、デバイス登録 10 req/min/user。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return PerMinuteRateLimiterConfig(120, 10)
}

// PerMinuteRateLimiterConfig は1分あたりのリクエスト数からレート制限設定を生成する。
// バーストサイズは1分あたりの上限と同じにする。
func PerMinuteRateLimiterConfig(generalPerMin, deviceRegPerMin int) RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(float64(generalPerMin) / 60.0),
		GeneralBurst:    generalPerMin,
		DeviceRegRate:   rate.Limit(float64(deviceRegPerMin) / 60.0),
		DeviceRegBurst:  deviceRegPerMin,
		CleanupInterval: 5 * time.Minute,
	}
}

// userLimiter はユーザーごとのレートリミッターとアクセス時刻を保持する。
type userLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// limiterSet は1種類の制限についてユーザーごとのリミッターを管理する。
type limiterSet struct {
	name  string
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*userLimiter
}

func newLimiterSet(name string, limit rate.Limit, burst int) *limiterSet {
	return &limiterSet{
		name:     name,
		limit:    limit,
		burst:    burst,
		limiters: make(map[string]*userLimiter),
	}
}

// get はユーザーのリミッターを取得し、なければ作成する。
func (s *limiterSet) get(userID string, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	ul, ok := s.limiters[userID]
	if !ok {
		ul = &userLimiter{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.limiters[userID] = ul
	}
	ul.lastAccess = now
	return ul.limiter
}

func (s *limiterSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

// evictIdle は最終アクセスからttlを超えたエントリを削除する。
func (s *limiterSet) evictIdle(now time.Time, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for userID, ul := range s.limiters {
		if now.Sub(ul.lastAccess) > ttl {
			delete(s.limiters, userID)
		}
	}
}

// middleware はこの制限を適用するミドルウェアを返す。
// 認証ミドルウェアの後に配置する。
func (s *limiterSet) middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := UserIDFromContext(r.Context())
			if err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewTokenMissingError())
				return
			}

			if !s.get(userID, time.Now()).Allow() {
				writeRateLimitResponse(w, s.limit)
				slog.Warn("rate limit exceeded",
					slog.String("user_id", userID),
					slog.String("limit_type", s.name),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimiter はユーザーごとのレート制限を管理する。
// API全般の制限とデバイス登録の制限を独立に持つ。
type RateLimiter struct {
	config    RateLimiterConfig
	general   *limiterSet
	deviceReg *limiterSet
	stopOnce  sync.Once
	stopCh    chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config:    config,
		general:   newLimiterSet("general", config.GeneralRate, config.GeneralBurst),
		deviceReg: newLimiterSet("device_registration", config.DeviceRegRate, config.DeviceRegBurst),
		stopCh:    make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。複数回呼んでもよい。
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// GeneralMiddleware はAPI全般のレート制限ミドルウェアを返す。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return rl.general.middleware()
}

// DeviceRegistrationMiddleware はデバイス登録専用のレート制限ミドルウェアを返す。
func (rl *RateLimiter) DeviceRegistrationMiddleware() func(next http.Handler) http.Handler {
	return rl.deviceReg.middleware()
}

// GeneralLimiterCount は現在管理されているAPI全般リミッターのエントリ数を返す。
func (rl *RateLimiter) GeneralLimiterCount() int {
	return rl.general.len()
}

// DeviceRegLimiterCount は現在管理されているデバイス登録リミッターのエントリ数を返す。
func (rl *RateLimiter) DeviceRegLimiterCount() int {
	return rl.deviceReg.len()
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup(now time.Time) {
	ttl := rl.config.CleanupInterval * 2
	rl.general.evictIdle(now, ttl)
	rl.deviceReg.evictIdle(now, ttl)
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが1つ補充されるまでの秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	retryAfterSec := 1
	if r > 0 {
		retryAfterSec = max(int(math.Ceil(1.0/float64(r))), 1)
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	WriteErrorResponse(w, http.StatusTooManyRequests, model.NewRateLimitedError())
}
