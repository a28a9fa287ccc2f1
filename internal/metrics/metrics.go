// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// デバイス登録結果のラベル値
const (
	RegistrationCreated       = "created"
	RegistrationQuotaExceeded = "quota_exceeded"
	RegistrationConflict      = "conflict"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層、ミドルウェア、ワーカーから利用する。
type MetricsCollector interface {
	RecordDeviceRegistration(result string)
	RecordDeviceCommand(success bool)
	RecordNotification(success bool)
	RecordWebhookOutcome(outcome string)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
	RecordWebhookEventsPruned(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	registrations  *prometheus.CounterVec
	commands       *prometheus.CounterVec
	notifications  *prometheus.CounterVec
	webhookOutcome *prometheus.CounterVec
	httpStatus     *prometheus.CounterVec
	requestLatency prometheus.Histogram
	eventsPruned   prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "devicehub_device_registrations_total",
			Help: "デバイス登録の結果別件数",
		}, []string{"result"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "devicehub_device_commands_total",
			Help: "デバイス制御コマンドの結果別件数",
		}, []string{"result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "devicehub_notifications_total",
			Help: "デバイス通知の発行結果別件数",
		}, []string{"result"}),
		webhookOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "devicehub_webhook_events_total",
			Help: "Webhookイベントの処理結果別件数",
		}, []string{"outcome"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "devicehub_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "devicehub_request_latency_seconds",
			Help:    "HTTPリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		eventsPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "devicehub_webhook_events_pruned_total",
			Help: "保持期間を過ぎて削除された処理済みWebhookイベント数",
		}),
	}

	reg.MustRegister(
		c.registrations,
		c.commands,
		c.notifications,
		c.webhookOutcome,
		c.httpStatus,
		c.requestLatency,
		c.eventsPruned,
	)

	return c
}

// RecordDeviceRegistration はデバイス登録の結果を記録する。
func (c *Collector) RecordDeviceRegistration(result string) {
	c.registrations.WithLabelValues(result).Inc()
}

// RecordDeviceCommand は制御コマンドの結果を記録する。
func (c *Collector) RecordDeviceCommand(success bool) {
	c.commands.WithLabelValues(resultLabel(success)).Inc()
}

// RecordNotification は通知発行の結果を記録する。
func (c *Collector) RecordNotification(success bool) {
	c.notifications.WithLabelValues(resultLabel(success)).Inc()
}

// RecordWebhookOutcome はWebhookイベントの処理結果を記録する。
func (c *Collector) RecordWebhookOutcome(outcome string) {
	c.webhookOutcome.WithLabelValues(outcome).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエストのレイテンシを記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordWebhookEventsPruned は台帳から削除したイベント数を記録する。
func (c *Collector) RecordWebhookEventsPruned(count int64) {
	c.eventsPruned.Add(float64(count))
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// NopCollector は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type NopCollector struct{}

func (NopCollector) RecordDeviceRegistration(string) {}
func (NopCollector) RecordDeviceCommand(bool) {}
func (NopCollector) RecordNotification(bool) {}
func (NopCollector) RecordWebhookOutcome(string) {}
func (NopCollector) RecordHTTPStatus(int) {}
func (NopCollector) RecordRequestLatency(time.Duration) {}
func (NopCollector) RecordWebhookEventsPruned(int64) {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = NopCollector{}
)

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
