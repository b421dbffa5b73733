package domain

import (
	"context"
	"time"

	"tripdesk/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type CatalogRepository interface {
	GetProduct(ctx context.Context, kind models.ProductKind, id int64) (*models.Product, error)
	ListVisibleProducts(ctx context.Context, kind models.ProductKind, highlightedOnly bool) ([]models.Product, error)
	GetPackage(ctx context.Context, id int64) (*models.Package, error)
	ListPackages(ctx context.Context, productID int64) ([]models.Package, error)
	ListProductPrices(ctx context.Context, productID int64) ([]models.Price, error)
	ListProductImages(ctx context.Context, productID int64) ([]models.ProductImage, error)
	FindCommissions(ctx context.Context, salesPartnerID int64, serviceType string, serviceID int64) (exact, generic *models.Commission, err error)
}

type ReservationRepository interface {
	CreateReservationIfAbsent(ctx context.Context, kind models.ProductKind, draft *models.ReservationDraft) (*models.Reservation, bool, error)
	GetReservationByPaymentID(ctx context.Context, kind models.ProductKind, paymentID string) (*models.Reservation, error)
	GetReservationByProgressID(ctx context.Context, kind models.ProductKind, progressID string) (*models.Reservation, error)
	TransitionReservation(ctx context.Context, kind models.ProductKind, paymentID string, from, to models.ReservationStatus) (bool, error)
	ListReservations(ctx context.Context, kind models.ProductKind, from, to time.Time) ([]models.ReservationReportRow, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetActiveDiscountCode(ctx context.Context, code string) (*models.DiscountCode, error)
}

type OutboxRepository interface {
	CreateNotificationTask(ctx context.Context, task *models.NotificationTask) error
	GetNotificationTask(ctx context.Context, id int64) (*models.NotificationTask, error)
	GetPendingNotificationTasks(ctx context.Context, limit int) ([]models.NotificationTask, error)
	UpdateNotificationTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
}

// Repository is the full storage surface implemented by *database.DB.
type Repository interface {
	CatalogRepository
	ReservationRepository
	OutboxRepository
}

type PaymentGateway interface {
	CreateCharge(ctx context.Context, req models.ChargeRequest) (*models.Charge, error)
	GetCharge(ctx context.Context, chargeID string) (*models.Charge, error)
	CreateRefund(ctx context.Context, req models.RefundRequest) (*models.Refund, error)
	GetRefund(ctx context.Context, refundID string) (*models.Refund, error)
	VerifyWebhookSignature(payload []byte, signature string) bool
}

// SignatureVerifier checks an inbound webhook body against its signature header.
type SignatureVerifier interface {
	Verify(payload []byte, signature string) bool
}

// CacheStore is a byte-oriented key/value store with expiry.
// Get returns found=false without error on a miss.
type CacheStore interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Del(ctx context.Context, key string) error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// Notifier delivers one outbox task to its audience.
type Notifier interface {
	Notify(ctx context.Context, task *models.NotificationTask, event *models.PaymentEvent) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// OutboxEnqueuer schedules a notification for asynchronous delivery.
type OutboxEnqueuer interface {
	EnqueueTask(ctx context.Context, taskType string, event *models.PaymentEvent) error
}
