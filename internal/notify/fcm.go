package notify

import (
	"context"
	"errors"
	"fmt"
	"os"

	"tripdesk/internal/config"
	"tripdesk/internal/database"
	"tripdesk/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/fcm/v1"
	"google.golang.org/api/option"
)

// UserLookup resolves the push token of a reservation owner.
type UserLookup interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

// PushNotifier sends customer-facing pushes through FCM HTTP v1.
type PushNotifier struct {
	svc     *fcm.Service
	project string
	users   UserLookup
	logger  *zerolog.Logger
}

// NewPushNotifier reads service account credentials and builds a client whose
// access token is cached by this instance until expiry.
func NewPushNotifier(ctx context.Context, cfg config.FCMConfig, users UserLookup, logger *zerolog.Logger) (*PushNotifier, error) {
	raw, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, raw, fcm.CloudPlatformScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}
	project := cfg.ProjectID
	if project == "" {
		project = creds.ProjectID
	}

	ts := oauth2.ReuseTokenSource(nil, creds.TokenSource)
	svc, err := fcm.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("unable to create FCM service: %w", err)
	}
	return NewPushNotifierWithService(svc, project, users, logger), nil
}

func NewPushNotifierWithService(svc *fcm.Service, project string, users UserLookup, logger *zerolog.Logger) *PushNotifier {
	return &PushNotifier{svc: svc, project: project, users: users, logger: logger}
}

func (n *PushNotifier) Notify(ctx context.Context, task *models.NotificationTask, event *models.PaymentEvent) error {
	title, body, ok := customerText(task.TaskType, event)
	if !ok || event.UserID == nil {
		return nil
	}

	user, err := n.users.GetUserByID(ctx, *event.UserID)
	if errors.Is(err, database.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load push target: %w", err)
	}
	if user.FCMToken == "" {
		return nil
	}

	req := &fcm.SendMessageRequest{
		Message: &fcm.Message{
			Token:        user.FCMToken,
			Notification: &fcm.Notification{Title: title, Body: body},
			Data: map[string]string{
				"type":        task.TaskType,
				"kind":        string(event.Kind),
				"payment_id":  event.PaymentID,
				"progress_id": event.ProgressID,
			},
		},
	}
	if _, err := n.svc.Projects.Messages.Send("projects/"+n.project, req).Context(ctx).Do(); err != nil {
		n.logger.Warn().Err(err).Int64("user_id", user.ID).Str("payment_id", event.PaymentID).Msg("fcm send failed")
		return fmt.Errorf("fcm send: %w", err)
	}
	return nil
}

func customerText(taskType string, e *models.PaymentEvent) (title, body string, ok bool) {
	switch taskType {
	case models.TaskNotifyCaptured:
		return "Payment received", fmt.Sprintf("Your %s booking %s is confirmed.", kindLabel(e.Kind), e.ProgressID), true
	case models.TaskNotifyFailed:
		return "Payment failed", fmt.Sprintf("We could not charge your card for booking %s.", e.ProgressID), true
	case models.TaskNotifyRefunded:
		return "Refund issued", fmt.Sprintf("Booking %s has been refunded.", e.ProgressID), true
	}
	return "", "", false
}

func kindLabel(k models.ProductKind) string {
	if k == models.KindCarRental {
		return "car rental"
	}
	return string(k)
}
