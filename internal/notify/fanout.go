package notify

import (
	"context"
	"errors"

	"tripdesk/internal/domain"
	"tripdesk/internal/models"
)

// Fanout delivers a task to every notifier and joins their errors.
type Fanout []domain.Notifier

func (f Fanout) Notify(ctx context.Context, task *models.NotificationTask, event *models.PaymentEvent) error {
	var errs []error
	for _, n := range f {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, task, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
