package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"tripdesk/internal/database"
	"tripdesk/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/fcm/v1"
	"google.golang.org/api/option"
)

type fakeSender struct {
	sent []tgbotapi.MessageConfig
	fail map[int64]bool
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	msg := c.(tgbotapi.MessageConfig)
	if f.fail[msg.ChatID] {
		return tgbotapi.Message{}, errors.New("chat not found")
	}
	f.sent = append(f.sent, msg)
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

type fakeUsers map[int64]*models.User

func (f fakeUsers) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	if u, ok := f[id]; ok {
		return u, nil
	}
	return nil, database.ErrNotFound
}

func testLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func capturedEvent(userID *int64) *models.PaymentEvent {
	return &models.PaymentEvent{
		Type:       "payment.captured",
		Kind:       models.KindHotel,
		PaymentID:  "chg_1",
		ProgressID: "BOOK-1",
		Amount:     "149.99",
		Currency:   "USD",
		UserID:     userID,
	}
}

func TestTelegramNotifier(t *testing.T) {
	sender := &fakeSender{fail: map[int64]bool{}}
	n := NewTelegramNotifier(sender, []int64{10, 20}, testLogger())
	task := &models.NotificationTask{TaskType: models.TaskNotifyCaptured}

	require.NoError(t, n.Notify(context.Background(), task, capturedEvent(nil)))
	require.Len(t, sender.sent, 2)
	assert.Equal(t, int64(10), sender.sent[0].ChatID)
	assert.Contains(t, sender.sent[0].Text, "Payment captured")
	assert.Contains(t, sender.sent[0].Text, "Booking: BOOK-1")
	assert.Contains(t, sender.sent[0].Text, "Amount: 149.99 USD")

	t.Run("PartialFailure", func(t *testing.T) {
		sender.fail[20] = true
		err := n.Notify(context.Background(), &models.NotificationTask{TaskType: models.TaskNotifyDegraded}, capturedEvent(nil))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "chat 20")
		assert.Contains(t, sender.sent[len(sender.sent)-1].Text, "Reconcile manually")
	})

	t.Run("NoChats", func(t *testing.T) {
		assert.NoError(t, NewTelegramNotifier(sender, nil, testLogger()).Notify(context.Background(), task, capturedEvent(nil)))
	})
}

func newTestPush(t *testing.T, users UserLookup, handler http.HandlerFunc) *PushNotifier {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/projects/demo/messages:send", handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	svc, err := fcm.NewService(context.Background(), option.WithEndpoint(srv.URL+"/"), option.WithoutAuthentication())
	require.NoError(t, err)
	return NewPushNotifierWithService(svc, "demo", users, testLogger())
}

func TestPushNotifier(t *testing.T) {
	userID := int64(7)
	users := fakeUsers{7: {ID: 7, Name: "Ada", FCMToken: "device-token"}, 8: {ID: 8}}

	var got fcm.SendMessageRequest
	calls := 0
	n := newTestPush(t, users, func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(fcm.Message{Name: "projects/demo/messages/1"})
	})

	task := &models.NotificationTask{TaskType: models.TaskNotifyCaptured}
	require.NoError(t, n.Notify(context.Background(), task, capturedEvent(&userID)))
	require.Equal(t, 1, calls)
	assert.Equal(t, "device-token", got.Message.Token)
	assert.Equal(t, "Payment received", got.Message.Notification.Title)
	assert.Equal(t, "chg_1", got.Message.Data["payment_id"])

	t.Run("SkipsWithoutTarget", func(t *testing.T) {
		noToken := int64(8)
		unknown := int64(99)
		require.NoError(t, n.Notify(context.Background(), task, capturedEvent(nil)))
		require.NoError(t, n.Notify(context.Background(), task, capturedEvent(&noToken)))
		require.NoError(t, n.Notify(context.Background(), task, capturedEvent(&unknown)))
		require.NoError(t, n.Notify(context.Background(), &models.NotificationTask{TaskType: models.TaskNotifyDegraded}, capturedEvent(&userID)))
		assert.Equal(t, 1, calls)
	})
}

func TestPushNotifierError(t *testing.T) {
	userID := int64(7)
	n := newTestPush(t, fakeUsers{7: {ID: 7, FCMToken: "stale"}}, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":404,"message":"Requested entity was not found.","status":"NOT_FOUND"}}`))
	})

	err := n.Notify(context.Background(), &models.NotificationTask{TaskType: models.TaskNotifyFailed}, capturedEvent(&userID))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fcm send")
}

type countingNotifier struct {
	calls int
	err   error
}

func (c *countingNotifier) Notify(context.Context, *models.NotificationTask, *models.PaymentEvent) error {
	c.calls++
	return c.err
}

func TestFanout(t *testing.T) {
	a := &countingNotifier{}
	b := &countingNotifier{err: errors.New("push down")}
	c := &countingNotifier{}

	err := Fanout{a, nil, b, c}.Notify(context.Background(), &models.NotificationTask{}, capturedEvent(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "push down")
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)
	assert.Equal(t, 1, c.calls)
}
