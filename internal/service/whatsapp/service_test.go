package whatsapp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mamadbah2/flockbook/internal/cache"
	"github.com/mamadbah2/flockbook/internal/config"
	"github.com/mamadbah2/flockbook/internal/domain/models"
	"github.com/mamadbah2/flockbook/internal/service/dailyentry"
	client "github.com/mamadbah2/flockbook/pkg/clients/whatsapp"
)

type fakeClient struct {
	mu   sync.Mutex
	sent []client.SendTextMessageRequest
	err  error
}

func (f *fakeClient) SendTextMessage(_ context.Context, req client.SendTextMessageRequest) (*client.SendTextMessageResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, req)
	if f.err != nil {
		return nil, f.err
	}
	return &client.SendTextMessageResponse{}, nil
}

type fakeDispatcher struct {
	reply  string
	err    error
	gotCmd []models.Command
	sender []string
}

func (f *fakeDispatcher) HandleCommand(_ context.Context, cmd models.Command, sender string) (string, error) {
	f.gotCmd = append(f.gotCmd, cmd)
	f.sender = append(f.sender, sender)
	return f.reply, f.err
}

func textPayload(from, id, body string) models.WebhookPayload {
	return models.WebhookPayload{
		Object: "whatsapp_business_account",
		Entry: []models.WebhookEntry{{
			Changes: []models.WebhookChange{{
				Field: "messages",
				Value: models.WebhookValue{Messages: []models.InboundMessage{{
					From: from,
					ID:   id,
					Type: "text",
					Text: &models.TextContent{Body: body},
				}}},
			}},
		}},
	}
}

func newService(t *testing.T, c client.Client, d *fakeDispatcher) *MetaWhatsAppService {
	t.Helper()
	cfg := config.WhatsAppConfig{VerifyToken: "verify-me", ManagerID: "237600000000"}
	return NewMetaWhatsAppService(cfg, c, d, zaptest.NewLogger(t))
}

func TestVerifyWebhookToken(t *testing.T) {
	svc := newService(t, &fakeClient{}, &fakeDispatcher{})

	challenge, err := svc.VerifyWebhookToken("subscribe", "verify-me", "42")
	require.NoError(t, err)
	assert.Equal(t, "42", challenge)

	_, err = svc.VerifyWebhookToken("subscribe", "wrong", "42")
	assert.Error(t, err)
	_, err = svc.VerifyWebhookToken("unsubscribe", "verify-me", "42")
	assert.Error(t, err)
	_, err = svc.VerifyWebhookToken("", "", "42")
	assert.Error(t, err)
}

func TestHandleWebhookRepliesToSender(t *testing.T) {
	wa := &fakeClient{}
	d := &fakeDispatcher{reply: "Water recorded for lot F1 on 2025-06-01: 80 L."}
	svc := newService(t, wa, d)

	require.NoError(t, svc.HandleWebhook(context.Background(), textPayload("237611111111", "wamid.1", "water F1 80")))

	require.Len(t, d.gotCmd, 1)
	assert.Equal(t, models.CommandWater, d.gotCmd[0].Type)
	assert.Equal(t, []string{"F1", "80"}, d.gotCmd[0].Args)
	assert.Equal(t, "whatsapp:237611111111", d.sender[0])

	require.Len(t, wa.sent, 1)
	assert.Equal(t, "237611111111", wa.sent[0].To)
	assert.Equal(t, "wamid.1", wa.sent[0].ReplyTo)
	assert.Equal(t, d.reply, wa.sent[0].Body)
}

func TestHandleWebhookDescribesCommandErrors(t *testing.T) {
	wa := &fakeClient{}
	d := &fakeDispatcher{err: &dailyentry.Error{
		Kind:    dailyentry.ErrValidationFailed,
		Field:   "count",
		Message: "mortality count 600 exceeds the 500 birds in lot F1",
	}}
	svc := newService(t, wa, d)

	require.NoError(t, svc.HandleWebhook(context.Background(), textPayload("237611111111", "wamid.2", "mortality F1 600")))

	require.Len(t, wa.sent, 1)
	assert.Contains(t, wa.sent[0].Body, "exceeds the 500 birds")
}

func TestHandleWebhookIgnoresNonText(t *testing.T) {
	wa := &fakeClient{}
	d := &fakeDispatcher{}
	svc := newService(t, wa, d)

	payload := textPayload("237611111111", "wamid.3", "")
	payload.Entry[0].Changes[0].Value.Messages[0].Text = nil
	payload.Entry[0].Changes[0].Value.Messages[0].Type = "image"

	require.NoError(t, svc.HandleWebhook(context.Background(), payload))
	assert.Empty(t, d.gotCmd)
	assert.Empty(t, wa.sent)
}

func TestHandleWebhookReadsButtonReplies(t *testing.T) {
	wa := &fakeClient{}
	d := &fakeDispatcher{reply: "ok"}
	svc := newService(t, wa, d)

	payload := textPayload("237611111111", "wamid.4", "")
	msg := &payload.Entry[0].Changes[0].Value.Messages[0]
	msg.Text = nil
	msg.Type = "interactive"
	msg.Interactive = &models.InteractiveContent{
		Type:        "button_reply",
		ButtonReply: &models.ReplyToken{ID: "status F1", Title: "Status"},
	}

	require.NoError(t, svc.HandleWebhook(context.Background(), payload))
	require.Len(t, d.gotCmd, 1)
	assert.Equal(t, models.CommandStatus, d.gotCmd[0].Type)
}

func TestHandleWebhookSurfacesSendFailure(t *testing.T) {
	wa := &fakeClient{err: errors.New("graph api down")}
	svc := newService(t, wa, &fakeDispatcher{reply: "ok"})

	err := svc.HandleWebhook(context.Background(), textPayload("237611111111", "wamid.5", "help"))
	assert.ErrorContains(t, err, "graph api down")
}

func TestNotifyUsesManager(t *testing.T) {
	wa := &fakeClient{}
	svc := newService(t, wa, &fakeDispatcher{})

	require.NoError(t, svc.Notify(context.Background(), "Missing entries today"))
	require.Len(t, wa.sent, 1)
	assert.Equal(t, "237600000000", wa.sent[0].To)

	noManager := NewMetaWhatsAppService(config.WhatsAppConfig{}, wa, &fakeDispatcher{}, nil)
	assert.Error(t, noManager.Notify(context.Background(), "x"))
}

func TestSendOutbound(t *testing.T) {
	wa := &fakeClient{}
	svc := newService(t, wa, &fakeDispatcher{})

	require.NoError(t, svc.SendOutbound(context.Background(), models.OutboundMessageRequest{To: "2376", Message: "hi", PreviewURL: true}))
	require.Len(t, wa.sent, 1)
	assert.True(t, wa.sent[0].PreviewURL)
	assert.Empty(t, wa.sent[0].ReplyTo)
}

func TestHandleWebhookSkipsRedeliveries(t *testing.T) {
	wa := &fakeClient{}
	d := &fakeDispatcher{reply: "ok"}
	svc := newService(t, wa, d).WithDeduplication(cache.New(time.Hour))

	payload := textPayload("237611111111", "wamid.6", "water F1 80")
	require.NoError(t, svc.HandleWebhook(context.Background(), payload))
	require.NoError(t, svc.HandleWebhook(context.Background(), payload))

	assert.Len(t, d.gotCmd, 1)
	assert.Len(t, wa.sent, 1)
}
