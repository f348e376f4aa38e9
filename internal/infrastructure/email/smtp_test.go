package email

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"github.com/skyguide-inc/skyguide/internal/domain/notice"
)

type captureSender struct {
	sent []*gomail.Message
	err  error
}

func (c *captureSender) DialAndSend(m ...*gomail.Message) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, m...)
	return nil
}

func newTestService(s sender) *SMTPEmailService {
	svc := NewSMTPEmailService(SMTPConfig{
		Host:        "localhost",
		Port:        1025,
		FromAddress: "noreply@skyguide.local",
		FromName:    "SkyGuide",
		BaseURL:     "https://app.skyguide.test",
	})
	svc.sender = s
	return svc
}

func TestSMTPEmailService_NotifySecurityKinds(t *testing.T) {
	capture := &captureSender{}
	svc := newTestService(capture)
	at := time.Date(2025, 5, 6, 7, 8, 0, 0, time.UTC)

	err := svc.Notify(context.Background(),
		notice.Target{ClientID: "c1", Email: "ada@example.com"},
		notice.New(notice.KindNewSignIn, "", at))
	require.NoError(t, err)
	require.Len(t, capture.sent, 1)

	msg := capture.sent[0]
	assert.Equal(t, []string{"ada@example.com"}, msg.GetHeader("To"))
	assert.Equal(t, []string{"New sign-in to your SkyGuide account"}, msg.GetHeader("Subject"))

	var buf bytes.Buffer
	_, err = msg.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "2025-05-06 07:08 UTC")
}

func TestSMTPEmailService_SkipsOtherKindsAndMissingAddress(t *testing.T) {
	capture := &captureSender{}
	svc := newTestService(capture)
	ctx := context.Background()

	require.NoError(t, svc.Notify(ctx, notice.Target{Email: "ada@example.com"}, notice.New(notice.KindSessionExpired, "/login", time.Now())))
	require.NoError(t, svc.Notify(ctx, notice.Target{ClientID: "c1"}, notice.New(notice.KindNewSignIn, "", time.Now())))
	assert.Empty(t, capture.sent)
}

func TestSMTPEmailService_SendFailure(t *testing.T) {
	svc := newTestService(&captureSender{err: errors.New("connection refused")})
	err := svc.SendNoticeEmail("ada@example.com", notice.New(notice.KindSessionInvalidated, "/login", time.Now()))
	assert.Error(t, err)
}
