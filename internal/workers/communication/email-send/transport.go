// internal/workers/communication/email-send/transport.go
package emailsend

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
	"gopkg.in/gomail.v2"

	"notification-relay/internal/common/aws"
)

// ==========================
// Gmail API
// ==========================

// gmailTransport sends through users.messages.send as the delegated mailbox.
type gmailTransport struct {
	cfg        GmailConfig
	httpClient *http.Client

	mu  sync.Mutex
	svc *gmail.Service
}

func newGmailTransport(cfg GmailConfig, httpClient *http.Client) *gmailTransport {
	return &gmailTransport{cfg: cfg, httpClient: httpClient}
}

func (t *gmailTransport) Name() string { return ProviderGmail }

// service builds the API client on first use and keeps it once construction succeeds.
func (t *gmailTransport) service() (*gmail.Service, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.svc != nil {
		return t.svc, nil
	}

	conf, err := google.JWTConfigFromJSON([]byte(t.cfg.Credentials), gmail.GmailSendScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account credentials: %w", err)
	}
	conf.Subject = t.cfg.DelegatedUser

	// Token refreshes outlive any single send, so they get their own context.
	ctx := context.Background()
	if t.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, t.httpClient)
	}

	opts := []option.ClientOption{option.WithHTTPClient(conf.Client(ctx))}
	if t.cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(t.cfg.Endpoint))
	}

	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	t.svc = svc
	return svc, nil
}

func (t *gmailTransport) Send(ctx context.Context, msg *Message, raw []byte) (string, error) {
	svc, err := t.service()
	if err != nil {
		return "", err
	}

	sent, err := svc.Users.Messages.Send("me", &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString(raw),
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("gmail send: %w", err)
	}
	return sent.Id, nil
}

// ==========================
// Amazon SES
// ==========================

type sesTransport struct {
	client *aws.SESClient
}

func (t *sesTransport) Name() string { return ProviderSES }

func (t *sesTransport) Send(ctx context.Context, msg *Message, raw []byte) (string, error) {
	id, err := t.client.SendRaw(ctx, msg.From, []string{msg.To}, raw)
	if err != nil {
		return "", fmt.Errorf("ses send: %w", err)
	}
	return id, nil
}

// ==========================
// SMTP
// ==========================

type smtpTransport struct {
	dialer *gomail.Dialer
}

func newSMTPTransport(cfg SMTPConfig) *smtpTransport {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	if cfg.InsecureSkipVerify {
		d.TLSConfig = &tls.Config{ServerName: cfg.Host, InsecureSkipVerify: true}
	}
	return &smtpTransport{dialer: d}
}

func (t *smtpTransport) Name() string { return ProviderSMTP }

// Send delivers the prebuilt MIME bytes and returns the Message-ID header,
// since SMTP servers do not hand back an id of their own.
func (t *smtpTransport) Send(ctx context.Context, msg *Message, raw []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context cancelled before sending email: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		sc, err := t.dialer.Dial()
		if err != nil {
			done <- fmt.Errorf("failed to connect to SMTP server: %w", err)
			return
		}
		defer sc.Close()
		if err := sc.Send(msg.From, []string{msg.To}, bytes.NewReader(raw)); err != nil {
			done <- fmt.Errorf("smtp send: %w", err)
			return
		}
		done <- nil
	}()

	select {
	case err := <-done:
		if err != nil {
			return "", err
		}
		return msg.MessageID, nil
	case <-ctx.Done():
		return "", fmt.Errorf("smtp send: %w", ctx.Err())
	}
}
