package email

import (
	"context"
	"fmt"
	"html"

	"gopkg.in/gomail.v2"

	"github.com/skyguide-inc/skyguide/internal/domain/notice"
)

type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	FromAddress string
	FromName    string
	// BaseURL prefixes links in mail bodies, e.g. "https://app.skyguide.example".
	BaseURL string
}

type sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPEmailService mails security notices to the account owner.
type SMTPEmailService struct {
	config SMTPConfig
	sender sender
	kinds  map[notice.Kind]bool
}

func NewSMTPEmailService(config SMTPConfig) *SMTPEmailService {
	return &SMTPEmailService{
		config: config,
		sender: gomail.NewDialer(config.Host, config.Port, config.Username, config.Password),
		kinds: map[notice.Kind]bool{
			notice.KindNewSignIn:          true,
			notice.KindSessionInvalidated: true,
		},
	}
}

// Notify implements notice.Notifier. Kinds that are not security relevant
// and targets without an address are skipped silently.
func (s *SMTPEmailService) Notify(_ context.Context, target notice.Target, n notice.Notice) error {
	if !s.kinds[n.Kind] || target.Email == "" {
		return nil
	}
	return s.SendNoticeEmail(target.Email, n)
}

func (s *SMTPEmailService) SendNoticeEmail(to string, n notice.Notice) error {
	subject := "Security notice for your SkyGuide account"
	if n.Kind == notice.KindNewSignIn {
		subject = "New sign-in to your SkyGuide account"
	}

	loginURL := s.config.BaseURL + "/login"
	when := n.At.UTC().Format("2006-01-02 15:04 UTC")

	htmlBody := fmt.Sprintf(`
		<html>
		<body>
			<h2>%s</h2>
			<p>%s</p>
			<p>Time: %s</p>
			<p>If this was not you, <a href="%s">sign in</a> and change your password.</p>
		</body>
		</html>
	`, html.EscapeString(subject), html.EscapeString(n.Message), when, html.EscapeString(loginURL))

	plainBody := fmt.Sprintf(`
%s

%s

Time: %s

If this was not you, sign in at %s and change your password.
	`, subject, n.Message, when, loginURL)

	return s.sendEmail(to, subject, htmlBody, plainBody)
}

func (s *SMTPEmailService) sendEmail(to, subject, htmlBody, plainBody string) error {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.config.FromAddress, s.config.FromName)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", plainBody)
	m.AddAlternative("text/html", htmlBody)

	if err := s.sender.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}
