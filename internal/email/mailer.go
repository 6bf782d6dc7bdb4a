package email

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/establishment-api/internal/config"
)

type sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// Mailer sends transactional mail over SMTP.
type Mailer struct {
	from   string
	dialer sender
}

func NewMailer(cfg config.SMTPConfig) *Mailer {
	return &Mailer{
		from:   cfg.From,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

var invitationTemplate = template.Must(template.New("invitation").Parse(`<p>Bonjour,</p>
<p>Vous avez été invité à revendiquer l'établissement <strong>{{.Name}}</strong> sur le portail santé.</p>
<p><a href="{{.Link}}">Revendiquer l'établissement</a></p>
<p>Ce lien est à usage unique et expire le {{.ExpiresAt}}.</p>
`))

func (m *Mailer) SendInvitation(to, establishmentName, link string, expiresAt time.Time) error {
	var body bytes.Buffer
	err := invitationTemplate.Execute(&body, struct {
		Name      string
		Link      string
		ExpiresAt string
	}{establishmentName, link, expiresAt.Format("02/01/2006 15:04")})
	if err != nil {
		return fmt.Errorf("failed to render invitation: %w", err)
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", fmt.Sprintf("Invitation: %s", establishmentName))
	msg.SetBody("text/html", body.String())
	msg.AddAlternative("text/plain", fmt.Sprintf("Revendiquez %s: %s", establishmentName, link))

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send invitation email: %w", err)
	}
	return nil
}
