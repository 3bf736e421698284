package email

import (
	"context"
	"fmt"

	"github.com/peppermint/listing-service/internal/app/config"
	"github.com/peppermint/listing-service/internal/domain/entity"
	"github.com/peppermint/listing-service/internal/platform/logger"
	"gopkg.in/gomail.v2"
)

// AddressResolver maps a user id to an email address. Backed by the identity
// provider, which is an external collaborator of this service.
type AddressResolver interface {
	EmailFor(ctx context.Context, userID string) (string, error)
}

// Channel delivers notifications over SMTP. Best-effort: a failure here is
// retried by the dispatcher and never fails the triggering operation.
type Channel struct {
	cfg      config.SMTPConfig
	resolver AddressResolver
	log      logger.Logger
}

func NewChannel(cfg config.SMTPConfig, resolver AddressResolver, log logger.Logger) *Channel {
	return &Channel{cfg: cfg, resolver: resolver, log: log}
}

func (c *Channel) Name() string {
	return "smtp"
}

func (c *Channel) Deliver(ctx context.Context, notification *entity.Notification) error {
	if c.cfg.Host == "" || c.cfg.SenderEmail == "" {
		return fmt.Errorf("SMTP configuration is incomplete")
	}

	to, err := c.resolver.EmailFor(ctx, notification.UserID)
	if err != nil {
		return fmt.Errorf("failed to resolve email for user %s: %w", notification.UserID, err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", c.cfg.SenderEmail)
	m.SetHeader("To", to)
	m.SetHeader("Subject", notification.Title)
	m.SetBody("text/plain", notification.Body)

	d := gomail.NewDialer(c.cfg.Host, c.cfg.Port, c.cfg.Username, c.cfg.Password)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send notification %s by email: %w", notification.ID, err)
	}

	c.log.Debugf("notification %s emailed to user %s", notification.ID, notification.UserID)
	return nil
}
