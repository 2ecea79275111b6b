package notifier

import (
	"context"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/Alfahan/sso-sub000/internal/core/port"
	"github.com/Alfahan/sso-sub000/internal/infra/config"
	"github.com/Alfahan/sso-sub000/internal/infra/logger"
)

// Service delivers OTP codes and reset links over SMTP and SMS.
type Service struct {
	mailer  *mail.Client
	sms     *twilio.RestClient
	from    string
	smsFrom string
	logger  *zap.Logger
}

// New constructs a notifier from the delivery channel settings. Either channel
// may be left unconfigured; sends on a missing channel are logged and dropped.
func New(cfg config.NotifierSettings, log *zap.Logger) (*Service, error) {
	if log == nil {
		log = zap.NewNop()
	}

	svc := &Service{
		from:    cfg.SMTP.From,
		smsFrom: cfg.Twilio.From,
		logger:  log,
	}

	if cfg.SMTP.Host != "" {
		client, err := mail.NewClient(cfg.SMTP.Host,
			mail.WithPort(cfg.SMTP.Port),
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.SMTP.Username),
			mail.WithPassword(cfg.SMTP.Password),
			mail.WithTLSPolicy(mail.TLSOpportunistic),
		)
		if err != nil {
			return nil, fmt.Errorf("init smtp client: %w", err)
		}
		svc.mailer = client
	}

	if cfg.Twilio.AccountSID != "" {
		svc.sms = twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: cfg.Twilio.AccountSID,
			Password: cfg.Twilio.AuthToken,
		})
	}

	return svc, nil
}

// SendOTPByEmail delivers a one-time password to the given address.
func (s *Service) SendOTPByEmail(ctx context.Context, address, code string) error {
	subject := "Your verification code"
	body := fmt.Sprintf("Your one-time verification code is %s. It expires shortly; do not share it.", code)
	return s.sendMail(ctx, address, subject, body)
}

// SendOTPByMessage delivers a one-time password over SMS.
func (s *Service) SendOTPByMessage(_ context.Context, phone, code string) error {
	if s.sms == nil || s.smsFrom == "" {
		s.logger.Warn("sms channel not configured, dropping otp",
			zap.String("phone", logger.MaskPhone(phone)))
		return nil
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(phone)
	params.SetFrom(s.smsFrom)
	params.SetBody(fmt.Sprintf("Your verification code is %s", code))

	if _, err := s.sms.Api.CreateMessage(params); err != nil {
		return fmt.Errorf("send sms: %w", err)
	}

	s.logger.Info("otp sms sent", zap.String("phone", logger.MaskPhone(phone)))
	return nil
}

// SendResetLink delivers a password reset token to the given address.
func (s *Service) SendResetLink(ctx context.Context, address, token string) error {
	subject := "Password reset request"
	body := fmt.Sprintf("A password reset was requested for your account. Use this token to continue: %s\n\nIf you did not request a reset, ignore this message.", token)
	return s.sendMail(ctx, address, subject, body)
}

func (s *Service) sendMail(ctx context.Context, address, subject, body string) error {
	if s.mailer == nil {
		s.logger.Warn("smtp channel not configured, dropping mail",
			zap.String("email", logger.MaskEmail(address)))
		return nil
	}

	msg := mail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return fmt.Errorf("set mail sender: %w", err)
	}
	if err := msg.To(address); err != nil {
		return fmt.Errorf("set mail recipient: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	if err := s.mailer.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}

	s.logger.Info("mail sent",
		zap.String("email", logger.MaskEmail(address)),
		zap.String("subject", subject),
	)
	return nil
}

var _ port.Notifier = (*Service)(nil)
