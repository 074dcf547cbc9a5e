package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/BradenHooton/bastion/pkg/logger"
)

// AWSSESNotifier sends security notifications using AWS SES
type AWSSESNotifier struct {
	sesClient   *ses.Client
	fromAddress string
	baseURL     string
	logger      *slog.Logger
}

// NewAWSSESNotifier creates a new AWS SES security notifier
func NewAWSSESNotifier(region, fromAddress, baseURL string, log *slog.Logger) (*AWSSESNotifier, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESNotifier{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		baseURL:     baseURL,
		logger:      log,
	}, nil
}

// SendLockoutAlert notifies an account owner that repeated failed sign-in
// attempts locked their account
func (s *AWSSESNotifier) SendLockoutAlert(ctx context.Context, email string, lockedUntil time.Time) error {
	until := lockedUntil.UTC().Format(time.RFC1123)

	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #f8f9fa; padding: 20px; text-align: center; border-radius: 4px; }
        .content { padding: 20px 0; }
        .footer { color: #666; font-size: 12px; margin-top: 20px; padding-top: 20px; border-top: 1px solid #eee; }
        .warning { background-color: #fff3cd; padding: 10px; border-left: 4px solid #ffc107; margin: 10px 0; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Account Temporarily Locked</h1>
        </div>
        <div class="content">
            <p>Your account was locked after several failed sign-in attempts.</p>
            <div class="warning">
                <strong>⚠️ Security Notice:</strong> Sign-in is blocked until %s.
            </div>
            <p><strong>Was this you?</strong><br>
            If you simply mistyped your password, wait for the lock to expire and try again.</p>
            <p><strong>Don't recognize these attempts?</strong><br>
            Someone may be trying to guess your password. We recommend changing it once the lock
            expires and enabling two-factor authentication if you have not already.</p>
        </div>
        <div class="footer">
            <p>This is an automated message. Please do not reply to this email.</p>
            <p>If you have any questions, please contact our support team.</p>
        </div>
    </div>
</body>
</html>
`, until)

	textBody := fmt.Sprintf(`Account Temporarily Locked

Your account was locked after several failed sign-in attempts.

⚠️  Security Notice: Sign-in is blocked until %s.

Was this you?
If you simply mistyped your password, wait for the lock to expire and try again.

Don't recognize these attempts?
Someone may be trying to guess your password. We recommend changing it once the
lock expires and enabling two-factor authentication if you have not already.

This is an automated message. Please do not reply to this email.
If you have any questions, please contact our support team.
`, until)

	return s.send(ctx, email, "Your account has been temporarily locked", htmlBody, textBody)
}

// SendUnlockRequestNotice acknowledges a self-service unlock request
func (s *AWSSESNotifier) SendUnlockRequestNotice(ctx context.Context, email string) error {
	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #f8f9fa; padding: 20px; text-align: center; border-radius: 4px; }
        .content { padding: 20px 0; }
        .footer { color: #666; font-size: 12px; margin-top: 20px; padding-top: 20px; border-top: 1px solid #eee; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Unlock Request Received</h1>
        </div>
        <div class="content">
            <p>We received a request to unlock your account.</p>
            <p>Our team has been notified and will review the request. Account locks also expire
            on their own, so you may be able to sign in again shortly at <a href="%s">%s</a>.</p>
            <p><strong>Didn't request this?</strong><br>
            You can ignore this email. No changes have been made to your account.</p>
        </div>
        <div class="footer">
            <p>This is an automated message. Please do not reply to this email.</p>
            <p>If you have any questions, please contact our support team.</p>
        </div>
    </div>
</body>
</html>
`, s.baseURL, s.baseURL)

	textBody := fmt.Sprintf(`Unlock Request Received

We received a request to unlock your account.

Our team has been notified and will review the request. Account locks also
expire on their own, so you may be able to sign in again shortly at %s.

Didn't request this?
You can ignore this email. No changes have been made to your account.

This is an automated message. Please do not reply to this email.
If you have any questions, please contact our support team.
`, s.baseURL)

	return s.send(ctx, email, "We received your unlock request", htmlBody, textBody)
}

func (s *AWSSESNotifier) send(ctx context.Context, email, subject, htmlBody, textBody string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data: aws.String(htmlBody),
				},
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send security email via SES",
			slog.String("email", logger.SanitizedEmail(email)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("security email sent",
		slog.String("email", logger.SanitizedEmail(email)),
		slog.String("message_id", *result.MessageId))

	return nil
}
