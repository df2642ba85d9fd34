package authservice

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"
)

// CodeMessage is a one-time code ready to be delivered.
type CodeMessage struct {
	To   string
	Slot CodeSlot
	Code string
}

// Subject returns the email subject for the message's slot.
func (m CodeMessage) Subject() string {
	if m.Slot == SlotForgotPassword {
		return "Forgot Your Password – Verification Code Inside"
	}
	return "Verification Code Request"
}

// Body renders the message as plain text.
func (m CodeMessage) Body() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", m.To)
	if m.Slot == SlotForgotPassword {
		b.WriteString("We received a request to reset your password. Use the verification code below to proceed:\n\n")
	} else {
		b.WriteString("Use the verification code below to confirm your email address:\n\n")
	}
	fmt.Fprintf(&b, "    %s\n\n", m.Code)
	b.WriteString("This code will expire in 5 minutes. If you didn't request this, you can safely ignore this email.\n")
	return b.String()
}

// Delivery reports which recipients the transport accepted.
type Delivery struct {
	Accepted []string
}

// AcceptedBy reports whether the exact recipient was accepted.
func (d Delivery) AcceptedBy(recipient string) bool {
	return slices.ContainsFunc(d.Accepted, func(a string) bool {
		return strings.EqualFold(a, recipient)
	})
}

// Notifier delivers one-time codes. Implementations must only list a
// recipient in Delivery.Accepted once the transport has taken the message.
type Notifier interface {
	SendCode(ctx context.Context, msg CodeMessage) (Delivery, error)
}

// ConsoleNotifier is a development notifier that logs the code instead of
// sending it.
type ConsoleNotifier struct {
	Logger *zap.Logger
}

func (c *ConsoleNotifier) SendCode(ctx context.Context, msg CodeMessage) (Delivery, error) {
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("=== EMAIL ===",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject()),
		zap.String("code", msg.Code))
	return Delivery{Accepted: []string{msg.To}}, nil
}
