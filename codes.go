package authservice

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// DefaultCodeTTL is how long an issued code stays valid.
const DefaultCodeTTL = 5 * time.Minute

const (
	codeDigits = 6
	codeMin    = 100000
	codeSpan   = 900000 // codes are drawn from [100000, 999999]
)

// CodeMechanism issues and consumes 6-digit one-time codes. Only the
// HMAC-SHA256 digest of a code is ever stored on the account.
//
// It mutates the *Account it is given; persisting the result is the
// caller's job.
type CodeMechanism struct {
	Secret   []byte
	TTL      time.Duration
	Notifier Notifier
	Logger   *zap.Logger
	Now      func() time.Time

	// Generate returns a fresh plaintext code. Defaults to GenerateCode.
	Generate func() (string, error)
}

func (c *CodeMechanism) EnsureDefaults() *CodeMechanism {
	if c.TTL <= 0 {
		c.TTL = DefaultCodeTTL
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Generate == nil {
		c.Generate = GenerateCode
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// GenerateCode draws a uniformly random 6-digit code.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeSpan))
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return strconv.FormatInt(n.Int64()+codeMin, 10), nil
}

// Digest returns the hex encoded HMAC of code under the server secret.
func (c *CodeMechanism) Digest(code string) string {
	mac := hmac.New(sha256.New, c.Secret)
	mac.Write([]byte(code))
	return hex.EncodeToString(mac.Sum(nil))
}

// Issue generates a code, sends it to the account's email and, only when
// the notifier reports that exact recipient as accepted, records the digest
// and issue time in the slot. Any prior code in the slot is overwritten.
func (c *CodeMechanism) Issue(ctx context.Context, account *Account, slot CodeSlot) error {
	c.EnsureDefaults()
	if len(c.Secret) == 0 {
		return NewAuthError(KindInternal, "Code secret is not configured", "")
	}
	if c.Notifier == nil {
		return NewAuthError(KindInternal, "Notifier is not configured", "")
	}

	code, err := c.Generate()
	if err != nil {
		return WrapAuthError(KindInternal, "Internal server error", "", err)
	}

	delivery, err := c.Notifier.SendCode(ctx, CodeMessage{To: account.Email, Slot: slot, Code: code})
	if err != nil {
		c.Logger.Warn("code delivery failed", zap.String("slot", string(slot)), zap.Error(err))
		return WrapAuthError(KindDelivery, "Failed to send verification code email", "", err)
	}
	if !delivery.AcceptedBy(account.Email) {
		c.Logger.Warn("code delivery not accepted for recipient",
			zap.String("slot", string(slot)), zap.Strings("accepted", delivery.Accepted))
		return NewAuthError(KindDelivery, "Failed to send verification code email", "")
	}

	state := account.Slot(slot)
	state.Digest = c.Digest(code)
	state.IssuedAt = c.Now()
	return nil
}

// Consume checks code against the slot.
//
//   - empty slot: ErrNotIssued
//   - older than TTL: ErrExpired, and the slot is cleared
//   - digest mismatch: ErrInvalidCode, slot untouched so the user may retry
//   - match: slot cleared, nil
//
// The returned bool reports whether the account was modified and needs saving.
func (c *CodeMechanism) Consume(account *Account, slot CodeSlot, code string) (changed bool, err error) {
	c.EnsureDefaults()
	state := account.Slot(slot)
	if !state.Issued() {
		return false, NewAuthError(KindNotIssued, notIssuedMessage(slot), "")
	}

	if c.Now().Sub(state.IssuedAt) > c.TTL {
		state.Clear()
		return true, NewAuthError(KindExpired, "Code has expired! Please request a new one.", "")
	}

	if !hmac.Equal([]byte(c.Digest(code)), []byte(state.Digest)) {
		return false, NewAuthError(KindInvalidCode, invalidCodeMessage(slot), "code")
	}

	state.Clear()
	return true, nil
}

func notIssuedMessage(slot CodeSlot) string {
	if slot == SlotForgotPassword {
		return "Reset code not found. Please request a new one."
	}
	return "Verification code not found. Please request a new one."
}

func invalidCodeMessage(slot CodeSlot) string {
	if slot == SlotForgotPassword {
		return "Invalid code"
	}
	return "Invalid verification code"
}
