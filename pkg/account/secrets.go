package account

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
)

const (
	inviteTokenBytes = 32
	pinDigits        = 6
	pinMaxAttempts   = 10
)

// newInviteToken returns a 64-char hex token from crypto/rand.
// 256 bits make guessing and collision with an in-use token negligible.
func newInviteToken() (string, error) {
	buf := make([]byte, inviteTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// newPin draws a random zero-padded 6-digit pin.
func newPin() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// uniquePin draws pins until one is free of the outstanding set, with a
// hard attempt cap instead of unbounded retries. With a handful of
// pending confirmations in a 10^6 space, exhaustion is unreachable in
// practice; hitting the cap surfaces ErrPinExhausted.
func uniquePin(ctx context.Context, repo UserRepository) (string, error) {
	for i := 0; i < pinMaxAttempts; i++ {
		pin, err := newPin()
		if err != nil {
			return "", err
		}
		taken, err := repo.PinInUse(ctx, pin)
		if err != nil {
			return "", fmt.Errorf("check pin: %w", err)
		}
		if !taken {
			return pin, nil
		}
	}
	return "", ErrPinExhausted
}
