// ABOUTME: Random secret generation for node and controller keys
// ABOUTME: Uniform draws from a 62-symbol alphabet with a bounded uniqueness loop

package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
)

// KeyLength is the number of characters in a generated key.
const KeyLength = 32

const keyAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// maxUnbiased is the largest multiple of len(keyAlphabet) that fits in a
// byte; larger bytes are rejected so every symbol is equally likely.
const maxUnbiased = 256 - 256%len(keyAlphabet)

// ErrKeySpaceExhausted is returned when every generated candidate was
// already taken.
var ErrKeySpaceExhausted = errors.New("exhausted key space")

// GenerateKey returns a random KeyLength-character key.
func GenerateKey() (string, error) {
	key := make([]byte, 0, KeyLength)
	buf := make([]byte, KeyLength*2)

	for len(key) < KeyLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("reading random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= maxUnbiased {
				continue
			}
			key = append(key, keyAlphabet[int(b)%len(keyAlphabet)])
			if len(key) == KeyLength {
				break
			}
		}
	}
	return string(key), nil
}

// GenerateUniqueKey draws keys until inUse reports one as free, giving up
// with ErrKeySpaceExhausted after attempts candidates.
func GenerateUniqueKey(ctx context.Context, attempts int, inUse func(ctx context.Context, key string) (bool, error)) (string, error) {
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		key, err := GenerateKey()
		if err != nil {
			return "", err
		}

		taken, err := inUse(ctx, key)
		if err != nil {
			return "", fmt.Errorf("checking key uniqueness: %w", err)
		}
		if !taken {
			return key, nil
		}
	}
	return "", fmt.Errorf("%w after %d attempts", ErrKeySpaceExhausted, attempts)
}
