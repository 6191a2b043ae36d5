package rpc

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/vergate/vergate/internal/domain"
)

// serverHandshake emits a random challenge and verifies the peer's keyed
// hash of it. A mismatch refuses the connection; there is no retry.
func serverHandshake(rw io.ReadWriter, secret []byte) error {
	challenge := make([]byte, challengeSize)
	if _, err := rand.Read(challenge); err != nil {
		return fmt.Errorf("generate challenge: %w", err)
	}
	if err := writeFrame(rw, challenge); err != nil {
		return fmt.Errorf("send challenge: %w", err)
	}

	proof, err := readFrame(rw)
	if err != nil {
		return fmt.Errorf("read handshake proof: %w", err)
	}

	if !hmac.Equal(proof, keyedHash(secret, challenge)) {
		return domain.ErrAuthentication("handshake verification failed")
	}
	return nil
}

// clientHandshake answers the server's challenge with the keyed hash.
func clientHandshake(rw io.ReadWriter, secret []byte) error {
	challenge, err := readFrame(rw)
	if err != nil {
		return fmt.Errorf("read challenge: %w", err)
	}
	if len(challenge) != challengeSize {
		return domain.ErrAuthentication(fmt.Sprintf("unexpected challenge length %d", len(challenge)))
	}
	if err := writeFrame(rw, keyedHash(secret, challenge)); err != nil {
		return fmt.Errorf("send handshake proof: %w", err)
	}
	return nil
}

func keyedHash(secret, challenge []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(challenge)
	return mac.Sum(nil)
}
