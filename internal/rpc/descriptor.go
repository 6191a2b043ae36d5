package rpc

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
)

// ConnectionDescriptor is the small persisted record callers read to locate
// and authenticate to a running service.
type ConnectionDescriptor struct {
	EndpointAddress string `json:"endpoint_address"`
	SharedSecret    string `json:"shared_secret"`
}

// GenerateSecret produces a random shared secret.
func GenerateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// WriteDescriptor persists the descriptor readable only by the owner.
func WriteDescriptor(path string, d *ConnectionDescriptor) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal descriptor: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write descriptor %s: %w", path, err)
	}
	return nil
}

// ReadDescriptor loads a descriptor. A missing file means the service is not
// running; callers must fail immediately rather than wait.
func ReadDescriptor(path string) (*ConnectionDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("service not running: descriptor %s does not exist", path)
		}
		return nil, fmt.Errorf("read descriptor %s: %w", path, err)
	}
	var d ConnectionDescriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse descriptor %s: %w", path, err)
	}
	return &d, nil
}
