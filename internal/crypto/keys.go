// Package crypto provides age encryption for archived task payloads.
package crypto

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"
)

// KeyManager handles age key generation and storage.
type KeyManager struct {
	identityPath string
	identity     *age.X25519Identity
	publicKey    string
}

// NewKeyManager creates a new KeyManager with the specified identity path.
func NewKeyManager(identityPath string) *KeyManager {
	return &KeyManager{identityPath: identityPath}
}

// Initialize loads an existing identity or generates a new one.
func (km *KeyManager) Initialize() error {
	if _, err := os.Stat(km.identityPath); err == nil {
		return km.loadIdentity()
	}
	return km.generateIdentity()
}

// generateIdentity creates a new age X25519 identity and writes it to disk.
func (km *KeyManager) generateIdentity() error {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return fmt.Errorf("failed to generate identity: %w", err)
	}

	dir := filepath.Dir(km.identityPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	content := fmt.Sprintf("# created: vega-swarm\n# public key: %s\n%s\n",
		identity.Recipient().String(),
		identity.String(),
	)
	if err := os.WriteFile(km.identityPath, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write identity file: %w", err)
	}

	km.identity = identity
	km.publicKey = identity.Recipient().String()
	return nil
}

// loadIdentity reads an existing identity from disk, skipping comment lines.
func (km *KeyManager) loadIdentity() error {
	data, err := os.ReadFile(km.identityPath)
	if err != nil {
		return fmt.Errorf("failed to read identity file: %w", err)
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		identity, err := age.ParseX25519Identity(line)
		if err != nil {
			return fmt.Errorf("failed to parse identity: %w", err)
		}
		km.identity = identity
		km.publicKey = identity.Recipient().String()
		return nil
	}

	return fmt.Errorf("no identity found in %s", km.identityPath)
}

// Identity returns the loaded age identity.
func (km *KeyManager) Identity() *age.X25519Identity {
	return km.identity
}

// PublicKey returns the full recipient public key.
func (km *KeyManager) PublicKey() string {
	return km.publicKey
}

// PublicKeyHint returns a short prefix of the public key for logging.
func (km *KeyManager) PublicKeyHint() string {
	if len(km.publicKey) > 12 {
		return km.publicKey[:12] + "..."
	}
	return km.publicKey
}
