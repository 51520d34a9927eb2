package crypto

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"filippo.io/age"

	"github.com/vega-swarm/vega/pkg/types"
)

// PayloadVersion is the current encrypted payload format version.
const PayloadVersion = 1

// PayloadService encrypts task input data before it is archived and
// decrypts it again when history is read back.
type PayloadService struct {
	keyManager *KeyManager
}

// NewPayloadService creates a new PayloadService.
func NewPayloadService(keyManager *KeyManager) *PayloadService {
	return &PayloadService{keyManager: keyManager}
}

// EncryptInput encrypts a task input map into an EncryptedPayload.
func (ps *PayloadService) EncryptInput(input map[string]any) (*types.EncryptedPayload, error) {
	plaintext, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal input: %w", err)
	}

	recipient, err := age.ParseX25519Recipient(ps.keyManager.PublicKey())
	if err != nil {
		return nil, fmt.Errorf("failed to parse recipient: %w", err)
	}

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, recipient)
	if err != nil {
		return nil, fmt.Errorf("failed to create encryptor: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("failed to write plaintext: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close encryptor: %w", err)
	}

	return &types.EncryptedPayload{
		Version:    PayloadVersion,
		Recipient:  ps.keyManager.PublicKeyHint(),
		Ciphertext: base64.StdEncoding.EncodeToString(buf.Bytes()),
	}, nil
}

// DecryptInput decrypts an EncryptedPayload back into a task input map.
func (ps *PayloadService) DecryptInput(payload *types.EncryptedPayload) (map[string]any, error) {
	if payload == nil {
		return nil, fmt.Errorf("payload is nil")
	}

	ciphertext, err := base64.StdEncoding.DecodeString(payload.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	r, err := age.Decrypt(bytes.NewReader(ciphertext), ps.keyManager.Identity())
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read plaintext: %w", err)
	}

	var input map[string]any
	if err := json.Unmarshal(plaintext, &input); err != nil {
		return nil, fmt.Errorf("failed to unmarshal input: %w", err)
	}
	return input, nil
}
