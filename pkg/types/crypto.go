package types

// EncryptedPayload is an age-encrypted blob, base64-encoded for storage.
// The history archive wraps task input data in one of these so secrets in
// task payloads are never written to disk in the clear.
type EncryptedPayload struct {
	Version    int    `json:"version"`
	Recipient  string `json:"recipient"` // Public key hint, not the full key
	Ciphertext string `json:"ciphertext"`
}
