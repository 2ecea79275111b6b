package port

// FieldCipher protects secret columns at rest. Encrypt must be semantically
// secure (fresh nonce per call); BlindIndex must be deterministic so equality
// lookups work without decrypting the column.
type FieldCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
	BlindIndex(value string) string
}
