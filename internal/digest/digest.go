package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// HexLength is the length of a hex-encoded SHA-256 digest.
const HexLength = sha256.Size * 2

// FromReader computes the SHA-256 content digest of the stream and returns
// it hex-encoded. The stream is consumed in bounded chunks; memory use does
// not depend on input size.
func FromReader(reader io.Reader) (string, error) {
	hasher := sha256.New()
	if _, err := io.Copy(hasher, reader); err != nil {
		return "", fmt.Errorf("digest: reading stream: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// FromFile computes the content digest of the file at the given path.
func FromFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("digest: opening %s: %w", path, err)
	}
	defer file.Close()

	return FromReader(file)
}

// IsValid reports whether value has the shape of a hex-encoded SHA-256
// digest. It does not consult any store.
func IsValid(value string) bool {
	if len(value) != HexLength {
		return false
	}
	_, err := hex.DecodeString(value)
	return err == nil
}
