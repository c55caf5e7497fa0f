package vectorindex

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ModelManifest lists the files that make up the companion embedding
// model supply, keyed by path relative to a base directory, with the
// expected SHA-256 hex digest of each. Verify follows the same
// hashing approach the teacher's chunk processor uses for file
// identity (crypto/sha256 + encoding/hex), applied here to the
// embedding model's on-disk artifacts instead of chunked documents.
type ModelManifest struct {
	Files map[string]string `json:"files"`
}

// LoadManifest reads a JSON manifest document from path.
func LoadManifest(path string) (*ModelManifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: read manifest %s: %w", path, err)
	}
	var m ModelManifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("vectorindex: parse manifest %s: %w", path, err)
	}
	return &m, nil
}

// Verify checks that every file listed in the manifest exists under
// baseDir and hashes to the listed digest. It fails closed: any
// missing file or mismatched hash is an error, and load/startup must
// not proceed past it.
func (m *ModelManifest) Verify(baseDir string) error {
	for rel, want := range m.Files {
		got, err := sha256File(filepath.Join(baseDir, rel))
		if err != nil {
			return fmt.Errorf("vectorindex: manifest entry %s: %w", rel, err)
		}
		if got != want {
			return fmt.Errorf("vectorindex: manifest entry %s: got %s want %s: %w", rel, got, want, ErrManifestMismatch)
		}
	}
	return nil
}

func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
