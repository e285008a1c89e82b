package reconcile

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"
)

// ChecksumAlgorithm names a supported digest.
type ChecksumAlgorithm int

const (
	ChecksumSHA1 ChecksumAlgorithm = iota
	ChecksumSHA256
	ChecksumSHA512
)

func (c ChecksumAlgorithm) String() string {
	switch c {
	case ChecksumSHA1:
		return "sha1"
	case ChecksumSHA256:
		return "sha256"
	case ChecksumSHA512:
		return "sha512"
	default:
		return "unknown"
	}
}

func (c ChecksumAlgorithm) new() hash.Hash {
	switch c {
	case ChecksumSHA256:
		return sha256.New()
	case ChecksumSHA512:
		return sha512.New()
	default:
		return sha1.New()
	}
}

// ParseChecksum accepts "algorithm:hex" or a bare hex digest whose
// algorithm is inferred from its length (sha1 when unknown).
func ParseChecksum(s string) (ChecksumAlgorithm, string, error) {
	if algo, value, ok := strings.Cut(s, ":"); ok {
		switch algo {
		case "sha1":
			return ChecksumSHA1, strings.ToLower(value), nil
		case "sha256":
			return ChecksumSHA256, strings.ToLower(value), nil
		case "sha512":
			return ChecksumSHA512, strings.ToLower(value), nil
		default:
			return ChecksumSHA1, "", fmt.Errorf("unknown checksum algorithm: %s", algo)
		}
	}

	switch len(s) {
	case 64:
		return ChecksumSHA256, strings.ToLower(s), nil
	case 128:
		return ChecksumSHA512, strings.ToLower(s), nil
	default:
		return ChecksumSHA1, strings.ToLower(s), nil
	}
}

// FileChecksum streams path through the digest and returns lowercase hex.
func FileChecksum(path string, algo ChecksumAlgorithm) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := algo.new()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// VerifyFile reports whether the file at path matches checksum.
func VerifyFile(path, checksum string) (bool, error) {
	algo, expected, err := ParseChecksum(checksum)
	if err != nil {
		return false, err
	}
	actual, err := FileChecksum(path, algo)
	if err != nil {
		return false, err
	}
	return actual == expected, nil
}
