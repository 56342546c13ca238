package fileops

import (
	"fmt"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/parcel/internal/parceltype"
)

// Digest returns the canonical "sha256:<hex>" digest of data.
func Digest(data []byte) string {
	return digest.SHA256.FromBytes(data).String()
}

// VerifyDigest checks data against an expected digest string.
func VerifyDigest(expected string, data []byte) error {
	d, err := digest.Parse(expected)
	if err != nil {
		return fmt.Errorf("%w: invalid digest %q: %v", parceltype.ErrValidation, expected, err)
	}
	if d.Algorithm() != digest.SHA256 {
		return fmt.Errorf("%w: unsupported digest algorithm %s", parceltype.ErrValidation, d.Algorithm())
	}
	v := d.Verifier()
	_, _ = v.Write(data) //nolint:errcheck // hash writes never fail
	if !v.Verified() {
		return fmt.Errorf("%w: digest mismatch", parceltype.ErrValidation)
	}
	return nil
}
