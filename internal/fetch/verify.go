package fetch

import (
	"bytes"
	"fmt"

	"golang.org/x/crypto/openpgp" //nolint:staticcheck // openpgp is the library the pack provides; no maintained replacement is wired
)

// VerifySignature checks a detached ASCII-armored signature (Release.gpg)
// over release (Release) against keyring, the Debian-style repository trust
// step. Neither Fetch nor `aptgo update` calls it.
func VerifySignature(release, signature []byte, keyring openpgp.EntityList) error {
	_, err := openpgp.CheckDetachedSignature(keyring, bytes.NewReader(release), bytes.NewReader(signature))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSignatureInvalid, err)
	}

	return nil
}

// LoadKeyring parses an ASCII-armored public keyring, as shipped by a
// distribution's archive-keyring package.
func LoadKeyring(armored []byte) (openpgp.EntityList, error) {
	keyring, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(armored))
	if err != nil {
		return nil, fmt.Errorf("fetch: read keyring: %w", err)
	}

	return keyring, nil
}
