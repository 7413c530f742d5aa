package ingestion

import (
	"errors"
	"fmt"

	"github.com/stellar/go-stellar-sdk/strkey"
)

// ErrInvalidStrkey is returned for malformed or mis-checksummed addresses.
var ErrInvalidStrkey = errors.New("invalid strkey")

// ValidateStrkey checks an account (G), contract (C) or muxed account (M) address.
func ValidateStrkey(s string) error {
	var version strkey.VersionByte
	switch {
	case len(s) == 56 && s[0] == 'G':
		version = strkey.VersionByteAccountID
	case len(s) == 56 && s[0] == 'C':
		version = strkey.VersionByteContract
	case len(s) == 69 && s[0] == 'M':
		version = strkey.VersionByteMuxedAccount
	default:
		return fmt.Errorf("%w: unexpected length %d or prefix", ErrInvalidStrkey, len(s))
	}

	if _, err := strkey.Decode(version, s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidStrkey, err)
	}
	return nil
}
