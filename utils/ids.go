package utils

import (
	"strings"

	"github.com/segmentio/ksuid"
)

// NewID returns a sortable unique row id.
func NewID() string {
	return ksuid.New().String()
}

const refCodePrefix = "SPH"

// DeriveReferralCode builds the deterministic fallback referral code for a
// user that never minted one: the prefix plus the first seven usable
// characters of the user id, upper-cased.
func DeriveReferralCode(userID string) string {
	suffix := strings.ToUpper(strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			return r
		}
		return -1
	}, userID))
	if len(suffix) > 7 {
		suffix = suffix[:7]
	}
	for len(suffix) < 7 {
		suffix += "0"
	}
	return refCodePrefix + suffix
}
