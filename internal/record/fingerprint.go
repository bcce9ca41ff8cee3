package record

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

// fingerprintSep joins the fingerprinted fields. The unit separator control
// character is stripped from Tally responses during XML sanitation, so it
// can never occur inside a field value.
const fingerprintSep = "\x1f"

// Fingerprint computes a stable 128-bit digest over the identity-relevant
// fields of a record: name, address, phone, email, pincode and parent group.
//
// Balances and enrichment fields are deliberately excluded so that a
// re-fetch with different closing balances does not look like a change and
// trigger a re-upload.
func Fingerprint(r *Record) string {
	parts := []string{
		r.Name,
		r.Address,
		r.Phone,
		r.Email,
		r.Pincode,
		r.Parent,
	}
	sum := md5.Sum([]byte(strings.Join(parts, fingerprintSep)))
	return hex.EncodeToString(sum[:])
}
