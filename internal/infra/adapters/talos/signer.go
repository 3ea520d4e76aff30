package talos

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"

	"github.com/coachpo/orderbroker/errs"
)

// partSeparator joins canonical parts; the venue rebuilds the same string server side.
const partSeparator = "\n"

// Sign computes the request signature over parts: HMAC-SHA256 keyed with secret, rendered as
// URL-safe base64 with padding. Part order is significant.
func Sign(secret string, parts []string) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errs.New(venueName, errs.CodeAuth, errs.WithMessage("signing secret empty"))
	}
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(strings.Join(parts, partSeparator)))
	return base64.URLEncoding.EncodeToString(mac.Sum(nil)), nil
}
