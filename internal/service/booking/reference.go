package booking

import (
	"crypto/rand"
	"encoding/base32"
	"strconv"
	"strings"
	"time"
)

const (
	referenceRandomLen = 5
	referenceTimeLen   = 3
)

var referenceEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// GenerateReference returns an eight character booking code: five random
// base32 characters followed by a base36 suffix of the current millisecond.
func GenerateReference() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	random := referenceEncoding.EncodeToString(buf)[:referenceRandomLen]

	window := int64(36 * 36 * 36)
	suffix := strconv.FormatInt(time.Now().UnixMilli()%window, 36)
	suffix = strings.Repeat("0", referenceTimeLen-len(suffix)) + suffix

	return strings.ToUpper(random + suffix), nil
}
