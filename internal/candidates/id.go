package candidates

import (
	"encoding/hex"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// newID returns the base-36 millisecond timestamp followed by 48 random bits.
func newID(now time.Time) string {
	u := uuid.New()
	return strconv.FormatInt(now.UnixMilli(), 36) + hex.EncodeToString(u[:6])
}
