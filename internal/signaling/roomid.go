package signaling

import (
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewRoomID returns a unique room id of the form room_<unix seconds>_<random suffix>.
func NewRoomID(now time.Time) string {
	id := ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy())
	// the last 16 characters of a ULID are its entropy
	return fmt.Sprintf("room_%d_%s", now.Unix(), strings.ToLower(id.String()[10:]))
}
