package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// Debouncer rejects a byte-identical resubmission of the same response
// within the configured window. SETNX keeps the check to one round trip and
// makes it safe across instances. Construct via Client.Debouncer.
type Debouncer struct {
	rdb    *goredis.Client
	window time.Duration
}

// FirstSeen reports whether this (question, session, value) triple is new
// within the window. False means a duplicate.
func (d *Debouncer) FirstSeen(ctx context.Context, questionID uuid.UUID, sessionID, value string) (bool, error) {
	set, err := d.rdb.SetNX(ctx, debounceKey(questionID, sessionID, value), "1", d.window).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check submission debounce: %w", err)
	}
	return set, nil
}

func debounceKey(questionID uuid.UUID, sessionID, value string) string {
	sum := sha256.Sum256([]byte(sessionID + "\x00" + value))
	return "submit:" + questionID.String() + ":" + hex.EncodeToString(sum[:16])
}
