// Package orderid generates short, collision-resistant, human-traceable
// client order identifiers that satisfy exchange length limits.
package orderid

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	apperrors "order_lifecycle/pkg/errors"
)

// MaxLen is the exchange limit for client order ids
const MaxLen = 18

// Codec composes ids from a caller prefix, a base-36 millisecond timestamp,
// and a same-millisecond sequence counter. Two calls within the same process
// never return the same id, even in the same millisecond.
type Codec struct {
	mu         sync.Mutex
	lastMillis int64
	seq        int64

	now func() time.Time
}

// New creates a codec using the wall clock
func New() *Codec {
	return &Codec{now: time.Now}
}

// Generate returns an id prefixed with the session identifier
func (c *Codec) Generate(sessionID string) (string, error) {
	return c.compose(sanitize(sessionID))
}

// GenerateLinked returns an id traceable to a parent order: purpose plus the
// tail of the parent id, then the timestamp component.
func (c *Codec) GenerateLinked(parentOrderID, purpose string) (string, error) {
	parent := sanitize(parentOrderID)
	if len(parent) > 4 {
		parent = parent[len(parent)-4:]
	}
	return c.compose(sanitize(purpose) + parent)
}

// compose fails loudly rather than silently truncating; callers must
// shorten inputs, not receive corrupted ids.
func (c *Codec) compose(prefix string) (string, error) {
	c.mu.Lock()
	millis := c.now().UnixMilli()
	if millis == c.lastMillis {
		c.seq++
	} else {
		c.lastMillis = millis
		c.seq = 0
	}
	seq := c.seq
	c.mu.Unlock()

	id := prefix + strconv.FormatInt(millis, 36) + strconv.FormatInt(seq, 36)
	if len(id) > MaxLen {
		return "", fmt.Errorf("%w: %q is %d chars, limit %d", apperrors.ErrIDTooLong, id, len(id), MaxLen)
	}
	return id, nil
}

// sanitize keeps lowercase alphanumerics only; it never truncates
func sanitize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
