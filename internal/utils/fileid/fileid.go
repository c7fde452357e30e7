package fileid

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyOnce sync.Once
	entropyMu   sync.Mutex
	entropy     *ulid.MonotonicEntropy
)

func newEntropy() *ulid.MonotonicEntropy {
	entropyOnce.Do(func() {
		source := rand.NewSource(time.Now().UnixNano())
		entropy = ulid.Monotonic(rand.New(source), 0)
	})
	return entropy
}

// New returns a file_* ULID string. Safe for concurrent use; the
// monotonic entropy source is serialized.
func New() string {
	source := newEntropy()
	entropyMu.Lock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), source)
	entropyMu.Unlock()
	return "file_" + strings.ToLower(id.String())
}

// IsValid reports whether the string is a file_* ULID.
func IsValid(value string) bool {
	if !strings.HasPrefix(value, "file_") {
		return false
	}
	_, err := Parse(value)
	return err == nil
}

// Parse strips the file_ prefix and returns the ULID.
func Parse(value string) (ulid.ULID, error) {
	value = strings.TrimSpace(value)
	value = strings.TrimPrefix(value, "file_")
	value = strings.TrimPrefix(value, "FILE_")
	return ulid.Parse(value)
}

// Shard returns the two-character blob directory bucket for an id. The
// trailing characters of the ULID carry the entropy, so they spread
// evenly across buckets where the timestamp prefix would not.
func Shard(value string) string {
	trimmed := strings.TrimSpace(value)
	if len(trimmed) < 2 {
		return "00"
	}
	return strings.ToLower(trimmed[len(trimmed)-2:])
}
