package clipwriter

import (
	"crypto/rand"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Kim-Ziho/doorbell-camera/recording"
	"github.com/oklog/ulid/v2"
)

const clipTimestampLayout = "20060102_150405"

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// BaseName is the file name prefix for clips of the given origin
func BaseName(origin recording.Origin) string {
	if origin == recording.OriginManual {
		return "manual"
	}
	return "motion"
}

// ClipPath returns <dir>/<base>_<YYYYMMDD_HHMMSS>_<ulid><ext>. The ULID keeps
// two clips opened within the same second apart.
func ClipPath(dir string, origin recording.Origin, startedAt time.Time, ext string) string {
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	name := BaseName(origin) + "_" + startedAt.Format(clipTimestampLayout) + "_" + newULID(startedAt) + ext
	return filepath.Join(dir, name)
}

func newULID(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return strings.ToLower(ulid.MustNew(ulid.Timestamp(t), entropy).String())
}
