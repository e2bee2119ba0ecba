package clipwriter

import (
	"strings"

	"github.com/Kim-Ziho/doorbell-camera/common"
)

// Codec is one rung of the writer ladder
type Codec struct {
	FourCC    string
	Extension string // with leading dot
}

// DefaultCodecLadder is tried in order until a writer opens
var DefaultCodecLadder = []Codec{
	{FourCC: "mp4v", Extension: ".mp4"},
	{FourCC: "avc1", Extension: ".mp4"},
	{FourCC: "MJPG", Extension: ".avi"},
}

// CodecLadder builds a ladder from configured fourcc codes. Blank entries are
// skipped and an empty result falls back to DefaultCodecLadder.
func CodecLadder(fourccs []string) []Codec {
	var ladder []Codec
	for _, fourcc := range fourccs {
		fourcc = strings.TrimSpace(fourcc)
		if len(fourcc) != 4 {
			continue
		}
		ladder = append(ladder, Codec{FourCC: fourcc, Extension: common.CodecToFileExtension(fourcc)})
	}
	if len(ladder) == 0 {
		return append([]Codec(nil), DefaultCodecLadder...)
	}
	return ladder
}
