package common

import (
	"strings"
)

// CodecToFileExtension maps a capture fourcc to the container it is written in
func CodecToFileExtension(codec string) string {
	switch strings.ToUpper(codec) {
	case "MP4V", "AVC1", "H264", "X264", "HEV1", "HVC1":
		return ".mp4"
	case "VP80", "VP90":
		return ".webm"
	case "MJPG", "XVID", "DIVX", "YUYV":
		return ".avi"
	default:
		// avi accepts almost anything OpenCV can encode
		return ".avi"
	}
}

// VideoFormatToMimeType returns the MIME type for a container format or file extension
func VideoFormatToMimeType(format string) string {
	format = strings.ToLower(format)
	format = strings.TrimPrefix(format, ".")
	switch format {
	case "mp4":
		return "video/mp4"
	case "avi":
		return "video/x-msvideo"
	case "mkv":
		return "video/x-matroska"
	case "webm":
		return "video/webm"
	case "mov":
		return "video/quicktime"
	case "enc":
		return "application/octet-stream"
	default:
		return "video/mp4"
	}
}
