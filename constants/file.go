package constants

import "strings"

// Document formats accepted by the router.
const (
	PDF   = "PDF"
	IMAGE = "IMAGE"
)

// FileTypes holds the allowed document formats.
var FileTypes = []string{PDF, IMAGE}

// AllowedExtensions holds the document extensions accepted by ingest.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"gif":  {},
	"tif":  {},
	"tiff": {},
	"bmp":  {},
	"webp": {},
}

// ModelOutputSuffix is appended to a document's stem to locate its inference JSON.
const ModelOutputSuffix = "_model.json"

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MapExtToFormat maps an extension (with or without dot) to PDF or IMAGE, or "" when unsupported.
func MapExtToFormat(ext string) string {
	switch NormalizeExt(ext) {
	case "pdf":
		return PDF
	case "jpg", "jpeg", "png", "gif", "tif", "tiff", "bmp", "webp":
		return IMAGE
	default:
		return ""
	}
}
