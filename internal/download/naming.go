package download

import (
	"mime"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

const maxNameLength = 50

var (
	invalidChars  = regexp.MustCompile(`[<>:"/\\|?*]`)
	whitespace    = regexp.MustCompile(`\s+`)
	reservedNames = regexp.MustCompile(`^(?i)(con|prn|aux|nul|com[0-9]|lpt[0-9])$`)
)

// FileName builds the base name (without extension) for a downloaded
// image from its description and a six digit millisecond stamp.
func FileName(description string, now time.Time) string {
	desc := description
	if strings.TrimSpace(desc) == "" {
		desc = "image"
	}
	desc = strings.ToLower(desc)
	desc = invalidChars.ReplaceAllString(desc, "")
	desc = whitespace.ReplaceAllString(desc, "-")
	if r := []rune(desc); len(r) > maxNameLength {
		desc = string(r[:maxNameLength])
	}
	desc = strings.TrimSpace(strings.TrimRight(desc, "-"))
	if desc == "" || reservedNames.MatchString(desc) {
		desc = "stock-image"
	}

	stamp := strconv.FormatInt(now.UnixMilli(), 10)
	if len(stamp) > 6 {
		stamp = stamp[len(stamp)-6:]
	}
	return desc + "-" + stamp
}

var extByType = map[string]string{
	"image/jpeg":    ".jpg",
	"image/jpg":     ".jpg",
	"image/png":     ".png",
	"image/gif":     ".gif",
	"image/webp":    ".webp",
	"image/svg+xml": ".svg",
}

var urlExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
	".svg":  true,
}

// Extension picks the file extension: the declared Content-Type first, then
// the sniffed type, then the URL path, then .jpg.
func Extension(contentType string, sniffed *mimetype.MIME, rawUrl string) string {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		if ext, ok := extByType[mediaType]; ok {
			return ext
		}
	}
	if IsImage(sniffed) && sniffed.Extension() != "" {
		return sniffed.Extension()
	}
	if u, err := url.Parse(rawUrl); err == nil {
		ext := strings.ToLower(path.Ext(u.Path))
		if urlExts[ext] {
			return ext
		}
	}
	return ".jpg"
}

// IsImage reports whether the sniffed type is an image.
func IsImage(sniffed *mimetype.MIME) bool {
	return sniffed != nil && strings.HasPrefix(sniffed.String(), "image/")
}
