package utils

import (
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

// allowedImageExt lists the upload extensions accepted for play images.
var allowedImageExt = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// ImageExt returns the lower-cased extension of filename and whether it
// is an accepted image type.
func ImageExt(filename string) (string, bool) {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext, allowedImageExt[ext]
}

// ImageFileName builds a unique file name "<slug>-<uuid><ext>" for an
// uploaded image.  An empty slug falls back to "image".
func ImageFileName(title, ext string) string {
	s := slug.Make(title)
	if s == "" {
		s = "image"
	}
	return s + "-" + uuid.NewString() + ext
}
