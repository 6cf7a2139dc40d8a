package services

import (
	"mime"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"goodscommunity/internal/domain"
)

var reExt = regexp.MustCompile(`^\.[a-z0-9]{1,7}$`)

// MaxImageBytes caps profile and product image uploads.
const MaxImageBytes = 5 << 20

const (
	profileImageDir = "profile_images"
	productImageDir = "product_images"
)

// inDir reports whether ref names a blob this package stored under dir.
// Only such refs are ever deleted on cleanup.
func inDir(ref, dir string) bool {
	return ref != "" && strings.Contains(ref, "/"+dir+"/") && !strings.Contains(ref, "..")
}

func checkImage(up domain.Upload) error {
	if len(up.Data) == 0 {
		return domain.InvalidArgument("file is empty")
	}
	if !strings.HasPrefix(strings.ToLower(up.ContentType), "image/") {
		return domain.InvalidArgument("only image files can be uploaded")
	}
	if len(up.Data) > MaxImageBytes {
		return domain.InvalidArgument("file size must not exceed 5MB")
	}
	return nil
}

// blobName builds "<dir>/<uuid><ext>", taking the extension from the
// original filename or, failing that, from the content type.
func blobName(dir string, up domain.Upload) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(up.Filename)))
	if !reExt.MatchString(ext) {
		ext = ""
		if exts, _ := mime.ExtensionsByType(up.ContentType); len(exts) > 0 {
			ext = exts[0]
		}
	}
	return dir + "/" + uuid.NewString() + ext
}
