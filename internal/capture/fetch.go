package capture

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	getter "github.com/hashicorp/go-getter"
)

// Fetch makes the capture at src available locally and returns its path.
// Existing local files are used in place; anything else is downloaded into
// dir with go-getter, so http(s), s3, gcs and forced "file::" sources work.
func Fetch(ctx context.Context, src, dir string) (string, error) {
	if fi, err := os.Stat(src); err == nil && !fi.IsDir() {
		return src, nil
	}

	name := fileName(src)
	if name == "" {
		return "", fmt.Errorf("fetch %s: cannot derive file name", src)
	}
	dst := filepath.Join(dir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create capture dir: %w", err)
	}
	if err := getter.GetFile(dst, src, getter.WithContext(ctx)); err != nil {
		return "", fmt.Errorf("fetch %s: %w", src, err)
	}
	return dst, nil
}

// fileName returns the last path element of a go-getter source, without the
// forced getter prefix or query.
func fileName(src string) string {
	if i := strings.Index(src, "::"); i >= 0 {
		src = src[i+2:]
	}
	if u, err := url.Parse(src); err == nil {
		src = u.Path
	}
	name := path.Base(src)
	if name == "." || name == "/" {
		return ""
	}
	return name
}
