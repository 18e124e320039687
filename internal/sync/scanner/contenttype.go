package scanner

import (
	"crypto/md5"
	"encoding/hex"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Types for extensions a static site ships that the system table may lack.
var siteTypes = map[string]string{
	".html":        "text/html; charset=utf-8",
	".css":         "text/css; charset=utf-8",
	".js":          "text/javascript; charset=utf-8",
	".mjs":         "text/javascript; charset=utf-8",
	".json":        "application/json",
	".xml":         "application/xml",
	".svg":         "image/svg+xml",
	".webp":        "image/webp",
	".woff":        "font/woff",
	".woff2":       "font/woff2",
	".webmanifest": "application/manifest+json",
	".map":         "application/json",
	".txt":         "text/plain; charset=utf-8",
	".md":          "text/markdown; charset=utf-8",
}

// contentTypeByExtension looks the key's extension up in the site table,
// then the system table. It returns "" when neither knows the extension.
func contentTypeByExtension(key string) string {
	ext := strings.ToLower(path.Ext(key))
	if ext == "" {
		return ""
	}
	if ct, ok := siteTypes[ext]; ok {
		return ct
	}
	return mime.TypeByExtension(ext)
}

// hashAndDetect reads r once, returning its hex MD5 and a content type.
// The extension decides the type when it is known; otherwise the leading
// bytes are sniffed while they are hashed.
func hashAndDetect(r io.Reader, key string) (string, string, error) {
	h := md5.New()

	contentType := contentTypeByExtension(key)
	if contentType == "" {
		mt, err := mimetype.DetectReader(io.TeeReader(r, h))
		if err != nil {
			return "", "", err
		}
		contentType = mt.String()
	}

	if _, err := io.Copy(h, r); err != nil {
		return "", "", err
	}

	return hex.EncodeToString(h.Sum(nil)), contentType, nil
}
