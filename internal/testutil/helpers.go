package testutil

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"path"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/require"
)

// SiteRoot is where NewSite places the build output on its filesystem.
const SiteRoot = "/site"

// CalculateMD5 calculates the lower-case hex MD5 of data.
func CalculateMD5(data []byte) string {
	hash := md5.Sum(data)
	return hex.EncodeToString(hash[:])
}

// MultipartETag returns an ETag in the multipart "<hex>-<parts>" form.
func MultipartETag(data []byte, parts int) string {
	return fmt.Sprintf("%s-%d", CalculateMD5(append([]byte("multipart:"), data...)), parts)
}

// NewSite creates an in-memory filesystem with the files under SiteRoot.
func NewSite(t *testing.T, files map[string]string) billy.Filesystem {
	t.Helper()
	fs := memfs.New()
	WriteFiles(t, fs, SiteRoot, files)
	return fs
}

// WriteFiles writes files relative to root on fs.
func WriteFiles(t *testing.T, fs billy.Filesystem, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := path.Join(root, name)
		require.NoError(t, fs.MkdirAll(path.Dir(p), 0o755))
		require.NoError(t, util.WriteFile(fs, p, []byte(content), 0o644))
	}
}
