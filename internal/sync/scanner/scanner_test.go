package scanner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubetraining/sitesync/errors"
	"github.com/kubetraining/sitesync/internal/testutil"
)

func TestScanLocal(t *testing.T) {
	fs := testutil.NewSite(t, map[string]string{
		"index.html":             "<html>home</html>",
		"css/site.css":           "body{}",
		"posts/first/index.html": "<html>first</html>",
		"images/logo":            "\x89PNG\r\n\x1a\n0000",
	})
	s := NewScanner(&testutil.MockS3Client{}, fs)

	assets, err := s.ScanLocal(context.Background(), testutil.SiteRoot, nil, nil)
	require.NoError(t, err)
	require.Len(t, assets, 4)

	keys := make([]string, len(assets))
	for i, a := range assets {
		keys[i] = a.Key
	}
	assert.Equal(t, []string{"css/site.css", "images/logo", "index.html", "posts/first/index.html"}, keys)

	home := assets[2]
	assert.Equal(t, "/site/index.html", home.Path)
	assert.Equal(t, testutil.CalculateMD5([]byte("<html>home</html>")), home.Hash)
	assert.Equal(t, int64(len("<html>home</html>")), home.Size)
	assert.Equal(t, "text/html; charset=utf-8", home.ContentType)

	assert.Equal(t, "text/css; charset=utf-8", assets[0].ContentType)
	assert.Equal(t, "image/png", assets[1].ContentType, "extensionless files are sniffed")
	assert.Equal(t, testutil.CalculateMD5([]byte("\x89PNG\r\n\x1a\n0000")), assets[1].Hash, "sniffing must not disturb the hash")
}

func TestScanLocalPatterns(t *testing.T) {
	fs := testutil.NewSite(t, map[string]string{
		"index.html":      "a",
		"drafts/wip.html": "b",
		"css/site.css":    "c",
		".DS_Store":       "d",
	})
	s := NewScanner(&testutil.MockS3Client{}, fs)

	assets, err := s.ScanLocal(context.Background(), testutil.SiteRoot, nil, []string{"drafts/", ".DS_Store"})
	require.NoError(t, err)
	require.Len(t, assets, 2)
	assert.Equal(t, "css/site.css", assets[0].Key)
	assert.Equal(t, "index.html", assets[1].Key)

	assets, err = s.ScanLocal(context.Background(), testutil.SiteRoot, []string{"*.html"}, []string{"drafts/**"})
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, "index.html", assets[0].Key)
}

func TestScanLocalErrors(t *testing.T) {
	fs := testutil.NewSite(t, map[string]string{"index.html": "a"})
	s := NewScanner(&testutil.MockS3Client{}, fs)

	t.Run("missing root", func(t *testing.T) {
		_, err := s.ScanLocal(context.Background(), "/nope", nil, nil)
		require.Error(t, err)
		assert.Equal(t, errors.KindBuild, errors.KindOf(err))
	})

	t.Run("root is a file", func(t *testing.T) {
		_, err := s.ScanLocal(context.Background(), "/site/index.html", nil, nil)
		require.Error(t, err)
		assert.Equal(t, errors.KindBuild, errors.KindOf(err))
	})

	t.Run("invalid pattern", func(t *testing.T) {
		_, err := s.ScanLocal(context.Background(), testutil.SiteRoot, []string{"[a-"}, nil)
		require.Error(t, err)
		assert.Equal(t, errors.KindConfig, errors.KindOf(err))
		assert.Equal(t, errors.CodeInvalidInput, errors.CodeOf(err))
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := s.ScanLocal(ctx, testutil.SiteRoot, nil, nil)
		require.Error(t, err)
		assert.Equal(t, errors.KindCancelled, errors.KindOf(err))
	})
}
