package scrape

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileSystemSinkSave(t *testing.T) {
	t.Parallel()

	sink, err := NewFileSystemSink(t.TempDir())
	require.NoError(t, err)

	path, err := sink.Save(PlatformShopee, "<html><body>blocked</body></html>")
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "<html><body>blocked</body></html>", string(content))

	name := filepath.Base(path)
	require.True(t, strings.HasPrefix(name, "shopee_"), name)
	require.True(t, strings.HasSuffix(name, ".html"), name)
}

func TestFileSystemSinkSave_UniqueNames(t *testing.T) {
	t.Parallel()

	sink, err := NewFileSystemSink(t.TempDir())
	require.NoError(t, err)

	first, err := sink.Save(PlatformAmazon, "<html>1</html>")
	require.NoError(t, err)
	second, err := sink.Save(PlatformAmazon, "<html>2</html>")
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}

func TestFileSystemSinkSave_RejectsEmpty(t *testing.T) {
	t.Parallel()

	sink, err := NewFileSystemSink(t.TempDir())
	require.NoError(t, err)

	_, err = sink.Save(PlatformTiki, "")
	require.Error(t, err)
}

func TestNewFileSystemSink_CreatesNestedDir(t *testing.T) {
	t.Parallel()

	root := filepath.Join(t.TempDir(), "snapshots", "pages")
	sink, err := NewFileSystemSink(root)
	require.NoError(t, err)

	path, err := sink.Save(PlatformEbay, "<html>x</html>")
	require.NoError(t, err)
	require.Equal(t, root, filepath.Dir(path))
}
