package discovery

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeed(t *testing.T) {
	t.Parallel()
	got, err := Seed{}.Discover(context.Background(), "https://docs.example.com/")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://docs.example.com/"}, got)

	_, err = Seed{}.Discover(context.Background(), "docs.example.com")
	assert.Error(t, err)
}

func TestList_LimitsAndDedup(t *testing.T) {
	t.Parallel()
	urls := []string{
		"https://docs.example.com/a",
		"https://other.example.org/x",
		"https://DOCS.example.com/a#section",
		"not a url",
		"https://docs.example.com/b",
		"https://docs.example.com/c",
	}
	l := NewList(urls, Limits{MaxPages: 3, SameDomain: true})
	got, err := l.Discover(context.Background(), "https://docs.example.com/")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://docs.example.com/", "https://docs.example.com/a", "https://docs.example.com/b"}, got)

	all, err := NewList(urls, Limits{}).Discover(context.Background(), "https://docs.example.com/")
	require.NoError(t, err)
	assert.Contains(t, all, "https://other.example.org/x")
	assert.Len(t, all, 5)
}

func TestSeeds_OnePerHost(t *testing.T) {
	t.Parallel()
	got := Seeds([]string{
		"https://a.example.com/1", "https://b.example.com/1", "https://A.example.com/2", "mailto:x@example.com",
	})
	assert.Equal(t, []string{"https://a.example.com/1", "https://b.example.com/1"}, got)
}

func TestReadURLs(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "urls.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("name,URL\nhome, https://example.com/ \nempty,\n"), 0o644))
	got, err := ReadURLs(csvPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/"}, got)

	ndPath := filepath.Join(dir, "urls.ndjson")
	require.NoError(t, os.WriteFile(ndPath, []byte("{\"url\":\"https://example.com/a\"}\n\nhttps://example.com/b\n"), 0o644))
	got, err = ReadURLs(ndPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/a", "https://example.com/b"}, got)

	badCSV := filepath.Join(dir, "bad.csv")
	require.NoError(t, os.WriteFile(badCSV, []byte("link\nhttps://example.com\n"), 0o644))
	_, err = ReadURLs(badCSV)
	assert.Error(t, err)

	txt := filepath.Join(dir, "urls.txt")
	require.NoError(t, os.WriteFile(txt, []byte("https://example.com/t\n"), 0o644))
	got, err = ReadURLs(txt)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/t"}, got)
}
