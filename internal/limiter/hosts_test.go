package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHosts_PacesPerHost(t *testing.T) {
	t.Parallel()
	h := NewHosts(1, 1)
	ctx := context.Background()

	require.NoError(t, h.Wait(ctx, "https://a.example.com/swagger.json"))
	// A different host has its own bucket.
	require.NoError(t, h.Wait(ctx, "https://B.example.com/openapi.json"))

	ctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err := h.Wait(ctx, "https://a.example.com/api-docs")
	assert.Error(t, err, "second request to the same host must wait for a token")
}

func TestHosts_DisabledPacing(t *testing.T) {
	t.Parallel()
	h := NewHosts(0, 0)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for i := 0; i < 50; i++ {
		require.NoError(t, h.Wait(ctx, "https://a.example.com/"))
	}
}

func TestHostKey(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "api.example.com:8080", hostKey("http://API.example.com:8080/x"))
	assert.Equal(t, "not a url", hostKey("not a url"))
}
