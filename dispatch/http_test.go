package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcp-tool-shop/nexus-router/fault"
)

func TestHTTPAdapterPostsCall(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/call", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"result": 42}`))
	}))
	defer srv.Close()

	a, err := NewHTTPAdapter("", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "http", a.AdapterID())
	assert.Equal(t, []string{"apply", "external", "timeout"}, a.Capabilities().Sorted())

	out, err := a.Call(context.Background(), "calc", "answer", map[string]any{"q": "life"})
	require.NoError(t, err)
	assert.Equal(t, float64(42), out["result"])
	assert.Equal(t, "calc", got["tool"])
	assert.Equal(t, "answer", got["method"])
	assert.Equal(t, "life", got["args"].(map[string]any)["q"])
}

func TestHTTPAdapterStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	a, err := NewHTTPAdapter("", srv.URL)
	require.NoError(t, err)

	_, err = a.Call(context.Background(), "t", "m", nil)
	require.Error(t, err)
	assert.Equal(t, fault.CodeHTTPError, fault.CodeOf(err))
	assert.Equal(t, http.StatusForbidden, fault.DetailsOf(err)["status_code"])
}

func TestHTTPAdapterInvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>surprise</html>"))
	}))
	defer srv.Close()

	a, err := NewHTTPAdapter("", srv.URL)
	require.NoError(t, err)

	_, err = a.Call(context.Background(), "t", "m", nil)
	require.Error(t, err)
	assert.Equal(t, fault.CodeInvalidJSONOutput, fault.CodeOf(err))
}

func TestHTTPAdapterConnectionFailed(t *testing.T) {
	// Grab a port that nothing listens on.
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	a, err := NewHTTPAdapter("", url)
	require.NoError(t, err)

	_, err = a.Call(context.Background(), "t", "m", nil)
	require.Error(t, err)
	assert.Equal(t, fault.CodeConnectionFailed, fault.CodeOf(err))
}

func TestHTTPAdapterTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer srv.Close()

	a, err := NewHTTPAdapter("", srv.URL,
		WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}))
	require.NoError(t, err)

	_, err = a.Call(context.Background(), "t", "m", nil)
	require.Error(t, err)
	assert.Equal(t, fault.CodeTimeout, fault.CodeOf(err))
}

func TestHTTPAdapterErrorBodyRedacted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream rejected Bearer token-value-here"))
	}))
	defer srv.Close()

	a, err := NewHTTPAdapter("", srv.URL)
	require.NoError(t, err)

	_, err = a.Call(context.Background(), "t", "m", nil)
	require.Error(t, err)
	excerpt, _ := fault.DetailsOf(err)["body_excerpt"].(string)
	assert.NotContains(t, excerpt, "token-value-here")
}

func TestHTTPAdapterRequiresBaseURL(t *testing.T) {
	_, err := NewHTTPAdapter("x", "")
	assert.Error(t, err)
}
