package redact

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapScrubsSensitiveKeys(t *testing.T) {
	r := NewDefault()
	out := r.Map(map[string]any{
		"api_key":  "abc123",
		"token":    "tok",
		"PASSWORD": "hunter2",
		"path":     "/tmp/ok",
	})
	assert.Equal(t, Placeholder, out["api_key"])
	assert.Equal(t, Placeholder, out["token"])
	assert.Equal(t, Placeholder, out["PASSWORD"])
	assert.Equal(t, "/tmp/ok", out["path"])
}

func TestMapScrubsNested(t *testing.T) {
	r := NewDefault()
	out := r.Map(map[string]any{
		"config": map[string]any{
			"client_secret": "shh",
			"region":        "eu-west-1",
		},
		"items": []any{
			map[string]any{"auth_token": "t"},
			"plain",
		},
	})
	nested := out["config"].(map[string]any)
	assert.Equal(t, Placeholder, nested["client_secret"])
	assert.Equal(t, "eu-west-1", nested["region"])

	items := out["items"].([]any)
	assert.Equal(t, Placeholder, items[0].(map[string]any)["auth_token"])
	assert.Equal(t, "plain", items[1])
}

func TestMapDoesNotMutateInput(t *testing.T) {
	r := NewDefault()
	in := map[string]any{"secret": "original"}
	_ = r.Map(in)
	assert.Equal(t, "original", in["secret"])
}

func TestTextScrubsBearerTokens(t *testing.T) {
	r := NewDefault()
	assert.Equal(t,
		"header Authorization: Bearer "+Placeholder,
		r.Text("header Authorization: Bearer abc.def-ghi"))
}

func TestTextKeepsKeyNameForAssignments(t *testing.T) {
	r := NewDefault()
	out := r.Text("AWS_SECRET_ACCESS_KEY=wJalrXUtnFEMI")
	assert.Equal(t, "AWS_SECRET_ACCESS_KEY="+Placeholder, out)
}

func TestTextScrubsKeyPrefixes(t *testing.T) {
	r := NewDefault()
	out := r.Text("using sk-abcdefghijklmnop1234 for auth")
	assert.NotContains(t, out, "sk-abcdefghijklmnop1234")
	assert.Contains(t, out, Placeholder)
}

func TestContainsSensitiveKey(t *testing.T) {
	r := NewDefault()
	assert.True(t, r.ContainsSensitiveKey(map[string]any{
		"outer": map[string]any{"api_key": "x"},
	}))
	assert.False(t, r.ContainsSensitiveKey(map[string]any{"name": "x"}))
}

func TestNilMap(t *testing.T) {
	r := NewDefault()
	assert.Nil(t, r.Map(nil))
}
