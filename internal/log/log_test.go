package log

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactURL(t *testing.T) {
	cases := map[string]string{
		"https://example.com/path/private.ics?token=abcd": "https://example.com/...(redacted)",
		"https://api.example.com?apikey=secret":           "https://api.example.com/...(redacted)",
		"http://host":                                     "http://host/...(redacted)",
		"not a url":                                       "url://...(redacted)",
	}
	for in, want := range cases {
		assert.Equal(t, want, RedactURL(in), in)
	}
}

func TestEvenKVsDropsDanglingAndNonStringKeys(t *testing.T) {
	out := evenKVs([]any{"a", 1, 2, "x", "dangling"})
	assert.Equal(t, []any{"a", 1}, out)
	assert.Nil(t, evenKVs(nil))
}

func TestInitRejectsUnknownSettings(t *testing.T) {
	require.Error(t, Init(Config{Level: "loud"}))
	require.Error(t, Init(Config{Encoding: "xml"}))
	require.NoError(t, Init(Config{Level: "debug", Encoding: "console"}))

	// Must not panic with odd kv lists.
	Info("info", "k")
	Error("boom", errors.New("x"), "provider", "test")
	SetLevel(LevelError)
	Debug("hidden")
}

func TestNamed(t *testing.T) {
	l := Named("cron")
	require.NotNil(t, l)
	assert.Equal(t, "cron", l.Desugar().Name())
}
