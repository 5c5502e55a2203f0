package credential

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_GetIsCaseInsensitive(t *testing.T) {
	s := NewStore(map[string]string{
		"alphaVantage":    "av-key",
		"klarna.username": "merchant",
		"blank":           "",
	})

	v, ok := s.Get("alphavantage")
	require.True(t, ok)
	assert.Equal(t, "av-key", v)

	v, ok = s.Get("Klarna.Username")
	require.True(t, ok)
	assert.Equal(t, "merchant", v)

	_, ok = s.Get("blank")
	assert.False(t, ok, "empty values must not count as present")
	assert.Equal(t, 2, s.Len())
}

func TestStore_First(t *testing.T) {
	s := NewStore(map[string]string{"apiKey": "generic", "stripe.apiKey": "specific"})

	key, v, ok := s.First("stripe.accessToken", "stripe.apiKey", "apiKey")
	require.True(t, ok)
	assert.Equal(t, "stripe.apiKey", key)
	assert.Equal(t, "specific", v)

	_, _, ok = s.First("nothing", "here")
	assert.False(t, ok)
}

func TestStore_NilIsEmpty(t *testing.T) {
	var s *Store
	_, ok := s.Get("anything")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.Keys())
}

func TestStore_NeverPrintsSecrets(t *testing.T) {
	s := NewStore(map[string]string{"stripe": "sk_live_supersecret"})

	for _, out := range []string{
		s.String(),
		fmt.Sprintf("%v", s),
		fmt.Sprintf("%+v", s),
		fmt.Sprintf("%#v", s),
	} {
		assert.NotContains(t, out, "sk_live_supersecret")
		assert.Contains(t, out, "stripe")
	}

	var buf bytes.Buffer
	slog.New(slog.NewJSONHandler(&buf, nil)).Info("resolved", "credentials", s)
	assert.NotContains(t, buf.String(), "sk_live_supersecret")
	assert.Contains(t, buf.String(), `"count":1`)

	_, err := json.Marshal(s)
	assert.ErrorIs(t, err, ErrNotSerializable)
}
