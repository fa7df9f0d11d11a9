package cache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecode_RoundTripsJSON(t *testing.T) {
	t.Parallel()

	type payload struct {
		Name string `json:"name"`
	}
	raw, err := EncodeJSON(payload{Name: "example"})
	require.NoError(t, err)

	var got payload
	ok := Decode(raw, &got)
	require.True(t, ok)
	require.Equal(t, "example", got.Name)
}

func TestDecode_FallsBackOnNonUTF8(t *testing.T) {
	t.Parallel()

	raw := []byte{0xff, 0xfe, 0x00, 0x01}
	var got map[string]any
	ok := Decode(raw, &got)
	require.False(t, ok)
}

func TestDecode_FallsBackOnNonJSONText(t *testing.T) {
	t.Parallel()

	raw := []byte("not json at all")
	var got map[string]any
	ok := Decode(raw, &got)
	require.False(t, ok)
}
