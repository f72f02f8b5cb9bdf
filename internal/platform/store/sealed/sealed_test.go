package sealed_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/store/sealed"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/store/testutil"
)

var (
	testKey = bytes.Repeat([]byte{0x42}, 32)
	fields  = map[string][]string{"sophi_settings": {"sophi_client_secret"}}
)

func TestNew_RejectsShortKey(t *testing.T) {
	_, err := sealed.New(testutil.NewMemoryStore(), []byte("short"), fields)
	require.Error(t, err)
}

func TestUpdateOption_SealsConfiguredFields(t *testing.T) {
	ctx := context.Background()
	backend := testutil.NewMemoryStore()
	s, err := sealed.New(backend, testKey, fields)
	require.NoError(t, err)

	require.NoError(t, s.UpdateOption(ctx, "sophi_settings", []byte(testutil.SettingsDoc)))

	raw := backend.Options["sophi_settings"]
	assert.NotContains(t, string(raw), "s3cret", "plaintext secret reached the backend")

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.True(t, sealed.IsSealed(doc["sophi_client_secret"].(string)))
	assert.Equal(t, "collector.sophi.io", doc["collector_url"], "unlisted fields stay readable")

	got, err := s.GetOption(ctx, "sophi_settings")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(got, &doc))
	assert.Equal(t, "s3cret", doc["sophi_client_secret"])
	assert.EqualValues(t, 1, doc["query_integration"])
}

func TestUpdateOption_NonceIsFresh(t *testing.T) {
	ctx := context.Background()
	backend := testutil.NewMemoryStore()
	s, err := sealed.New(backend, testKey, fields)
	require.NoError(t, err)

	require.NoError(t, s.UpdateOption(ctx, "sophi_settings", []byte(testutil.SettingsDoc)))
	first := string(backend.Options["sophi_settings"])
	require.NoError(t, s.UpdateOption(ctx, "sophi_settings", []byte(testutil.SettingsDoc)))
	second := string(backend.Options["sophi_settings"])

	assert.NotEqual(t, first, second)
}

func TestGetOption_PlaintextPassthrough(t *testing.T) {
	ctx := context.Background()
	backend := testutil.NewMemoryStore()
	backend.Options["sophi_settings"] = []byte(testutil.SettingsDoc)

	s, err := sealed.New(backend, testKey, fields)
	require.NoError(t, err)

	got, err := s.GetOption(ctx, "sophi_settings")
	require.NoError(t, err)
	assert.JSONEq(t, testutil.SettingsDoc, string(got))
}

func TestGetOption_WrongKey(t *testing.T) {
	ctx := context.Background()
	backend := testutil.NewMemoryStore()

	writer, err := sealed.New(backend, testKey, fields)
	require.NoError(t, err)
	require.NoError(t, writer.UpdateOption(ctx, "sophi_settings", []byte(testutil.SettingsDoc)))

	reader, err := sealed.New(backend, bytes.Repeat([]byte{0x01}, 32), fields)
	require.NoError(t, err)

	_, err = reader.GetOption(ctx, "sophi_settings")
	require.Error(t, err)
	assert.True(t, errors.Is(err, sealed.ErrDecrypt))
}

func TestGetOption_FieldBoundToOption(t *testing.T) {
	ctx := context.Background()
	backend := testutil.NewMemoryStore()
	both := map[string][]string{
		"sophi_settings": {"sophi_client_secret"},
		"other":          {"sophi_client_secret"},
	}
	s, err := sealed.New(backend, testKey, both)
	require.NoError(t, err)
	require.NoError(t, s.UpdateOption(ctx, "sophi_settings", []byte(testutil.SettingsDoc)))

	// A sealed value copied under another option name must not open.
	backend.Options["other"] = backend.Options["sophi_settings"]
	_, err = s.GetOption(ctx, "other")
	assert.ErrorIs(t, err, sealed.ErrDecrypt)
}

func TestUnlistedOptionsPassThrough(t *testing.T) {
	ctx := context.Background()
	backend := testutil.NewMemoryStore()
	s, err := sealed.New(backend, testKey, fields)
	require.NoError(t, err)

	require.NoError(t, s.UpdateOption(ctx, "not_json", []byte("plain text")))
	got, err := s.GetOption(ctx, "not_json")
	require.NoError(t, err)
	assert.Equal(t, "plain text", string(got))

	names, err := s.ListOptions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"not_json"}, names)

	require.NoError(t, s.DeleteOption(ctx, "not_json"))
	assert.Empty(t, backend.Options)
}

func TestUpdateOption_RejectsNonObject(t *testing.T) {
	s, err := sealed.New(testutil.NewMemoryStore(), testKey, fields)
	require.NoError(t, err)

	err = s.UpdateOption(context.Background(), "sophi_settings", []byte(`["array"]`))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "not a JSON object"))
}

func TestUpdateOption_PrefixedInputIsStillSealed(t *testing.T) {
	ctx := context.Background()
	backend := testutil.NewMemoryStore()
	s, err := sealed.New(backend, testKey, fields)
	require.NoError(t, err)

	const typed = "SEALED:v1:abc"
	require.NoError(t, s.UpdateOption(ctx, "sophi_settings", []byte(`{"sophi_client_secret":"SEALED:v1:abc"}`)))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(backend.Options["sophi_settings"], &doc))
	stored := doc["sophi_client_secret"].(string)
	assert.True(t, sealed.IsSealed(stored))
	assert.NotEqual(t, typed, stored, "prefixed input must be encrypted, not stored verbatim")

	got, err := s.GetOption(ctx, "sophi_settings")
	require.NoError(t, err, "the record must stay readable")
	require.NoError(t, json.Unmarshal(got, &doc))
	assert.Equal(t, typed, doc["sophi_client_secret"])

	// Saving what was read back round-trips again.
	require.NoError(t, s.UpdateOption(ctx, "sophi_settings", got))
	got, err = s.GetOption(ctx, "sophi_settings")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(got, &doc))
	assert.Equal(t, typed, doc["sophi_client_secret"])
}
