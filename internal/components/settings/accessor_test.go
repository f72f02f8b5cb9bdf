package settings_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MahdiBaghbani/sophi-admin-go/internal/components/settings"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/store/testutil"
)

func TestAccessor_NothingSaved(t *testing.T) {
	st := testutil.NewMemoryStore()
	reg := settings.NewRegistry(fixedDomain("news.example"))
	a := settings.NewAccessor(st, reg)

	rec, err := a.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, reg.Defaults(), rec)
}

func TestAccessor_PersistedWinsEvenWhenEmpty(t *testing.T) {
	st := testutil.NewMemoryStore()
	st.Options[settings.OptionName] = []byte(`{"collector_url":"","environment":"dev","query_integration":0,"legacy_key":"x"}`)
	a := settings.NewAccessor(st, settings.NewRegistry(fixedDomain("news.example")))

	rec, err := a.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "", rec.CollectorURL)
	assert.Equal(t, settings.EnvDevelopment, rec.Environment)
	assert.Equal(t, 0, rec.QueryIntegration)
	assert.Equal(t, "news.example", rec.TrackerClientID, "keys never saved take the default")
}

func TestAccessor_WeaklyTypedValues(t *testing.T) {
	st := testutil.NewMemoryStore()
	st.Options[settings.OptionName] = []byte(`{"query_integration":"1","sophi_client_id":"abc"}`)
	a := settings.NewAccessor(st, settings.NewRegistry(nil))

	rec, err := a.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rec.QueryIntegration)
	assert.Equal(t, "abc", rec.ClientID)
}

func TestAccessor_Value(t *testing.T) {
	st := testutil.NewMemoryStore()
	st.Options[settings.OptionName] = []byte(`{"sophi_curator_url":"https://c.io"}`)
	a := settings.NewAccessor(st, settings.NewRegistry(nil))
	ctx := context.Background()

	v, err := a.Value(ctx, settings.KeyCuratorURL)
	require.NoError(t, err)
	assert.Equal(t, "https://c.io", v)

	v, err = a.Value(ctx, settings.KeyCollectorURL)
	require.NoError(t, err)
	assert.Equal(t, "collector.sophi.io", v)

	_, err = a.Value(ctx, "unknown")
	assert.ErrorIs(t, err, settings.ErrUnknownField)
}

func TestAccessor_Errors(t *testing.T) {
	st := testutil.NewMemoryStore()
	a := settings.NewAccessor(st, settings.NewRegistry(nil))

	st.Options[settings.OptionName] = []byte(`not json`)
	_, err := a.Get(context.Background())
	assert.Error(t, err)

	boom := errors.New("disk on fire")
	st.Err = boom
	_, err = a.Get(context.Background())
	assert.ErrorIs(t, err, boom)
}
