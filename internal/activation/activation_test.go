package activation_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tradelayer/tradelayer/internal/activation"
)

func TestActivateDeactivate(t *testing.T) {
	r := activation.NewRegistry("admin", 1)

	require.False(t, r.IsActive(activation.FeatureMetaDEx, 100))
	require.ErrorIs(t, r.Activate("mallory", activation.FeatureMetaDEx, 120, 0, 100), activation.ErrNotAdmin)
	require.ErrorIs(t, r.Activate("admin", activation.FeatureMetaDEx, 99, 0, 100), activation.ErrActivationInPast)
	require.ErrorIs(t, r.Activate("admin", activation.Feature(999), 120, 0, 100), activation.ErrUnknownFeature)

	require.NoError(t, r.Activate("admin", activation.FeatureMetaDEx, 120, 0, 100))
	require.False(t, r.IsActive(activation.FeatureMetaDEx, 119))
	require.True(t, r.IsActive(activation.FeatureMetaDEx, 120))

	require.ErrorIs(t, r.Deactivate("mallory", activation.FeatureMetaDEx), activation.ErrNotAdmin)
	require.NoError(t, r.Deactivate("admin", activation.FeatureMetaDEx))
	require.False(t, r.IsActive(activation.FeatureMetaDEx, 200))
	require.Equal(t, activation.DeactivatedBlock, r.Records()[0].ActivationBlock)
	require.False(t, r.IsActive(activation.FeatureMetaDEx, activation.DeactivatedBlock))
}

func TestClientVersion(t *testing.T) {
	r := activation.NewRegistry("admin", 2)
	require.NoError(t, r.Activate("admin", activation.FeatureChannels, 50, 2, 10))
	require.NoError(t, r.Activate("admin", activation.FeatureOracles, 60, 3, 10))

	require.NoError(t, r.CheckClientVersion(50))
	require.NoError(t, r.CheckClientVersion(59))
	require.ErrorIs(t, r.CheckClientVersion(60), activation.ErrClientVersionTooLow)
}

func TestParseFeature(t *testing.T) {
	for _, f := range activation.AllFeatures() {
		parsed, err := activation.ParseFeature(f.String())
		require.NoError(t, err)
		require.Equal(t, f, parsed)
	}
	_, err := activation.ParseFeature("teleport")
	require.ErrorIs(t, err, activation.ErrUnknownFeature)
}

func TestExportImport(t *testing.T) {
	r := activation.NewRegistry("admin", 1)
	require.NoError(t, r.Genesis(activation.FeatureDEx, 0))
	require.NoError(t, r.Activate("admin", activation.FeatureKYC, 5, 1, 1))

	restored := activation.NewRegistry("admin", 1)
	restored.Import(r.Export())
	require.Equal(t, r.Records(), restored.Records())
	require.True(t, restored.IsActive(activation.FeatureKYC, 5))
}
