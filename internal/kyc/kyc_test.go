package kyc_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tradelayer/tradelayer/internal/kyc"
	"github.com/tradelayer/tradelayer/types"
)

func TestAttestations(t *testing.T) {
	r := kyc.NewRegistry()
	provider := types.Address("provider")
	user := types.Address("user")

	_, err := r.Attest(provider, user, 1)
	require.ErrorIs(t, err, kyc.ErrNotProvider)

	id, err := r.Register(provider, "acme", "https://acme.example", 1)
	require.NoError(t, err)
	require.EqualValues(t, 1, id)
	_, err = r.Register(provider, "acme", "", 2)
	require.ErrorIs(t, err, kyc.ErrAlreadyRegistered)

	got, err := r.Attest(provider, user, 2)
	require.NoError(t, err)
	require.EqualValues(t, 1, got)

	self, err := r.Attest(user, user, 3)
	require.NoError(t, err)
	require.Equal(t, kyc.SelfAttestationID, self)
	require.Equal(t, []int64{0, 1}, r.IDs(user))

	require.NoError(t, r.Revoke(provider, user))
	require.ErrorIs(t, r.Revoke(provider, user), kyc.ErrNoAttestation)
	require.Equal(t, []int64{0}, r.IDs(user))
}

func TestIsAllowed(t *testing.T) {
	r := kyc.NewRegistry()
	provider := types.Address("provider")
	attested := types.Address("attested")
	stranger := types.Address("stranger")

	_, err := r.Register(provider, "acme", "", 1)
	require.NoError(t, err)
	_, err = r.Attest(provider, attested, 1)
	require.NoError(t, err)

	testCases := map[string]struct {
		addr      types.Address
		allowList []int64
		allowed   bool
	}{
		"empty list allows all":    {stranger, nil, true},
		"attested in list":         {attested, []int64{1}, true},
		"attested not in list":     {attested, []int64{0, 2}, false},
		"stranger restricted":      {stranger, []int64{0, 1}, false},
		"system address always ok": {types.FeeCacheAddress, []int64{1}, true},
	}

	for name, tc := range testCases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			require.Equal(t, tc.allowed, r.IsAllowed(tc.addr, tc.allowList))
		})
	}

	require.ErrorIs(t, r.Check([]int64{1}, attested, stranger), kyc.ErrNotAllowed)
	require.NoError(t, r.Check([]int64{1}, attested))
}

func TestExportImport(t *testing.T) {
	r := kyc.NewRegistry()
	_, err := r.Register("p1", "one", "", 1)
	require.NoError(t, err)
	_, err = r.Register("p2", "two", "", 2)
	require.NoError(t, err)
	_, err = r.Attest("p2", "u", 3)
	require.NoError(t, err)

	restored := kyc.NewRegistry()
	restored.Import(r.Export())
	require.Equal(t, r.Export(), restored.Export())

	id, err := restored.Register("p3", "three", "", 4)
	require.NoError(t, err)
	require.EqualValues(t, 3, id)
	require.True(t, restored.IsAllowed("u", []int64{2}))
}
