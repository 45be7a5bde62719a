package state

import (
	"crypto/sha256"
	"io"
)

// WriteConsensus writes the canonical line form of every engine, in a fixed
// order. Heights and chain hashes are left out so that two nodes holding
// the same books agree regardless of where they are in the chain.
func (state *State) WriteConsensus(w io.Writer) {
	state.Ledger.WriteConsensus(w)
	state.DEx.WriteConsensus(w)
	state.MetaDEx.WriteConsensus(w)
	state.Contracts.WriteConsensus(w)
	state.Channels.WriteConsensus(w)
	state.KYC.WriteConsensus(w)
	state.Activation.WriteConsensus(w)
	state.Vesting.WriteConsensus(w)
	state.NodeReward.WriteConsensus(w)
}

// Hash returns the SHA-256 consensus hash of the current contents.
func (state *State) Hash() []byte {
	h := sha256.New()
	state.WriteConsensus(h)
	return h.Sum(nil)
}
