package version

var (
	// GitCommit is the current HEAD set using ldflags.
	GitCommit string

	// Version is the built softwares version.
	Version string = TLCoreSemVer
)

func init() {
	if GitCommit != "" {
		Version += "-" + GitCommit
	}
}

const (
	// TLCoreSemVer is the current version of the TradeLayer node.
	// It's the Semantic Version of the software.
	TLCoreSemVer = "0.4.0"
)

// Protocol is used for implementation agnostic versioning.
type Protocol uint64

// Uint64 returns the Protocol version as a uint64.
func (p Protocol) Uint64() uint64 {
	return uint64(p)
}

var (
	// ClientVersion is compared against the minimum client version of
	// feature activations. A node running an older client halts at the
	// activation height.
	ClientVersion Protocol = 4

	// StateProtocol versions the persisted state layout.
	StateProtocol Protocol = 1
)
