// Package activation gates protocol features behind admin-scheduled
// activation heights.
package activation

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/tradelayer/tradelayer/types"
)

// Feature identifies a gated protocol capability.
type Feature uint16

const (
	FeatureDEx Feature = iota + 1
	FeatureMetaDEx
	FeatureContracts
	FeatureOracles
	FeatureChannels
	FeatureInstantTrade
	FeatureVesting
	FeatureNodeReward
	FeatureKYC
)

// DeactivatedBlock is the activation height written by a deactivation.
const DeactivatedBlock int64 = 999999999

var featureNames = map[Feature]string{
	FeatureDEx:          "dex",
	FeatureMetaDEx:      "metadex",
	FeatureContracts:    "contracts",
	FeatureOracles:      "oracles",
	FeatureChannels:     "channels",
	FeatureInstantTrade: "instant_trade",
	FeatureVesting:      "vesting",
	FeatureNodeReward:   "node_reward",
	FeatureKYC:          "kyc",
}

func (f Feature) String() string {
	if name, ok := featureNames[f]; ok {
		return name
	}
	return fmt.Sprintf("feature(%d)", uint16(f))
}

// AllFeatures lists every known feature in id order.
func AllFeatures() []Feature {
	fs := make([]Feature, 0, len(featureNames))
	for f := range featureNames {
		fs = append(fs, f)
	}
	sort.Slice(fs, func(i, j int) bool { return fs[i] < fs[j] })
	return fs
}

// ParseFeature resolves a feature by name.
func ParseFeature(name string) (Feature, error) {
	for f, n := range featureNames {
		if n == name {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFeature, name)
}

var (
	ErrNotAdmin            = errors.New("sender is not the governance admin")
	ErrUnknownFeature      = errors.New("unknown feature")
	ErrActivationInPast    = errors.New("activation block is in the past")
	ErrClientVersionTooLow = errors.New("client version below required minimum")
)

// Record is the activation state of one feature.
type Record struct {
	Feature          Feature `json:"feature"`
	ActivationBlock  int64   `json:"activation_block"`
	MinClientVersion uint64  `json:"min_client_version"`
}

// Registry tracks activations. The admin is fixed at genesis.
type Registry struct {
	admin         types.Address
	clientVersion uint64
	records       map[Feature]*Record
}

func NewRegistry(admin types.Address, clientVersion uint64) *Registry {
	return &Registry{
		admin:         admin,
		clientVersion: clientVersion,
		records:       make(map[Feature]*Record),
	}
}

// Admin returns the governance admin.
func (r *Registry) Admin() types.Address { return r.admin }

// IsAdmin reports whether addr is the governance admin.
func (r *Registry) IsAdmin(addr types.Address) bool { return addr == r.admin }

// Genesis activates f at height without the admin check.
func (r *Registry) Genesis(f Feature, height int64) error {
	if _, ok := featureNames[f]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownFeature, f)
	}
	r.records[f] = &Record{Feature: f, ActivationBlock: height}
	return nil
}

// Activate schedules f to switch on at block. block must not precede
// current.
func (r *Registry) Activate(sender types.Address, f Feature, block int64, minClientVersion uint64, current int64) error {
	if sender != r.admin {
		return ErrNotAdmin
	}
	if _, ok := featureNames[f]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownFeature, f)
	}
	if block < current {
		return fmt.Errorf("%w: %d < %d", ErrActivationInPast, block, current)
	}
	r.records[f] = &Record{Feature: f, ActivationBlock: block, MinClientVersion: minClientVersion}
	return nil
}

// Deactivate switches f off by moving its activation out of reach.
func (r *Registry) Deactivate(sender types.Address, f Feature) error {
	if sender != r.admin {
		return ErrNotAdmin
	}
	rec, ok := r.records[f]
	if !ok {
		if _, known := featureNames[f]; !known {
			return fmt.Errorf("%w: %d", ErrUnknownFeature, f)
		}
		rec = &Record{Feature: f}
		r.records[f] = rec
	}
	rec.ActivationBlock = DeactivatedBlock
	return nil
}

// IsActive reports whether f is live at height.
func (r *Registry) IsActive(f Feature, height int64) bool {
	rec, ok := r.records[f]
	return ok && rec.ActivationBlock != DeactivatedBlock && height >= rec.ActivationBlock
}

// CheckClientVersion fails when a feature activating at height requires a
// newer client than this one.
func (r *Registry) CheckClientVersion(height int64) error {
	for _, rec := range r.Records() {
		if rec.ActivationBlock == height && rec.MinClientVersion > r.clientVersion {
			return fmt.Errorf("%w: feature %s at block %d requires %d, running %d",
				ErrClientVersionTooLow, rec.Feature, height, rec.MinClientVersion, r.clientVersion)
		}
	}
	return nil
}

// Records returns all activation records ordered by feature.
func (r *Registry) Records() []Record {
	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Feature < out[j].Feature })
	return out
}

func (r *Registry) WriteConsensus(w io.Writer) {
	for _, rec := range r.Records() {
		fmt.Fprintf(w, "activation|%d|%d|%d\n", rec.Feature, rec.ActivationBlock, rec.MinClientVersion)
	}
}

func (r *Registry) Export() []Record { return r.Records() }

func (r *Registry) Import(records []Record) {
	r.records = make(map[Feature]*Record, len(records))
	for _, rec := range records {
		rec := rec
		r.records[rec.Feature] = &rec
	}
}
