package ledger

import "github.com/google/uuid"

// Config is the deployment-wide risk and fee parameter singleton. It is
// created exactly once by initialize_config and never mutated afterwards —
// there is no update instruction.
//
// BaseAsset is the optional accepted-currency designator (nil = native
// currency). It is stored verbatim and informational only: the ledger settles
// a single native-currency unit. HouseCutBps is likewise reserved.
type Config struct {
	Authority        uuid.UUID
	BaseAsset        *string
	FeeBps           uint64 // platform cut on winnings, basis points
	HouseCutBps      uint64 // reserved
	MinBet           uint64 // inclusive
	MaxBet           uint64 // inclusive
	MaxOddsBps       uint64 // upper bound on decimal odds, x10000
	MaxMultiplierBps uint64 // upper bound on leverage multiplier, x10000
	FeeDestination   *uuid.UUID
}

// Clone returns a defensive copy for emission to projection consumers.
func (c *Config) Clone() *Config {
	cp := *c
	if c.BaseAsset != nil {
		s := *c.BaseAsset
		cp.BaseAsset = &s
	}
	if c.FeeDestination != nil {
		id := *c.FeeDestination
		cp.FeeDestination = &id
	}
	return &cp
}
