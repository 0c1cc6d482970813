/*

This file contains the protocol profile summarized into a trust score, and the per-pool chart history.

*/

package types

import "time"

// UpgradeAuthority is who can change a protocol's contracts.
type UpgradeAuthority string

const (
	UpgradeAuthorityImmutable UpgradeAuthority = "immutable"
	UpgradeAuthorityTimelock  UpgradeAuthority = "timelock"
	UpgradeAuthorityMultisig  UpgradeAuthority = "multisig"
	UpgradeAuthorityEOA       UpgradeAuthority = "eoa"
	UpgradeAuthorityUnknown   UpgradeAuthority = "unknown"
)

type ProtocolProfile struct {
	Slug             string           `json:"slug"`       // e.g., "aave-v3"
	Name             string           `json:"name"`       // e.g., "Aave V3"
	AuditCount       int              `json:"auditCount"` // e.g., 2
	ListedAt         time.Time        `json:"listedAt"`   // zero when unknown
	UpgradeAuthority UpgradeAuthority `json:"upgradeAuthority"`
}

// ApyPoint is one sample of a pool's chart history.
type ApyPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Apy       float64   `json:"apy"`
	TvlUsd    float64   `json:"tvlUsd"`
}
