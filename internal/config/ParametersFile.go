/*

This file loads the optional engine parameters file. Values present in the file override
DefaultEngineParameters, anything missing keeps its default.

Example:

	parameters:
	  weights:
	    tvl: 0.35
	    apy_sustainability: 0.20
	  tolerance_ceilings:
	    conservative: 30
	stablecoins: [USDM, DOLA]
	protocol_status:
	  some-protocol:
	    status: warning
	    message: "Oracle incident under investigation"
	upgrade_authority:
	  aave-v3: timelock

*/

package config

import (
	"fmt"
	"strings"

	"github.com/elys-network/curate/internal/types"
	"github.com/spf13/viper"
)

// ProtocolStatusOverride forces a lifecycle status onto every pool of a protocol.
type ProtocolStatusOverride struct {
	Status  types.PoolStatus `mapstructure:"status"`
	Message string           `mapstructure:"message"`
}

// EngineFile is the parsed parameters file.
type EngineFile struct {
	Parameters       types.EngineParameters            `mapstructure:"parameters"`
	Stablecoins      []string                          `mapstructure:"stablecoins"`
	ProtocolStatus   map[string]ProtocolStatusOverride `mapstructure:"protocol_status"`
	UpgradeAuthority map[string]types.UpgradeAuthority `mapstructure:"upgrade_authority"`
}

// LoadEngineFile reads the parameters file at path over the defaults.
// An empty path returns the defaults unchanged.
func LoadEngineFile(path string) (*EngineFile, error) {
	file := &EngineFile{
		Parameters:       DefaultEngineParameters,
		ProtocolStatus:   map[string]ProtocolStatusOverride{},
		UpgradeAuthority: map[string]types.UpgradeAuthority{},
	}
	if path == "" {
		return file, nil
	}

	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read parameters file: %w", err)
	}

	// Unmarshal decodes into the prefilled struct so missing keys keep their defaults
	if err := v.Unmarshal(file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal parameters file: %w", err)
	}

	if err := file.Validate(); err != nil {
		return nil, err
	}
	return file, nil
}

// Validate checks the parameters and the override tables.
func (f *EngineFile) Validate() error {
	if err := f.Parameters.Validate(); err != nil {
		return fmt.Errorf("invalid parameters: %w", err)
	}
	for slug, o := range f.ProtocolStatus {
		if !o.Status.Valid() {
			return fmt.Errorf("protocol_status.%s.status must be one of: active, warning, deprecated", slug)
		}
	}
	for slug, a := range f.UpgradeAuthority {
		switch a {
		case types.UpgradeAuthorityImmutable, types.UpgradeAuthorityTimelock, types.UpgradeAuthorityMultisig,
			types.UpgradeAuthorityEOA, types.UpgradeAuthorityUnknown:
		default:
			return fmt.Errorf("upgrade_authority.%s must be one of: immutable, timelock, multisig, eoa, unknown", slug)
		}
	}
	return nil
}

// RegisterStablecoins adds the file's extra stablecoin symbols to StablecoinSymbols.
// It must be called before the catalog is fetched.
func (f *EngineFile) RegisterStablecoins() {
	for _, s := range f.Stablecoins {
		StablecoinSymbols[strings.ToUpper(strings.TrimSpace(s))] = true
	}
}
