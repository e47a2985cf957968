// Package registry holds the static table of supported settlement
// networks. Resolve is the single enforcement point for "only these
// chains are supported": every other component fails with
// unsupported_network when a chain id is not in the table.
package registry

import (
	"fmt"
	"sort"

	"github.com/lava-payment/lavapay-go/types"
)

// Supported chain ids.
const (
	PlasmaMainnetChainID int64 = 9745
	PlasmaTestnetChainID int64 = 9746
)

type Registry struct {
	entries map[int64]types.NetworkEntry
	primary int64
}

// New builds a registry from the given entries. The primary chain is the
// default applied to invoices that omit a chainId; it must be one of the
// entries.
func New(primary int64, entries ...types.NetworkEntry) (*Registry, error) {
	m := make(map[int64]types.NetworkEntry, len(entries))
	for _, e := range entries {
		m[e.ChainID] = e
	}
	if _, ok := m[primary]; !ok {
		return nil, &types.PayError{
			Code:    types.ErrConfigError,
			Message: fmt.Sprintf("primary chain %d is not among the registered networks", primary),
		}
	}
	return &Registry{entries: m, primary: primary}, nil
}

// Default returns the registry for the Plasma networks, with mainnet as
// the primary chain.
func Default() *Registry {
	r, _ := New(PlasmaMainnetChainID, plasmaMainnet, plasmaTestnet)
	return r
}

// Resolve looks up a network entry by chain id.
func (r *Registry) Resolve(chainID int64) (types.NetworkEntry, error) {
	entry, ok := r.entries[chainID]
	if !ok {
		return types.NetworkEntry{}, &types.PayError{
			Code:    types.ErrUnsupportedNetwork,
			Message: fmt.Sprintf("unsupported network: %d", chainID),
			Data:    map[string]int64{"chainId": chainID},
		}
	}
	return entry, nil
}

// PrimaryChainID returns the default chain for invoices without an
// explicit chainId.
func (r *Registry) PrimaryChainID() int64 {
	return r.primary
}

// Entries returns all registered networks ordered by chain id.
func (r *Registry) Entries() []types.NetworkEntry {
	out := make([]types.NetworkEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChainID < out[j].ChainID })
	return out
}

// ExplorerTxURL returns the block-explorer page for a transaction on the
// given chain.
func (r *Registry) ExplorerTxURL(chainID int64, txID string) (string, error) {
	entry, err := r.Resolve(chainID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/tx/%s", entry.ExplorerBaseURL, txID), nil
}

var plasmaMainnet = types.NetworkEntry{
	ChainID:     PlasmaMainnetChainID,
	Name:        "Plasma Mainnet Beta",
	DisplayName: "Plasma network",
	NativeCurrency: types.NativeCurrency{
		Name:     "XPL",
		Symbol:   "XPL",
		Decimals: 18,
	},
	RPCEndpoints:         []string{"https://rpc.plasma.to"},
	TokenContractAddress: "0xB8CE59FC3717ada4C02eaDF9682A9e934F625ebb",
	ExplorerBaseURL:      "https://plasmascan.to",
}

var plasmaTestnet = types.NetworkEntry{
	ChainID:     PlasmaTestnetChainID,
	Name:        "Plasma Testnet",
	DisplayName: "Plasma Testnet",
	NativeCurrency: types.NativeCurrency{
		Name:     "XPL",
		Symbol:   "XPL",
		Decimals: 18,
	},
	RPCEndpoints:         []string{"https://testnet-rpc.plasma.to"},
	TokenContractAddress: "0x502012b361AebCE43b26Ec812B74D9a51dB4D412",
	ExplorerBaseURL:      "https://testnet.plasmascan.to",
}
