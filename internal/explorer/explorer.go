// Package explorer builds block-explorer links for transactions and accounts.
package explorer

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Explorer names a supported block explorer.
type Explorer string

const (
	SolanaExplorer Explorer = "solanaExplorer"
	Solscan        Explorer = "solscan"
	SolanaBeach    Explorer = "solanaBeach"
	SolanaFM       Explorer = "solanaFm"
)

// Cluster names a Solana cluster.
type Cluster string

const (
	MainnetBeta Cluster = "mainnet-beta"
	Devnet      Cluster = "devnet"
	Localnet    Cluster = "localnet"
)

var ErrUnknownExplorer = errors.New("explorer: unknown explorer")

type site struct {
	name    string
	tx      string
	account string
	// clusterParam is appended for non-mainnet clusters.
	clusterParam string
}

var sites = map[Explorer]site{
	SolanaExplorer: {name: "Solana Explorer", tx: "https://explorer.solana.com/tx/", account: "https://explorer.solana.com/address/", clusterParam: "?cluster="},
	Solscan:        {name: "Solscan", tx: "https://solscan.io/tx/", account: "https://solscan.io/account/", clusterParam: "?cluster="},
	SolanaBeach:    {name: "Solana Beach", tx: "https://solanabeach.io/transaction/", account: "https://solanabeach.io/address/", clusterParam: "?cluster="},
	SolanaFM:       {name: "SolanaFM", tx: "https://solana.fm/tx/", account: "https://solana.fm/address/", clusterParam: "?cluster="},
}

// Names lists the display names of all explorers keyed by id.
func Names() map[Explorer]string {
	out := make(map[Explorer]string, len(sites))
	for k, v := range sites {
		out[k] = v.name
	}
	return out
}

// Valid reports whether e is a known explorer.
func (e Explorer) Valid() bool {
	_, ok := sites[e]
	return ok
}

// Links builds URLs for one cluster and explorer preference.
type Links struct {
	cluster  Cluster
	explorer Explorer
	// rpcURL is passed to the explorer for localnet clusters.
	rpcURL string
}

// New returns Links for cluster and explorer.
func New(cluster Cluster, explorer Explorer, rpcURL string) (Links, error) {
	if !explorer.Valid() {
		return Links{}, fmt.Errorf("%w: %q", ErrUnknownExplorer, explorer)
	}
	return Links{cluster: cluster, explorer: explorer, rpcURL: rpcURL}, nil
}

// WithExplorer returns a copy using a different explorer. Unknown explorers
// keep the current one.
func (l Links) WithExplorer(e Explorer) Links {
	if e.Valid() {
		l.explorer = e
	}
	return l
}

// Tx returns the transaction URL for a base58 signature.
func (l Links) Tx(txID string) (string, error) {
	if _, err := solana.SignatureFromBase58(txID); err != nil {
		return "", fmt.Errorf("explorer: invalid signature %q: %w", txID, err)
	}
	s := sites[l.explorer]
	return s.tx + txID + l.suffix(s), nil
}

// Account returns the account URL for a base58 address.
func (l Links) Account(address string) (string, error) {
	if _, err := solana.PublicKeyFromBase58(address); err != nil {
		return "", fmt.Errorf("explorer: invalid address %q: %w", address, err)
	}
	s := sites[l.explorer]
	return s.account + address + l.suffix(s), nil
}

func (l Links) suffix(s site) string {
	switch l.cluster {
	case MainnetBeta, "":
		return ""
	case Localnet:
		return s.clusterParam + "custom&customUrl=" + l.rpcURL
	default:
		return s.clusterParam + string(l.cluster)
	}
}
