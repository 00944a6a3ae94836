package poolmanager

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"ammrelay/ledger"
)

// candidateFile is the TOML shape of the discoverable-pool candidate list
// (spec §4.5 discover_pools_on_chain, Open Question Q3): a flat, ops-managed
// list of storage-account addresses to probe for token pairs, kept separate
// from the service's main YAML config since it changes by playbook rather
// than by redeploy.
type candidateFile struct {
	Pools []string `toml:"pools"`
}

// LoadCandidates reads a candidate-pool TOML file and decodes every address
// through the ledger adapter, rejecting the whole file on the first
// malformed address so a typo in an ops playbook fails loudly at load time
// rather than silently skipping a pool.
func LoadCandidates(path string) ([]ledger.Account, error) {
	var f candidateFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("poolmanager: decode candidate file: %w", err)
	}
	out := make([]ledger.Account, 0, len(f.Pools))
	for _, addr := range f.Pools {
		account, err := ledger.AccountFromAddress(addr)
		if err != nil {
			return nil, fmt.Errorf("poolmanager: candidate address %q: %w", addr, err)
		}
		out = append(out, account)
	}
	return out, nil
}
