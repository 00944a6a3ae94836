package ledger

import "encoding/json"

// LPTokenMetadataType is the metadata discriminator used to recognise an LP
// token's account metadata among arbitrary ledger tokens (spec §4.2).
const LPTokenMetadataType = "LP_TOKEN"

// LPTokenMetadata is the UTF-8 JSON payload attached to the metadata of every
// LP token this coordinator mints, binding it back to its pool.
type LPTokenMetadata struct {
	Type     string `json:"type"`
	Pool     string `json:"pool"`
	TokenA   string `json:"tokenA"`
	TokenB   string `json:"tokenB"`
	Decimals uint8  `json:"decimals"`
}

// EncodeLPTokenMetadata serialises the metadata payload for SetMetadata.
func EncodeLPTokenMetadata(pool, tokenA, tokenB Account, decimals uint8) ([]byte, error) {
	meta := LPTokenMetadata{
		Type:     LPTokenMetadataType,
		Pool:     pool.String(),
		TokenA:   tokenA.String(),
		TokenB:   tokenB.String(),
		Decimals: decimals,
	}
	return json.Marshal(meta)
}

// DecodeLPTokenMetadata attempts to parse metadata bytes as the LP-token
// schema. It returns ok=false (not an error) for metadata that simply isn't
// an LP token, since that is the expected, common case when scanning a
// user's balances for positions (spec §4.5 user_positions step 2).
func DecodeLPTokenMetadata(data []byte) (meta LPTokenMetadata, ok bool) {
	if len(data) == 0 {
		return LPTokenMetadata{}, false
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return LPTokenMetadata{}, false
	}
	if meta.Type != LPTokenMetadataType {
		return LPTokenMetadata{}, false
	}
	return meta, true
}
