package server

import (
	"encoding/hex"
	"fmt"

	"lukechampine.com/blake3"
)

// auditDigest hashes an admin-mutation record (pool address, caller, the
// field being changed, and its new value) with blake3, the same digest
// shape ledger.OperatorKey.Sign expects. It gives every update_fee/
// update_status call a compact, content-addressed identifier independent
// of wall-clock time, suitable for correlating a mutation across logs and
// an optional operator signature.
func auditDigest(poolAddress, caller, field, value string) [32]byte {
	record := fmt.Sprintf("anchor-mutation|%s|%s|%s|%s", poolAddress, caller, field, value)
	return blake3.Sum256([]byte(record))
}

// recordAdminMutation emits a structured audit log line for an admin
// mutation, attaching the request ID and, when the server holds an
// operator key, a secp256k1 signature over the mutation's digest.
func (s *Server) recordAdminMutation(requestID, poolAddress, caller, field, value string) {
	digest := auditDigest(poolAddress, caller, field, value)
	attrs := []any{
		"request_id", requestID,
		"pool_address", poolAddress,
		"caller", caller,
		"field", field,
		"value", value,
		"digest", hex.EncodeToString(digest[:]),
	}
	if s.cfg.OperatorKey != nil {
		if sig, err := s.cfg.OperatorKey.Sign(digest); err == nil {
			attrs = append(attrs, "operator_signature", hex.EncodeToString(sig))
		}
	}
	s.logger.Info("admin mutation", attrs...)
}
