package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ProcedureID is the content-addressed identity of a registered
// procedure: hex SHA-256 over the domain-separated canonical encoding.
// Stable across processes and registration order given the same AST.
type ProcedureID string

// DomainProcedure is the domain prefix for procedure identity.
// Version suffix enables future algorithm migration.
const DomainProcedure = "janus/procedure/v1"

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data). The null byte separator
// prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// IdentityOf computes the content-addressed ProcedureID.
// Returns an error if the procedure contains a node outside the sealed
// statement/expression sets.
func IdentityOf(p *Procedure) (ProcedureID, error) {
	canonical, err := MarshalCanonical(p)
	if err != nil {
		return "", fmt.Errorf("IdentityOf %q: %w", p.Name, err)
	}
	return ProcedureID(hashWithDomain(DomainProcedure, canonical)), nil
}

// MustIdentityOf is like IdentityOf but panics on error.
// Use only in tests or when the AST is known to be well-formed.
func MustIdentityOf(p *Procedure) ProcedureID {
	id, err := IdentityOf(p)
	if err != nil {
		panic(err)
	}
	return id
}
