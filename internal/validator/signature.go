package validator

import (
	"crypto/ed25519"

	"github.com/Mindburn-Labs/sentinel/internal/cryptosign"
	"github.com/Mindburn-Labs/sentinel/internal/proposal"
)

func verifySignature(pub ed25519.PublicKey, p *proposal.Proposal) (bool, error) {
	return cryptosign.Verify(pub, p, "signature", p.Signature.Sig)
}
