package registry

import (
	"encoding/hex"
	"encoding/json"

	"golang.org/x/crypto/sha3"
)

// Token is the per-id asset record. TokenURI and Fingerprint are set at
// mint time and never change; Approved is cleared on every transfer.
type Token struct {
	Owner       string `json:"owner"`
	TokenURI    string `json:"token_uri"`
	Approved    string `json:"approved_operator,omitempty"`
	Fingerprint string `json:"fingerprint"`
}

func encodeToken(t *Token) ([]byte, error) {
	return json.Marshal(t)
}

func decodeToken(data []byte) (*Token, error) {
	var t Token
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func computeFingerprint(content []byte) string {
	digest := sha3.Sum512(content)
	return hex.EncodeToString(digest[:])
}
