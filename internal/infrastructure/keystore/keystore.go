package keystore

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const infoPrefix = "canal-compras/node-key/"

// NodeKey is the ed25519 key a node signs its transactions with.
type NodeKey struct {
	NodeID  string
	private ed25519.PrivateKey
}

// Derive expands seed into the signing key of nodeID. The same seed and node id
// always give the same key, so a restarted node keeps its identity.
func Derive(seed, nodeID string) (*NodeKey, error) {
	seed = strings.TrimSpace(seed)
	nodeID = strings.TrimSpace(nodeID)
	if nodeID == "" {
		return nil, errors.New("node id is required")
	}
	if len(seed) < 16 {
		return nil, errors.New("node key seed must have at least 16 characters")
	}
	r := hkdf.New(sha256.New, []byte(seed), nil, []byte(infoPrefix+nodeID))
	buf := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("derive node key: %w", err)
	}
	return &NodeKey{NodeID: nodeID, private: ed25519.NewKeyFromSeed(buf)}, nil
}

// Ephemeral creates a random key for single-node runs without a configured seed.
func Ephemeral(nodeID string) (*NodeKey, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &NodeKey{NodeID: strings.TrimSpace(nodeID), private: priv}, nil
}

func (k *NodeKey) PrivateKey() ed25519.PrivateKey { return k.private }

func (k *NodeKey) PublicKeyHex() string {
	return hex.EncodeToString(k.private.Public().(ed25519.PublicKey))
}
