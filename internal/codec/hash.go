package codec

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Domain separation keys: zero-padded ASCII, never change them.
var (
	messageChainKey = [32]byte{
		'd', 'i', 's', 'p', 'u', 't', 'a', '.', 'm', 'e', 's', 's', 'a', 'g', 'e', '.',
		'c', 'h', 'a', 'i', 'n', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
	txDigestKey = [32]byte{
		'd', 'i', 's', 'p', 'u', 't', 'a', '.', 't', 'x', '.', 'd', 'i', 'g', 'e', 's',
		't', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
)

func keyedHash(key [32]byte, parts ...[]byte) string {
	h, err := blake3.NewKeyed(key[:])
	if err != nil {
		panic("codec: BLAKE3 keyed hasher: " + err.Error())
	}
	for _, p := range parts {
		_, _ = h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ChainHash links a message to its predecessor: H(prev || cbor(v)).
func ChainHash(prev string, v any) (string, error) {
	body, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return keyedHash(messageChainKey, []byte(prev), body), nil
}

// Digest returns a short content digest of v, used to log and compare commands.
func Digest(v any) (string, error) {
	body, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return keyedHash(txDigestKey, body)[:16], nil
}
