package runtime

import (
	"bytes"
	"sort"

	"github.com/ethereum/go-ethereum/rlp"

	"gamechain/types"
)

// rlpCallKey is the RLP-encodable projection of a Call used purely as a
// deterministic tie-break key; it carries no signature or session-key
// material, only the fields that distinguish one call from another.
type rlpCallKey struct {
	Module    string
	CallIndex uint8
	Payload   []byte
}

// OrderPending sorts a batch of not-yet-applied transactions into the
// order a block producer should apply them in: primarily by ascending
// nonce per signer, with an RLP-encoded encoding of the call as a stable
// tie-break so that two transactions sharing a signer and nonce (a
// submission race, not a valid chain state) still sort deterministically
// across nodes instead of depending on slice order.
func OrderPending(txs []types.Transaction) ([]types.Transaction, error) {
	keyed := make([]struct {
		tx  types.Transaction
		key []byte
	}, len(txs))

	for i, tx := range txs {
		enc, err := rlp.EncodeToBytes(rlpCallKey{
			Module:    tx.Call.Module,
			CallIndex: tx.Call.CallIndex,
			Payload:   tx.Call.Payload,
		})
		if err != nil {
			return nil, err
		}
		keyed[i] = struct {
			tx  types.Transaction
			key []byte
		}{tx: tx, key: enc}
	}

	sort.SliceStable(keyed, func(i, j int) bool {
		a, b := keyed[i], keyed[j]
		if a.tx.Signer != b.tx.Signer {
			return bytes.Compare(a.tx.Signer[:], b.tx.Signer[:]) < 0
		}
		if a.tx.Nonce != b.tx.Nonce {
			return a.tx.Nonce < b.tx.Nonce
		}
		return bytes.Compare(a.key, b.key) < 0
	})

	out := make([]types.Transaction, len(keyed))
	for i, k := range keyed {
		out[i] = k.tx
	}
	return out, nil
}
