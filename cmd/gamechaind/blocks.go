package main

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"os"

	"gamechain/internal/chainerr"
	"gamechain/runtime"
	"gamechain/types"
)

// blockRecord is the on-disk JSONL shape for one applied block: its header
// and the transactions that produced it. gamechaind has no peer-to-peer
// block source, so import-blocks is how a node actually advances past
// genesis — it replays a file of these records, produced by another
// node's export-blocks, through the same deterministic Runtime.
type blockRecord struct {
	Header       headerJSON `json:"header"`
	Transactions []txJSON   `json:"transactions"`
}

type headerJSON struct {
	ParentHash     string `json:"parent_hash"`
	Number         uint32 `json:"number"`
	StateRoot      string `json:"state_root"`
	ExtrinsicsRoot string `json:"extrinsics_root"`
	TimestampMS    uint64 `json:"timestamp_ms"`
}

type callJSON struct {
	Module     string  `json:"module"`
	CallIndex  uint8   `json:"call_index"`
	Payload    string  `json:"payload"`
	SessionKey *string `json:"session_key,omitempty"`
}

type txJSON struct {
	Nonce     uint64   `json:"nonce"`
	Signer    string   `json:"signer"`
	Signature string   `json:"signature"`
	Call      callJSON `json:"call"`
}

func headerToJSON(h types.BlockHeader) headerJSON {
	return headerJSON{
		ParentHash:     h.ParentHash.Hex(),
		Number:         h.Number,
		StateRoot:      h.StateRoot.Hex(),
		ExtrinsicsRoot: h.ExtrinsicsRoot.Hex(),
		TimestampMS:    h.TimestampMS,
	}
}

func txToJSON(tx types.Transaction) txJSON {
	var sk *string
	if tx.Call.SessionKey != nil {
		s := hex.EncodeToString(tx.Call.SessionKey[:])
		sk = &s
	}
	return txJSON{
		Nonce:     tx.Nonce,
		Signer:    tx.Signer.Hex(),
		Signature: hex.EncodeToString(tx.Signature[:]),
		Call: callJSON{
			Module:     tx.Call.Module,
			CallIndex:  tx.Call.CallIndex,
			Payload:    hex.EncodeToString(tx.Call.Payload),
			SessionKey: sk,
		},
	}
}

func txFromJSON(j txJSON) (types.Transaction, error) {
	var tx types.Transaction
	signer, err := types.ParseAddress(j.Signer)
	if err != nil {
		return tx, chainerr.New(chainerr.DecodeMalformed, "signer: %v", err)
	}
	sigBytes, err := hex.DecodeString(j.Signature)
	if err != nil || len(sigBytes) != 64 {
		return tx, chainerr.New(chainerr.DecodeMalformed, "signature")
	}
	payload, err := hex.DecodeString(j.Call.Payload)
	if err != nil {
		return tx, chainerr.New(chainerr.DecodeMalformed, "payload: %v", err)
	}
	tx.Nonce = j.Nonce
	tx.Signer = signer
	copy(tx.Signature[:], sigBytes)
	tx.Call = types.Call{Module: j.Call.Module, CallIndex: j.Call.CallIndex, Payload: payload}
	if j.Call.SessionKey != nil {
		skBytes, err := hex.DecodeString(*j.Call.SessionKey)
		if err != nil || len(skBytes) != 32 {
			return tx, chainerr.New(chainerr.DecodeMalformed, "session key")
		}
		var id types.UUID
		copy(id[:], skBytes)
		tx.Call.SessionKey = &id
	}
	return tx, nil
}

func appendBlockRecord(path string, rec blockRecord) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return wrapIO("open blocks log", err)
	}
	defer f.Close()
	b, err := json.Marshal(rec)
	if err != nil {
		return wrapIO("marshal block record", err)
	}
	if _, err := f.Write(append(b, '\n')); err != nil {
		return wrapIO("append block record", err)
	}
	return nil
}

func readBlockRecords(path string) ([]blockRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, wrapIO("open blocks file", err)
	}
	defer f.Close()

	var out []blockRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec blockRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, chainerr.New(chainerr.DecodeMalformed, "parse block record: %v", err)
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, wrapIO("scan blocks file", err)
	}
	return out, nil
}

// applyBlockRecord decodes and applies one block's transactions, then
// returns the BlockResult alongside the canonical record for logging.
func applyBlockRecord(rt *runtime.Runtime, rec blockRecord) (*runtime.BlockResult, blockRecord, error) {
	txs := make([]types.Transaction, 0, len(rec.Transactions))
	for _, j := range rec.Transactions {
		tx, err := txFromJSON(j)
		if err != nil {
			return nil, blockRecord{}, err
		}
		txs = append(txs, tx)
	}
	ordered, err := runtime.OrderPending(txs)
	if err != nil {
		return nil, blockRecord{}, chainerr.New(chainerr.DecodeMalformed, "order pending transactions: %v", err)
	}
	result, err := rt.ApplyBlock(ordered, rec.Header.TimestampMS)
	if err != nil {
		return nil, blockRecord{}, err
	}
	orderedJSON := make([]txJSON, len(ordered))
	for i, tx := range ordered {
		orderedJSON[i] = txToJSON(tx)
	}
	canonical := blockRecord{Header: headerToJSON(result.Header), Transactions: orderedJSON}
	return result, canonical, nil
}
