package ingestion

import (
	"bytes"

	"github.com/stellar/go-stellar-sdk/strkey"
)

func account(seed byte) string {
	return strkey.MustEncode(strkey.VersionByteAccountID, bytes.Repeat([]byte{seed}, 32))
}

func contract(seed byte) string {
	return strkey.MustEncode(strkey.VersionByteContract, bytes.Repeat([]byte{seed}, 32))
}

func muxed(seed byte) string {
	return strkey.MustEncode(strkey.VersionByteMuxedAccount, bytes.Repeat([]byte{seed}, 40))
}

var (
	pool  = contract(1)
	usdc  = contract(2)
	alice = account(3)
	bob   = account(4)
)

func rawEvent(ledger uint32, tx, idx int, action, amount string) *RawEvent {
	return &RawEvent{
		Ledger:     ledger,
		Timestamp:  uint64(ledger) * 5,
		TxIndex:    tx,
		EventIndex: idx,
		TxHash:     "ab",
		Contract:   pool,
		Asset:      usdc,
		Action:     action,
		Amount:     amount,
		From:       alice,
		To:         bob,
	}
}
