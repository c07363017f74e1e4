package solana

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// Legacy transaction wire format: a compact-u16 signature count, 64-byte
// signatures, then the message (header, account keys, blockhash,
// instructions).

const signatureLen = 64

func appendCompactU16(b []byte, v int) []byte {
	for {
		if v < 0x80 {
			return append(b, byte(v))
		}
		b = append(b, byte(v&0x7f)|0x80)
		v >>= 7
	}
}

func readCompactU16(b []byte) (val, n int, err error) {
	shift := 0
	for i := 0; i < len(b) && i < 3; i++ {
		val |= int(b[i]&0x7f) << shift
		if b[i]&0x80 == 0 {
			return val, i + 1, nil
		}
		shift += 7
	}
	return 0, 0, errors.New("truncated compact-u16")
}

type instruction struct {
	programIdx byte
	accounts   []byte
	data       []byte
}

// buildLegacyTx serializes and signs a single-signer legacy transaction.
// keys[0] must be the signing fee payer.
func buildLegacyTx(signer *Keypair, keys []string, readonlyUnsigned int, blockhash string, ins instruction) (string, error) {
	var msg []byte
	msg = append(msg, 1, 0, byte(readonlyUnsigned))

	msg = appendCompactU16(msg, len(keys))
	for _, k := range keys {
		raw, err := base58.Decode(k)
		if err != nil || len(raw) != 32 {
			return "", fmt.Errorf("bad account key %q", k)
		}
		msg = append(msg, raw...)
	}

	bh, err := base58.Decode(blockhash)
	if err != nil || len(bh) != 32 {
		return "", fmt.Errorf("bad blockhash %q", blockhash)
	}
	msg = append(msg, bh...)

	msg = appendCompactU16(msg, 1)
	msg = append(msg, ins.programIdx)
	msg = appendCompactU16(msg, len(ins.accounts))
	msg = append(msg, ins.accounts...)
	msg = appendCompactU16(msg, len(ins.data))
	msg = append(msg, ins.data...)

	sig := signer.Sign(msg)
	tx := appendCompactU16(nil, 1)
	tx = append(tx, sig...)
	tx = append(tx, msg...)
	return base64.StdEncoding.EncodeToString(tx), nil
}

// BuildTransferTx builds a signed native SOL transfer.
func BuildTransferTx(signer *Keypair, to, blockhash string, lamports uint64) (string, error) {
	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[0:4], 2) // SystemProgram::Transfer
	binary.LittleEndian.PutUint64(data[4:12], lamports)

	return buildLegacyTx(signer,
		[]string{signer.PublicAddress(), to, SystemProgramID},
		1, blockhash,
		instruction{programIdx: 2, accounts: []byte{0, 1}, data: data})
}

// BuildTokenTransferTx builds a signed SPL token transfer between two
// existing token accounts owned by the signer.
func BuildTokenTransferTx(signer *Keypair, sourceAccount, destAccount, blockhash string, rawAmount uint64) (string, error) {
	data := make([]byte, 9)
	data[0] = 3 // TokenProgram::Transfer
	binary.LittleEndian.PutUint64(data[1:9], rawAmount)

	return buildLegacyTx(signer,
		[]string{signer.PublicAddress(), sourceAccount, destAccount, TokenProgramID},
		1, blockhash,
		instruction{programIdx: 3, accounts: []byte{1, 2, 0}, data: data})
}

// SignServerTx signs a base64 transaction built by an external service (the
// swap aggregator) with the local key, replacing the fee-payer signature
// slot. The message bytes are left untouched, so this works for both legacy
// and versioned payloads.
func SignServerTx(payloadBase64 string, signer *Keypair) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(payloadBase64)
	if err != nil {
		return "", fmt.Errorf("decode swap payload: %w", err)
	}

	count, n, err := readCompactU16(raw)
	if err != nil {
		return "", err
	}
	if count < 1 || len(raw) < n+count*signatureLen {
		return "", errors.New("swap payload has no signature slots")
	}

	message := raw[n+count*signatureLen:]
	sig := signer.Sign(message)
	copy(raw[n:n+signatureLen], sig)

	return base64.StdEncoding.EncodeToString(raw), nil
}
