package chain

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Minimal ABI calldata encoding for the fixed contract surface this system
// talks to. Selectors are the first four bytes of the canonical signature
// hash, kept as constants because the signature set is closed.
const (
	selTransfer      = "a9059cbb" // transfer(address,uint256)
	selApprove       = "095ea7b3" // approve(address,uint256)
	selAllowance     = "dd62ed3e" // allowance(address,address)
	selBalanceOf     = "70a08231" // balanceOf(address)
	selLockEscrow    = "0e1bf927" // lockEscrow(bytes32,address,address,uint256)
	selReleaseEscrow = "f340fcbb" // releaseEscrow(bytes32)
	selRefundByAsgn  = "3b8f0d4c" // refundEscrowByAssignee(bytes32,string)
	selResolve       = "61a5e7b2" // resolveDispute(bytes32,address)
	selGetEscrow     = "8c5a3fbc" // getEscrow(bytes32)
	selIsLocked      = "c3b543c5" // isEscrowLocked(bytes32)
	selBatchPay      = "9a2b7c0e" // batchPay(address,address,address[],uint256[])
)

// IsAddress reports whether s is a well-formed 0x-prefixed 20-byte address
func IsAddress(s string) bool {
	if len(s) != 42 || !strings.HasPrefix(s, "0x") {
		return false
	}
	_, err := hex.DecodeString(s[2:])
	return err == nil
}

// TaskIDToBytes32 maps an opaque task id onto the contract's bytes32 key,
// keccak256 of the UTF-8 id as the contracts expect
func TaskIDToBytes32(taskID string) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(taskID))
	return hex.EncodeToString(h.Sum(nil))
}

func encodeAddress(addr string) (string, error) {
	if !IsAddress(addr) {
		return "", fmt.Errorf("invalid address: %s", addr)
	}
	return strings.Repeat("0", 24) + strings.ToLower(addr[2:]), nil
}

func encodeUint256(v *big.Int) (string, error) {
	if v == nil || v.Sign() < 0 {
		return "", fmt.Errorf("uint256 must be non-negative")
	}
	h := v.Text(16)
	if len(h) > 64 {
		return "", fmt.Errorf("uint256 overflow: %s", v)
	}
	return strings.Repeat("0", 64-len(h)) + h, nil
}

func encodeBytes32(h string) (string, error) {
	h = strings.TrimPrefix(h, "0x")
	if len(h) != 64 {
		return "", fmt.Errorf("bytes32 must be 32 bytes, got %d hex chars", len(h))
	}
	if _, err := hex.DecodeString(h); err != nil {
		return "", fmt.Errorf("invalid bytes32: %v", err)
	}
	return strings.ToLower(h), nil
}

func encodeString(s string) string {
	raw := hex.EncodeToString([]byte(s))
	if pad := len(raw) % 64; pad != 0 {
		raw += strings.Repeat("0", 64-pad)
	}
	length, _ := encodeUint256(big.NewInt(int64(len(s))))
	return length + raw
}

// encodeCall assembles 0x-prefixed calldata from a selector and encoded words.
// Dynamic arguments must already carry their offsets.
func encodeCall(selector string, words ...string) string {
	var b strings.Builder
	b.WriteString("0x")
	b.WriteString(selector)
	for _, w := range words {
		b.WriteString(w)
	}
	return b.String()
}

// encodeAddressArray encodes a dynamic address[] (length-prefixed)
func encodeAddressArray(addrs []string) (string, error) {
	length, _ := encodeUint256(big.NewInt(int64(len(addrs))))
	out := length
	for _, a := range addrs {
		w, err := encodeAddress(a)
		if err != nil {
			return "", err
		}
		out += w
	}
	return out, nil
}

// encodeUint256Array encodes a dynamic uint256[] (length-prefixed)
func encodeUint256Array(vals []*big.Int) (string, error) {
	length, _ := encodeUint256(big.NewInt(int64(len(vals))))
	out := length
	for _, v := range vals {
		w, err := encodeUint256(v)
		if err != nil {
			return "", err
		}
		out += w
	}
	return out, nil
}

// decodeUint256 parses a 32-byte return word into a big.Int
func decodeUint256(data string) (*big.Int, error) {
	data = strings.TrimPrefix(data, "0x")
	if data == "" {
		return big.NewInt(0), nil
	}
	if len(data) > 64 {
		data = data[:64]
	}
	out, ok := new(big.Int).SetString(data, 16)
	if !ok {
		return nil, fmt.Errorf("invalid uint256 return data: %s", data)
	}
	return out, nil
}

// decodeBool parses a 32-byte return word into a bool
func decodeBool(data string) (bool, error) {
	v, err := decodeUint256(data)
	if err != nil {
		return false, err
	}
	return v.Sign() != 0, nil
}

// word extracts the i-th 32-byte word from hex return data
func word(data string, i int) (string, error) {
	data = strings.TrimPrefix(data, "0x")
	start := i * 64
	if len(data) < start+64 {
		return "", fmt.Errorf("return data too short for word %d", i)
	}
	return data[start : start+64], nil
}

// wordAddress extracts the i-th word as an address
func wordAddress(data string, i int) (string, error) {
	w, err := word(data, i)
	if err != nil {
		return "", err
	}
	return "0x" + w[24:], nil
}
