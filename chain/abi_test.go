package chain

import (
	"math/big"
	"strings"
	"testing"
)

func TestIsAddress(t *testing.T) {
	tests := []struct {
		name string
		addr string
		want bool
	}{
		{"valid", "0x427B7203ECCD442eB0a293C3a96c5A85C6476203", true},
		{"valid lowercase", "0xe4d140d48ddadb4999f82e88ca86d9aab7c39483", true},
		{"missing prefix", "427B7203ECCD442eB0a293C3a96c5A85C6476203", false},
		{"too short", "0x427B72", false},
		{"non-hex", "0xZZ7B7203ECCD442eB0a293C3a96c5A85C6476203", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsAddress(tt.addr); got != tt.want {
				t.Errorf("IsAddress(%q) = %v, want %v", tt.addr, got, tt.want)
			}
		})
	}
}

func TestTaskIDToBytes32(t *testing.T) {
	a := TaskIDToBytes32("task-001")
	b := TaskIDToBytes32("task-001")
	c := TaskIDToBytes32("task-002")

	if len(a) != 64 {
		t.Errorf("task key should be 32 bytes (64 hex chars), got %d", len(a))
	}
	// keccak256("task-001"), the derivation the contracts key escrows by
	if want := "f9c3960bb4ddc9129f5ed5f3aa9af84ed9ede89e5e239c9710a5a383af2e9815"; a != want {
		t.Errorf("task key = %s, want %s", a, want)
	}
	if a != b {
		t.Error("task key derivation should be deterministic")
	}
	if a == c {
		t.Error("distinct task ids should produce distinct keys")
	}
}

func TestEncodeTransferCalldata(t *testing.T) {
	to := "0x427B7203ECCD442eB0a293C3a96c5A85C6476203"
	toArg, err := encodeAddress(to)
	if err != nil {
		t.Fatalf("encodeAddress returned error: %v", err)
	}
	amountArg, err := encodeUint256(big.NewInt(100500000))
	if err != nil {
		t.Fatalf("encodeUint256 returned error: %v", err)
	}

	data := encodeCall(selTransfer, toArg, amountArg)
	if !strings.HasPrefix(data, "0xa9059cbb") {
		t.Errorf("transfer calldata should start with the transfer selector, got %s", data[:10])
	}
	// selector + two 32-byte words
	if len(data) != 2+8+64+64 {
		t.Errorf("transfer calldata length = %d, want %d", len(data), 2+8+64+64)
	}
	if !strings.Contains(data, strings.ToLower(to[2:])) {
		t.Error("calldata should embed the lowercased recipient address")
	}
}

func TestEncodeUint256Bounds(t *testing.T) {
	if _, err := encodeUint256(big.NewInt(-1)); err == nil {
		t.Error("negative values should be rejected")
	}

	max := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	if _, err := encodeUint256(max); err != nil {
		t.Errorf("max uint256 should encode, got error: %v", err)
	}
	if _, err := encodeUint256(new(big.Int).Add(max, big.NewInt(1))); err == nil {
		t.Error("values above 2^256-1 should be rejected")
	}
}

func TestDecodeUint256(t *testing.T) {
	v, err := decodeUint256("0x0000000000000000000000000000000000000000000000000000000005fd8220")
	if err != nil {
		t.Fatalf("decodeUint256 returned error: %v", err)
	}
	if v.String() != "100500000" {
		t.Errorf("decoded %s, want 100500000", v)
	}
}

func TestBatchPayoutEncoding(t *testing.T) {
	client := NewClient(*GetNetworkConfig("sepolia"))
	batch := NewBatchContract(client)

	recipients := []string{
		"0x1111111111111111111111111111111111111111",
		"0x2222222222222222222222222222222222222222",
	}
	amounts := []*big.Int{big.NewInt(1000000), big.NewInt(2000000)}

	data, err := batch.EncodePayout(
		"0x427B7203ECCD442eB0a293C3a96c5A85C6476203",
		"0x3333333333333333333333333333333333333333",
		recipients, amounts)
	if err != nil {
		t.Fatalf("EncodePayout returned error: %v", err)
	}
	if !strings.HasPrefix(data, "0x"+selBatchPay) {
		t.Errorf("payout calldata should start with the batchPay selector, got %s", data[:10])
	}

	// head(4 words) + 2 length-prefixed arrays of 2 elements each
	wantWords := 4 + (1 + 2) + (1 + 2)
	if gotLen := len(data) - 2 - 8; gotLen != wantWords*64 {
		t.Errorf("payout calldata body = %d hex chars, want %d", gotLen, wantWords*64)
	}
}

func TestBatchPayoutValidation(t *testing.T) {
	client := NewClient(*GetNetworkConfig("sepolia"))
	batch := NewBatchContract(client)
	token := "0x427B7203ECCD442eB0a293C3a96c5A85C6476203"
	payer := "0x3333333333333333333333333333333333333333"

	if _, err := batch.EncodePayout(token, payer, nil, nil); err == nil {
		t.Error("empty batch should be rejected")
	}

	if _, err := batch.EncodePayout(token, payer,
		[]string{"0x1111111111111111111111111111111111111111"},
		[]*big.Int{big.NewInt(1), big.NewInt(2)}); err == nil {
		t.Error("mismatched recipient/amount lengths should be rejected")
	}

	over := make([]string, MaxBatchRecipients+1)
	overAmounts := make([]*big.Int, MaxBatchRecipients+1)
	for i := range over {
		over[i] = "0x1111111111111111111111111111111111111111"
		overAmounts[i] = big.NewInt(1)
	}
	if _, err := batch.EncodePayout(token, payer, over, overAmounts); err == nil {
		t.Errorf("batches above %d recipients should be rejected", MaxBatchRecipients)
	}
}

func TestGasLimits(t *testing.T) {
	if got := BatchGasLimit(5).Int64(); got != 320000+5*80000 {
		t.Errorf("BatchGasLimit(5) = %d", got)
	}
	if got := SequentialGasLimit(3).Int64(); got != 3*120000 {
		t.Errorf("SequentialGasLimit(3) = %d", got)
	}
}
