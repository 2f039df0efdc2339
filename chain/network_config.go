package chain

import (
	"log"
	"math/big"
	"os"
	"strings"
)

// NetworkConfig holds configuration for a supported EVM network
type NetworkConfig struct {
	Name            string
	ChainID         string // hex, as reported by eth_chainId
	RPCURL          string
	ExplorerURL     string
	NativeSymbol    string
	EscrowContract  string
	BatchContract   string
	Tokens          map[string]TokenConfig
	MaxBatchSize    int
	MinGasBufferWei *big.Int
}

// TokenConfig describes one whitelisted fungible token
type TokenConfig struct {
	Symbol   string
	Address  string
	Decimals int
	Label    string
}

// SepoliaChainID is the only chain the escrow and batch contracts are deployed on
const SepoliaChainID = "0xaa36a7"

// MaxBatchRecipients matches the batch contract's MAX_BATCH constant
const MaxBatchRecipients = 200

// GetNetworkConfig returns configuration for the specified network
func GetNetworkConfig(network string) *NetworkConfig {
	switch network {
	case "sepolia":
		return &NetworkConfig{
			Name:         "Sepolia Test Network",
			ChainID:      SepoliaChainID,
			RPCURL:       envDefault("LEDGER_RPC_URL", "https://sepolia.infura.io/v3/"),
			ExplorerURL:  "https://sepolia.etherscan.io",
			NativeSymbol: "ETH",
			EscrowContract: envDefault("ESCROW_CONTRACT_ADDRESS",
				"0x52Ca6bcEf85a9a0c61F5eAD715cAc5C2EcB75F52"),
			BatchContract: envDefault("BATCH_CONTRACT_ADDRESS",
				"0xe4d140D48ddAdb4999F82E88cA86D9AaB7c39483"),
			Tokens: map[string]TokenConfig{
				"USDC": {
					Symbol:   "USDC",
					Address:  "0x427B7203ECCD442eB0a293C3a96c5A85C6476203",
					Decimals: 6,
					Label:    "USD Coin (Sepolia)",
				},
				"USDT": {
					Symbol:   "USDT",
					Address:  "0xA0DF73C3AEBc134c1737E407f8C9a21FeEd87Dfd",
					Decimals: 6,
					Label:    "Tether USD (Sepolia)",
				},
			},
			MaxBatchSize:    MaxBatchRecipients,
			MinGasBufferWei: mustParseUnits("0.00005", 18),
		}
	default:
		log.Printf("Unknown network '%s', defaulting to sepolia", network)
		return GetNetworkConfig("sepolia")
	}
}

// GetCurrentNetwork returns the current network from environment variable
func GetCurrentNetwork() string {
	network := os.Getenv("LEDGER_NETWORK")
	if network == "" {
		network = "sepolia"
	}
	return network
}

// Token returns the config for a whitelisted token symbol, nil if unsupported.
// Symbols are matched case-insensitively the way the UI normalized them.
func (nc NetworkConfig) Token(symbol string) *TokenConfig {
	tc, ok := nc.Tokens[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return nil
	}
	return &tc
}

// SupportedTokens lists the whitelisted token symbols
func (nc NetworkConfig) SupportedTokens() []string {
	out := make([]string, 0, len(nc.Tokens))
	for symbol := range nc.Tokens {
		out = append(out, symbol)
	}
	return out
}

// TxExplorerURL returns the explorer link for a transaction reference
func (nc NetworkConfig) TxExplorerURL(txRef string) string {
	return nc.ExplorerURL + "/tx/" + txRef
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func mustParseUnits(value string, decimals int) *big.Int {
	v, err := ParseUnits(value, decimals)
	if err != nil {
		log.Printf("invalid built-in unit constant %q: %v", value, err)
		return big.NewInt(0)
	}
	return v
}
