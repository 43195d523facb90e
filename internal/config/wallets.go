package config

import (
	"fmt"
	"os"
	"strings"
)

type WalletCredentials struct {
	ID         int
	Address    string
	PrivateKey string
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// DiscoverWallets enumerates <prefix>_ADDRESS_N / <prefix>_PRIVATE_KEY_N for
// N = 1, 2, ... and stops at the first N without an address.
func DiscoverWallets(prefix string, lookup LookupFunc) ([]WalletCredentials, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if prefix == "" {
		prefix = "HL"
	}
	var wallets []WalletCredentials
	for id := 1; ; id++ {
		address, ok := lookup(fmt.Sprintf("%s_ADDRESS_%d", prefix, id))
		address = strings.TrimSpace(address)
		if !ok || address == "" {
			break
		}
		keyName := fmt.Sprintf("%s_PRIVATE_KEY_%d", prefix, id)
		key, _ := lookup(keyName)
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("%s is required for wallet %d", keyName, id)
		}
		wallets = append(wallets, WalletCredentials{ID: id, Address: address, PrivateKey: key})
	}
	return wallets, nil
}

// SelectWallet narrows the list to one id; id 0 keeps all wallets.
func SelectWallet(wallets []WalletCredentials, id int) ([]WalletCredentials, error) {
	if id == 0 {
		return wallets, nil
	}
	for _, wallet := range wallets {
		if wallet.ID == id {
			return []WalletCredentials{wallet}, nil
		}
	}
	return nil, fmt.Errorf("wallet %d not configured", id)
}
