package blockchain

import (
	"fmt"
	"strings"

	"address-intelligence/internal/domain/entity"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"
)

const (
	solanaKeyLen       = 32
	solanaMinChars     = 32
	solanaMaxChars     = 44
	ethereumAddressLen = 42
)

// AddressCodec recognises Ethereum, Bitcoin and Solana addresses. Addresses
// are validated but never normalised; the caller's spelling is the identity.
type AddressCodec struct {
	btcParams *chaincfg.Params
}

// NewAddressCodec creates a codec for Bitcoin mainnet
func NewAddressCodec() *AddressCodec {
	return &AddressCodec{btcParams: &chaincfg.MainNetParams}
}

// Classify implements service.AddressClassifier
func (c *AddressCodec) Classify(candidate string) (entity.Chain, error) {
	switch {
	case candidate == "":
		return "", fmt.Errorf("%w: empty", entity.ErrMalformedAddress)
	case strings.HasPrefix(candidate, "0x") || strings.HasPrefix(candidate, "0X"):
		if isValidEthereumAddress(candidate) {
			return entity.ChainEthereum, nil
		}
	case c.isBitcoin(candidate):
		return entity.ChainBitcoin, nil
	case isSolana(candidate):
		return entity.ChainSolana, nil
	}
	return "", fmt.Errorf("%w: %q", entity.ErrMalformedAddress, candidate)
}

// isValidEthereumAddress accepts 0x-prefixed hex. Mixed-case input must carry
// a valid EIP-55 checksum.
func isValidEthereumAddress(address string) bool {
	if len(address) != ethereumAddressLen || !common.IsHexAddress(address) {
		return false
	}
	hexPart := address[2:]
	if strings.ToLower(hexPart) == hexPart || strings.ToUpper(hexPart) == hexPart {
		return true
	}
	return common.HexToAddress(address).Hex() == address
}

func (c *AddressCodec) isBitcoin(candidate string) bool {
	addr, err := btcutil.DecodeAddress(candidate, c.btcParams)
	if err != nil {
		return false
	}
	return addr.IsForNet(c.btcParams)
}

func isSolana(candidate string) bool {
	if len(candidate) < solanaMinChars || len(candidate) > solanaMaxChars {
		return false
	}
	return len(base58.Decode(candidate)) == solanaKeyLen
}
