package polymarket

import (
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Credentials is the L2 API key triplet used to HMAC-sign trading
// requests, mirroring the teacher-adjacent 0xtitan6-polymarket-mm Auth's L2
// layer.
type Credentials struct {
	APIKey     string
	Secret     string
	Passphrase string
}

// Auth holds the wallet used to sign both the CLOB's EIP-712 order struct
// and its L2 HMAC request headers. Grounded on
// internal/exchange.Auth (0xtitan6-polymarket-mm): two-layer
// auth (L1 EIP-712 proves wallet ownership once; L2 HMAC signs every
// trading request) carried over unchanged since Polymarket's CLOB requires
// both regardless of what venue the rest of this repo targets.
type Auth struct {
	privateKey    *ecdsa.PrivateKey
	address       common.Address
	funderAddress common.Address
	chainID       *big.Int
	creds         Credentials
}

// NewAuth parses privateKeyHex (with or without a 0x prefix) and derives
// the signer's address.
func NewAuth(privateKeyHex, funderAddress string, chainID int64, creds Credentials) (*Auth, error) {
	keyHex := privateKeyHex
	if len(keyHex) >= 2 && keyHex[:2] == "0x" {
		keyHex = keyHex[2:]
	}
	privateKey, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	address := crypto.PubkeyToAddress(privateKey.PublicKey)
	funder := address
	if funderAddress != "" {
		funder = common.HexToAddress(funderAddress)
	}

	return &Auth{
		privateKey:    privateKey,
		address:       address,
		funderAddress: funder,
		chainID:       big.NewInt(chainID),
		creds:         creds,
	}, nil
}

// clobExchangeTypes holds the EIP-712 type definitions for a signed CTF
// Exchange order: the domain (name, version, chainId; it has no
// verifyingContract field) and the Order struct.
var clobExchangeTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
	},
	"Order": {
		{Name: "salt", Type: "uint256"},
		{Name: "maker", Type: "address"},
		{Name: "signer", Type: "address"},
		{Name: "taker", Type: "address"},
		{Name: "tokenId", Type: "uint256"},
		{Name: "makerAmount", Type: "uint256"},
		{Name: "takerAmount", Type: "uint256"},
		{Name: "expiration", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "feeRateBps", Type: "uint256"},
		{Name: "side", Type: "uint8"},
		{Name: "signatureType", Type: "uint8"},
	},
}

// SignedOrder is the EIP-712-signed order payload posted to the CLOB.
type SignedOrder struct {
	Salt          string `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          int    `json:"side"`
	SignatureType int    `json:"signatureType"`
	Signature     string `json:"signature"`
}

// signOrder builds and EIP-712-signs a CTF Exchange order struct. side is 0
// for BUY, 1 for SELL, matching the contract's enum.
func (a *Auth) signOrder(tokenID string, makerAmount, takerAmount *big.Int, side int, salt int64) (SignedOrder, error) {
	order := SignedOrder{
		Salt:          strconv.FormatInt(salt, 10),
		Maker:         a.funderAddress.Hex(),
		Signer:        a.address.Hex(),
		Taker:         "0x0000000000000000000000000000000000000000",
		TokenID:       tokenID,
		MakerAmount:   makerAmount.String(),
		TakerAmount:   takerAmount.String(),
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    "0",
		Side:          side,
		SignatureType: 2,
	}

	typedData := apitypes.TypedData{
		Types:       clobExchangeTypes,
		PrimaryType: "Order",
		Domain: apitypes.TypedDataDomain{
			Name:    "Polymarket CTF Exchange",
			Version: "1",
			ChainId: (*ethmath.HexOrDecimal256)(new(big.Int).Set(a.chainID)),
		},
		Message: apitypes.TypedDataMessage{
			"salt":          order.Salt,
			"maker":         order.Maker,
			"signer":        order.Signer,
			"taker":         order.Taker,
			"tokenId":       order.TokenID,
			"makerAmount":   order.MakerAmount,
			"takerAmount":   order.TakerAmount,
			"expiration":    order.Expiration,
			"nonce":         order.Nonce,
			"feeRateBps":    order.FeeRateBps,
			"side":          fmt.Sprintf("%d", order.Side),
			"signatureType": fmt.Sprintf("%d", order.SignatureType),
		},
	}

	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return SignedOrder{}, fmt.Errorf("typed data hash: %w", err)
	}
	sig, err := crypto.Sign(hash, a.privateKey)
	if err != nil {
		return SignedOrder{}, fmt.Errorf("sign typed data: %w", err)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	order.Signature = "0x" + common.Bytes2Hex(sig)
	return order, nil
}

// l2Headers computes the HMAC-SHA256 headers the CLOB requires on every
// trading request: timestamp + method + path [+ body] signed with the
// base64url-decoded API secret.
func (a *Auth) l2Headers(method, path, body string) (map[string]string, error) {
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	message := timestamp + method + path + body

	secretBytes, err := decodeSecret(a.creds.Secret)
	if err != nil {
		return nil, fmt.Errorf("decode secret: %w", err)
	}

	mac := hmac.New(sha256.New, secretBytes)
	mac.Write([]byte(message))
	sig := base64.URLEncoding.EncodeToString(mac.Sum(nil))

	return map[string]string{
		"POLY_ADDRESS":    a.address.Hex(),
		"POLY_SIGNATURE":  sig,
		"POLY_TIMESTAMP":  timestamp,
		"POLY_API_KEY":    a.creds.APIKey,
		"POLY_PASSPHRASE": a.creds.Passphrase,
	}, nil
}

func decodeSecret(secret string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{base64.URLEncoding, base64.RawURLEncoding, base64.StdEncoding, base64.RawStdEncoding} {
		if decoded, err := enc.DecodeString(secret); err == nil {
			return decoded, nil
		}
	}
	return nil, fmt.Errorf("secret is not valid base64 in any known encoding")
}
