package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"

	"github.com/uhyunpark/fillguard/params"
	"github.com/uhyunpark/fillguard/pkg/crypto"
	"github.com/uhyunpark/fillguard/pkg/order"
)

var (
	title = color.New(color.FgCyan, color.Bold)
	ok    = color.New(color.FgGreen)
	fail  = color.New(color.FgRed, color.Bold)
)

func main() {
	defaults := params.Default()
	keyHex := flag.String("key", "", "maker private key (hex); generated when empty")
	makerToken := flag.String("maker-token", "0x0000000000000000000000000000000000000001", "maker token address")
	takerToken := flag.String("taker-token", "0x0000000000000000000000000000000000000002", "taker token address")
	makerAmount := flag.String("maker-amount", "1000000000000000000", "maker token amount (base units)")
	takerAmount := flag.String("taker-amount", "2000000000000000000", "taker token amount (base units)")
	makerFee := flag.String("maker-fee", "0", "maker fee in ZRX base units")
	takerFee := flag.String("taker-fee", "0", "taker fee in ZRX base units")
	taker := flag.String("taker", "", "restrict the order to this taker")
	feeRecipient := flag.String("fee-recipient", "", "fee recipient address")
	exchange := flag.String("exchange", defaults.Chain.Exchange, "exchange contract address")
	ttl := flag.Duration("ttl", time.Hour, "time until the order expires")
	api := flag.String("api", "http://localhost:8080", "fillguard API base URL for the submit hint")
	flag.Parse()

	// Step 1: Generate or load key
	var (
		signer *crypto.Signer
		err    error
	)
	if *keyHex == "" {
		title.Println("Generating new keypair...")
		signer, err = crypto.GenerateKey()
	} else {
		signer, err = crypto.FromPrivateKeyHex(*keyHex)
	}
	if err != nil {
		exitf("key: %v", err)
	}
	fmt.Printf("Address: %s\n", signer.Address().Hex())
	if *keyHex == "" {
		fmt.Printf("Private Key: %s (KEEP SECRET!)\n", signer.PrivateKeyHex())
	}
	fmt.Println()

	// Step 2: Create order
	salt, err := order.GeneratePseudoRandomSalt()
	if err != nil {
		exitf("salt: %v", err)
	}
	o := &order.Order{
		Maker:                      signer.Address(),
		Taker:                      optionalAddress("taker", *taker),
		MakerFee:                   mustAmount("maker-fee", *makerFee),
		TakerFee:                   mustAmount("taker-fee", *takerFee),
		MakerTokenAmount:           mustAmount("maker-amount", *makerAmount),
		TakerTokenAmount:           mustAmount("taker-amount", *takerAmount),
		MakerTokenAddress:          mustAddress("maker-token", *makerToken),
		TakerTokenAddress:          mustAddress("taker-token", *takerToken),
		Salt:                       salt,
		ExchangeContractAddress:    mustAddress("exchange", *exchange),
		FeeRecipient:               optionalAddress("fee-recipient", *feeRecipient),
		ExpirationUnixTimestampSec: big.NewInt(time.Now().Add(*ttl).Unix()),
	}

	title.Println("Order Details:")
	fmt.Printf("  Maker token: %s amount %s\n", o.MakerTokenAddress.Hex(), o.MakerTokenAmount)
	fmt.Printf("  Taker token: %s amount %s\n", o.TakerTokenAddress.Hex(), o.TakerTokenAmount)
	fmt.Printf("  Fees: maker %s taker %s\n", o.MakerFee, o.TakerFee)
	fmt.Printf("  Expires: %s\n", formatExpiration(o.ExpirationUnixTimestampSec))
	fmt.Printf("  Exchange: %s\n\n", o.ExchangeContractAddress.Hex())

	// Step 3: Hash and sign
	hash, err := order.HashOrder(o)
	if err != nil {
		exitf("hash: %v", err)
	}
	fmt.Printf("Order Hash: %s\n", hash.Hex())

	signed, err := signer.SignOrder(o)
	if err != nil {
		exitf("sign: %v", err)
	}
	fmt.Printf("Signature: v=%d r=%s s=%s\n\n", signed.ECSignature.V, signed.ECSignature.R.Hex(), signed.ECSignature.S.Hex())

	// Step 4: Serialize to JSON
	orderJSON, err := json.MarshalIndent(order.FromSignedOrder(signed), "", "  ")
	if err != nil {
		exitf("marshal: %v", err)
	}
	title.Println("Signed Order (JSON):")
	fmt.Println(string(orderJSON))
	fmt.Println()

	// Step 5: Verify signature
	title.Println("Verifying signature...")
	recovered, err := crypto.RecoverSigner(hash, signed.ECSignature)
	if err != nil {
		exitf("recover: %v", err)
	}
	if recovered != o.Maker {
		fail.Println("✗ Signature INVALID")
		os.Exit(1)
	}
	ok.Println("✓ Signature VALID")
	fmt.Printf("  Signer: %s\n\n", recovered.Hex())

	// Step 6: Show how to submit to API
	fmt.Println("To submit this order to fillguard:")
	fmt.Printf("  POST %s/api/v1/orders\n", *api)
	fmt.Println("  Content-Type: application/json")
}

func mustAmount(name, v string) *big.Int {
	n, ok := new(big.Int).SetString(v, 10)
	if !ok || n.Sign() < 0 {
		exitf("-%s: invalid amount %q", name, v)
	}
	return n
}

func mustAddress(name, v string) common.Address {
	if !common.IsHexAddress(v) {
		exitf("-%s: invalid address %q", name, v)
	}
	return common.HexToAddress(v)
}

func optionalAddress(name, v string) common.Address {
	if v == "" {
		return common.Address{}
	}
	return mustAddress(name, v)
}

func exitf(format string, args ...interface{}) {
	fail.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// formatExpiration renders a unix-seconds expiration, falling back to the raw
// integer when it lies outside the range time.Time can represent.
func formatExpiration(exp *big.Int) string {
	if exp == nil {
		return "unset"
	}
	if !exp.IsInt64() || exp.Int64() > maxFormattableUnix {
		return exp.String()
	}
	return time.Unix(exp.Int64(), 0).UTC().Format(time.RFC3339)
}

// Last second of year 9999, the largest RFC 3339 year.
const maxFormattableUnix = 253402300799
