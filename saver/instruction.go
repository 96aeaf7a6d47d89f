package saver

import (
	"bytes"
	"crypto/sha256"

	"github.com/egaotan/serum-saver/program"
	"github.com/egaotan/serum-saver/serum"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

var (
	InitializeSaverDiscriminator  = instructionDiscriminator("initialize_saver")
	InitializeMarketDiscriminator = instructionDiscriminator("initialize_market")
	SwapDiscriminator             = instructionDiscriminator("swap")
)

func instructionDiscriminator(name string) [8]byte {
	hash := sha256.Sum256([]byte("global:" + name))
	var out [8]byte
	copy(out[:], hash[:8])
	return out
}

type InitializeSaverArgs struct {
	Nonce uint8
}

// SwapArgs are the bounds of one swap. Side is serum.Bid to buy the base
// token and serum.Ask to sell it.
type SwapArgs struct {
	Side                        uint8
	LimitPrice                  uint64
	MaxCoinQty                  uint64
	MaxNativePcQtyIncludingFees uint64
}

func (a *SwapArgs) OrderSide() serum.Side {
	return serum.Side(a.Side)
}

type InitializeSaverAccounts struct {
	Saver    solana.PublicKey
	Signer   solana.PublicKey
	SrmVault solana.PublicKey
	Payer    solana.PublicKey
}

type InitializeMarketAccounts struct {
	SaverMarket   solana.PublicKey
	Saver         solana.PublicKey
	Signer        solana.PublicKey
	CoinMint      solana.PublicKey
	CoinVault     solana.PublicKey
	PcMint        solana.PublicKey
	PcVault       solana.PublicKey
	DexProgram    solana.PublicKey
	DexMarket     solana.PublicKey
	DexOpenOrders solana.PublicKey
	Payer         solana.PublicKey
}

type SwapAccounts struct {
	Saver           solana.PublicKey
	Signer          solana.PublicKey
	SrmVault        solana.PublicKey
	SaverMarket     solana.PublicKey
	CoinVault       solana.PublicKey
	PcVault         solana.PublicKey
	CoinWallet      solana.PublicKey
	PcWallet        solana.PublicKey
	WalletSigner    solana.PublicKey
	Market          solana.PublicKey
	OpenOrders      solana.PublicKey
	RequestQueue    solana.PublicKey
	EventQueue      solana.PublicKey
	Bids            solana.PublicKey
	Asks            solana.PublicKey
	DexCoinVault    solana.PublicKey
	DexPcVault      solana.PublicKey
	DexVaultSigner  solana.PublicKey
	DexProgram      solana.PublicKey
	SplTokenProgram solana.PublicKey
}

func encode(discriminator [8]byte, args interface{}) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Write(discriminator[:])
	if args != nil {
		if err := bin.NewBorshEncoder(buf).Encode(args); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func InstructionInitializeSaver(programID solana.PublicKey, accounts *InitializeSaverAccounts, nonce uint8) (*program.Instruction, error) {
	data, err := encode(InitializeSaverDiscriminator, &InitializeSaverArgs{Nonce: nonce})
	if err != nil {
		return nil, err
	}
	return &program.Instruction{
		IsAccounts: []*solana.AccountMeta{
			program.WritableSigner(accounts.Saver),
			program.Readonly(accounts.Signer),
			program.Readonly(accounts.SrmVault),
			program.WritableSigner(accounts.Payer),
			program.Readonly(program.System),
		},
		IsData:      data,
		IsProgramID: programID,
	}, nil
}

func InstructionInitializeMarket(programID solana.PublicKey, accounts *InitializeMarketAccounts) (*program.Instruction, error) {
	data, err := encode(InitializeMarketDiscriminator, nil)
	if err != nil {
		return nil, err
	}
	return &program.Instruction{
		IsAccounts: []*solana.AccountMeta{
			program.WritableSigner(accounts.SaverMarket),
			program.Readonly(accounts.Saver),
			program.Readonly(accounts.Signer),
			program.Readonly(accounts.CoinMint),
			program.Readonly(accounts.CoinVault),
			program.Readonly(accounts.PcMint),
			program.Readonly(accounts.PcVault),
			program.Readonly(accounts.DexProgram),
			program.Readonly(accounts.DexMarket),
			program.Writable(accounts.DexOpenOrders),
			program.WritableSigner(accounts.Payer),
			program.Readonly(program.System),
		},
		IsData:      data,
		IsProgramID: programID,
	}, nil
}

func InstructionSwap(programID solana.PublicKey, accounts *SwapAccounts, args *SwapArgs) (*program.Instruction, error) {
	data, err := encode(SwapDiscriminator, args)
	if err != nil {
		return nil, err
	}
	return &program.Instruction{
		IsAccounts: []*solana.AccountMeta{
			program.Readonly(accounts.Saver),
			program.Readonly(accounts.Signer),
			program.Writable(accounts.SrmVault),
			program.Readonly(accounts.SaverMarket),
			program.Writable(accounts.CoinVault),
			program.Writable(accounts.PcVault),
			program.Writable(accounts.CoinWallet),
			program.Writable(accounts.PcWallet),
			program.Signer(accounts.WalletSigner),
			program.Writable(accounts.Market),
			program.Writable(accounts.OpenOrders),
			program.Writable(accounts.RequestQueue),
			program.Writable(accounts.EventQueue),
			program.Writable(accounts.Bids),
			program.Writable(accounts.Asks),
			program.Writable(accounts.DexCoinVault),
			program.Writable(accounts.DexPcVault),
			program.Readonly(accounts.DexVaultSigner),
			program.Readonly(accounts.DexProgram),
			program.Readonly(accounts.SplTokenProgram),
		},
		IsData:      data,
		IsProgramID: programID,
	}, nil
}

// DecodeInstruction splits data into its discriminator and Borsh body.
func DecodeInstruction(data []byte) ([8]byte, []byte, error) {
	var discriminator [8]byte
	if len(data) < 8 {
		return discriminator, nil, ErrInstructionFallbackNotFound
	}
	copy(discriminator[:], data[:8])
	return discriminator, data[8:], nil
}

func DecodeInitializeSaver(body []byte) (*InitializeSaverArgs, error) {
	args := &InitializeSaverArgs{}
	if err := bin.NewBorshDecoder(body).Decode(args); err != nil {
		return nil, ErrInstructionDidNotDeserialize
	}
	return args, nil
}

func DecodeSwap(body []byte) (*SwapArgs, error) {
	args := &SwapArgs{}
	if err := bin.NewBorshDecoder(body).Decode(args); err != nil {
		return nil, ErrInstructionDidNotDeserialize
	}
	if args.Side > uint8(serum.Ask) {
		return nil, ErrInstructionDidNotDeserialize
	}
	return args, nil
}
