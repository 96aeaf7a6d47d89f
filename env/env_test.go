package env

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/egaotan/serum-saver/config"
	"github.com/egaotan/serum-saver/program"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestTokenAmount(t *testing.T) {
	usdc := &Token{Symbol: "USDC", Mint: program.USDC, Decimal: 6}
	require.Equal(t, "2.1", usdc.AmountUi(2_100_000).String())
	require.Equal(t, "0.000001", usdc.AmountUi(1).String())

	native, err := usdc.AmountNative(decimal.RequireFromString("2.1000019"))
	require.NoError(t, err)
	require.Equal(t, uint64(2_100_001), native)

	_, err = usdc.AmountNative(decimal.NewFromInt(-1))
	require.Error(t, err)
	_, err = usdc.AmountNative(decimal.RequireFromString("1e30"))
	require.Error(t, err)
}

func TestEnvLoad(t *testing.T) {
	e := NewEnv(nil)
	e.Load(&config.Config{
		Tokens: []*config.Token{
			{Symbol: "SOL", Mint: program.SOL, Decimal: 9},
			{Symbol: "USDC", Mint: program.USDC, Decimal: 6},
		},
		Markets: []*config.Market{
			{Name: "SOL/USDC", Market: program.Serum_Sol_Usdc, Binding: program.Saver},
			{Name: "SOL/USDT", Market: program.Serum_Sol_Usdt},
		},
	})
	require.Equal(t, int32(9), e.Token(program.SOL).Decimal)
	require.Nil(t, e.Token(program.SRM))
	require.Equal(t, program.SRM, e.TokenOrUnknown(program.SRM).Mint)
	require.Len(t, e.Markets(), 2)
	require.Equal(t, "SOL/USDC", e.Markets()[0].Name)
	require.Equal(t, "SOL/USDC", e.MarketByBinding(program.Saver).Name)
	require.Nil(t, e.Market(program.Serum_Srm_Usdc))
}

func TestLoadTokenList(t *testing.T) {
	file := filepath.Join(t.TempDir(), "solana.tokenlist.json")
	content := `{"name":"Solana Token List","tokens":[
		{"chainId":101,"address":"SRMuApVNdxXokk5GT7XD5cUUgXMBCoAz2LHeuAoKWRt","symbol":"SRM","name":"Serum","decimals":6},
		{"chainId":101,"address":"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v","symbol":"USDC-LIST","name":"USD Coin","decimals":6},
		{"chainId":103,"address":"So11111111111111111111111111111111111111112","symbol":"SOL","name":"devnet","decimals":9},
		{"chainId":101,"address":"not-a-key","symbol":"BAD","decimals":1}
	]}`
	require.NoError(t, os.WriteFile(file, []byte(content), 0644))

	e := NewEnv(nil)
	e.AddToken(&Token{Symbol: "USDC", Mint: program.USDC, Decimal: 6})
	require.NoError(t, e.LoadTokenList(file))
	require.Equal(t, "SRM", e.Token(program.SRM).Symbol)
	require.Equal(t, "USDC", e.Token(program.USDC).Symbol)
	require.Nil(t, e.Token(program.SOL))

	require.Error(t, e.LoadTokenList(filepath.Join(t.TempDir(), "missing.json")))
}
