package dex

import (
	"bytes"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"rangeHedger/internal/model"
	"rangeHedger/internal/univ3"
)

func testBuilder(t *testing.T) *PayloadBuilder {
	t.Helper()
	builder, err := NewPayloadBuilder(model.Pool{
		Address: "0x1111111111111111111111111111111111111111",
		Token0:  "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		Token1:  "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
		Fee:     500,
	}, 18, 6, common.HexToAddress("0x2222222222222222222222222222222222222222"))
	if err != nil {
		t.Fatalf("builder: %v", err)
	}
	return builder
}

func TestMintPayload(t *testing.T) {
	builder := testBuilder(t)
	deadline := time.Unix(1700000600, 0)

	data, err := builder.Mint(model.ProvideLiquidity{
		Range:       univ3.Range{TickLower: -200400, TickUpper: -200200},
		Amount0:     decimal.RequireFromString("1.5"),
		Amount1:     decimal.RequireFromString("3000"),
		SlippageBps: 50,
	}, deadline)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	mgrABI, err := PositionManagerABI()
	if err != nil {
		t.Fatalf("abi: %v", err)
	}
	if !bytes.Equal(data[:4], mgrABI.Methods["mint"].ID) {
		t.Fatalf("selector: got %x", data[:4])
	}

	values, err := mgrABI.Methods["mint"].Inputs.Unpack(data[4:])
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	params, err := mgrABI.Methods["mint"].Inputs.Pack(values[0])
	if err != nil {
		t.Fatalf("repack: %v", err)
	}
	if !bytes.Equal(params, data[4:]) {
		t.Fatal("mint payload does not round trip")
	}
}

func TestDecreasePayloadRejectsNonPositive(t *testing.T) {
	builder := testBuilder(t)

	_, err := builder.DecreaseLiquidity(model.DecreaseLiquidity{
		ID:              7,
		LiquidityAmount: decimal.Zero,
	}, time.Unix(1700000600, 0))
	if err == nil {
		t.Fatal("zero liquidity decrease accepted")
	}
}

func TestDecreaseAndCollectPayloads(t *testing.T) {
	builder := testBuilder(t)
	mgrABI, err := PositionManagerABI()
	if err != nil {
		t.Fatalf("abi: %v", err)
	}

	data, err := builder.DecreaseLiquidity(model.DecreaseLiquidity{
		ID:              7,
		LiquidityAmount: decimal.New(1, 18),
	}, time.Unix(1700000600, 0))
	if err != nil {
		t.Fatalf("decrease: %v", err)
	}
	if !bytes.Equal(data[:4], mgrABI.Methods["decreaseLiquidity"].ID) {
		t.Fatalf("decrease selector: got %x", data[:4])
	}

	data, err = builder.Collect(model.CollectFees{ID: 7})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if !bytes.Equal(data[:4], mgrABI.Methods["collect"].ID) {
		t.Fatalf("collect selector: got %x", data[:4])
	}
}

func TestIncreasePayload(t *testing.T) {
	builder := testBuilder(t)
	mgrABI, err := PositionManagerABI()
	if err != nil {
		t.Fatalf("abi: %v", err)
	}

	data, err := builder.IncreaseLiquidity(model.IncreaseLiquidity{
		ID:          7,
		Amount0:     decimal.RequireFromString("0.5"),
		Amount1:     decimal.RequireFromString("1000"),
		SlippageBps: 50,
	}, time.Unix(1700000600, 0))
	if err != nil {
		t.Fatalf("increase: %v", err)
	}
	if !bytes.Equal(data[:4], mgrABI.Methods["increaseLiquidity"].ID) {
		t.Fatalf("increase selector: got %x", data[:4])
	}
}

func TestRawAmount(t *testing.T) {
	got := rawAmount(decimal.RequireFromString("1.5"), 6)
	if got.Cmp(big.NewInt(1_500_000)) != 0 {
		t.Fatalf("raw amount: got %s", got)
	}
	// Dust below one raw unit truncates.
	got = rawAmount(decimal.RequireFromString("0.0000019"), 6)
	if got.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("dust amount: got %s", got)
	}
	if rawAmount(decimal.Zero, 6).Sign() != 0 {
		t.Fatal("zero amount")
	}
}

func TestMinAfterSlippage(t *testing.T) {
	got := minAfterSlippage(big.NewInt(10_000), 50)
	if got.Cmp(big.NewInt(9_950)) != 0 {
		t.Fatalf("min: got %s, want 9950", got)
	}
	if minAfterSlippage(big.NewInt(0), 50).Sign() != 0 {
		t.Fatal("zero desired")
	}
	if minAfterSlippage(big.NewInt(100), 20_000).Sign() != 0 {
		t.Fatal("oversized slippage must clamp to zero")
	}
}
