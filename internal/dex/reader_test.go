package dex

import (
	"math/big"
	"testing"
)

func TestABIsParse(t *testing.T) {
	if _, err := V3PoolABI(); err != nil {
		t.Fatalf("pool abi: %v", err)
	}
	if _, err := V3FactoryABI(); err != nil {
		t.Fatalf("factory abi: %v", err)
	}
	if _, err := PositionManagerABI(); err != nil {
		t.Fatalf("position manager abi: %v", err)
	}
	if _, err := erc20StringABI(); err != nil {
		t.Fatalf("erc20 abi: %v", err)
	}
	if _, err := erc20Bytes32ABI(); err != nil {
		t.Fatalf("erc20 bytes32 abi: %v", err)
	}
}

func TestPoolABIMethods(t *testing.T) {
	poolABI, err := V3PoolABI()
	if err != nil {
		t.Fatalf("pool abi: %v", err)
	}
	for _, method := range []string{"slot0", "token0", "token1", "fee", "tickSpacing", "liquidity"} {
		if _, ok := poolABI.Methods[method]; !ok {
			t.Fatalf("pool abi missing %s", method)
		}
	}

	mgrABI, err := PositionManagerABI()
	if err != nil {
		t.Fatalf("position manager abi: %v", err)
	}
	positions, ok := mgrABI.Methods["positions"]
	if !ok {
		t.Fatal("position manager abi missing positions")
	}
	// tickLower/tickUpper/liquidity at 5/6/7, tokensOwed at 10/11.
	if len(positions.Outputs) != 12 {
		t.Fatalf("positions outputs: got %d, want 12", len(positions.Outputs))
	}
}

func TestBytes32ToString(t *testing.T) {
	var raw [32]byte
	copy(raw[:], "MKR")

	got, ok := bytes32ToString(raw)
	if !ok {
		t.Fatal("fixed array rejected")
	}
	if got != "MKR" {
		t.Fatalf("symbol: got %q", got)
	}

	if _, ok := bytes32ToString(42); ok {
		t.Fatal("non-bytes input accepted")
	}
}

func TestInt24FromBig(t *testing.T) {
	cases := []struct {
		in   int64
		want int32
		ok   bool
	}{
		{0, 0, true},
		{-887272, -887272, true},
		{887272, 887272, true},
		{(1 << 23) - 1, (1 << 23) - 1, true},
		{-(1 << 23), -(1 << 23), true},
		{1 << 23, 0, false},
		{-(1 << 23) - 1, 0, false},
	}

	for _, c := range cases {
		got, err := int24FromBig(big.NewInt(c.in))
		if c.ok && err != nil {
			t.Fatalf("int24(%d): %v", c.in, err)
		}
		if !c.ok && err == nil {
			t.Fatalf("int24(%d): overflow accepted", c.in)
		}
		if c.ok && got != c.want {
			t.Fatalf("int24(%d): got %d", c.in, got)
		}
	}
}
