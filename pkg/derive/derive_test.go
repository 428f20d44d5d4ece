package derive

import "testing"

func TestAddressDeterministic(t *testing.T) {
	a := Address(TagUser, []byte("alice"))
	b := Address(TagUser, []byte("alice"))
	if a != b {
		t.Fatalf("same seeds produced different addresses: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
}

func TestAddressVariesWithTag(t *testing.T) {
	if UserAddress("alice") == EscrowAddress("alice") {
		t.Fatal("user and escrow addresses collided for the same owner")
	}
}

func TestAddressVariesWithSeeds(t *testing.T) {
	if UserAddress("alice") == UserAddress("bob") {
		t.Fatal("different owners derived the same address")
	}
}

func TestSeedBoundariesMatter(t *testing.T) {
	// "ab" as one component must differ from "a","b" as two.
	joined := Address("t", []byte("ab"))
	split := Address("t", []byte("a"), []byte("b"))
	if joined == split {
		t.Fatal("seed component boundaries were not preserved")
	}
}

func TestContractAddressVariesWithNonce(t *testing.T) {
	seen := make(map[string]bool)
	for id := uint64(0); id < 10; id++ {
		addr := ContractAddress("buyer", "seller", id)
		if seen[addr] {
			t.Fatalf("duplicate address for nonce %d", id)
		}
		seen[addr] = true
	}
}

func TestContractAddressVariesWithParties(t *testing.T) {
	a := ContractAddress("alice", "bob", 0)
	b := ContractAddress("bob", "alice", 0)
	if a == b {
		t.Fatal("swapped parties derived the same contract address")
	}
}
