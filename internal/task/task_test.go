package task

import (
	"strings"
	"testing"
)

func TestHashStableAcrossCalls(t *testing.T) {
	v := map[string]any{"lr": 0.1, "depth": 3}
	a, err := Hash(v)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	b, err := Hash(map[string]any{"depth": 3, "lr": 0.1})
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if a != b {
		t.Fatalf("same task hashed differently: %q vs %q", a, b)
	}
	if len(a) != 40 || strings.ToLower(a) != a {
		t.Fatalf("unexpected hash format: %q", a)
	}
}

func TestHashDistinguishesValues(t *testing.T) {
	a, _ := Hash(map[string]any{"lr": 0.1})
	b, _ := Hash(map[string]any{"lr": 0.2})
	if a == b {
		t.Fatal("different tasks share a hash")
	}
}

func TestRoundTripPreservesIdentity(t *testing.T) {
	orig := map[string]any{"model": map[string]any{"depth": 3}, "seed": 7}
	s, err := Marshal(orig)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	back, err := Unmarshal(s)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	h1, _ := Hash(orig)
	h2, _ := Hash(back)
	if h1 != h2 {
		t.Fatalf("round trip changed identity: %q vs %q", h1, h2)
	}
}

func TestScalarTasks(t *testing.T) {
	a, err := Hash("configs/exp1.yaml")
	if err != nil {
		t.Fatalf("hash scalar: %v", err)
	}
	b, _ := Hash("configs/exp2.yaml")
	if a == b {
		t.Fatal("distinct scalar tasks share a hash")
	}
}
