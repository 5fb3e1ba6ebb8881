package keys

import (
	"strings"
	"testing"

	"github.com/mhrdika/besttime-cache/internal/core/model"
)

func q(w, k, d int) model.Query {
	return model.Query{WindowHours: w, TopK: k, DaysAhead: d}
}

func TestNormalizeKeyword(t *testing.T) {
	cases := []struct{ in, want string }{
		{"SKINCARE", "skincare"},
		{"FaShIoN", "fashion"},
		{"skin-care!", "skin_care"},
		{"hello@world#123", "hello_world_123"},
		{"skin care product", "skin_care_product"},
		{"hello   world", "hello_world"},
		{"  skincare  ", "skincare"},
		{"-skincare-", "skincare"},
		{"Skin-Care Product 2024!", "skin_care_product_2024"},
	}
	for _, c := range cases {
		if got := NormalizeKeyword(c.in); got != c.want {
			t.Errorf("NormalizeKeyword(%q)=%q want %q", c.in, got, c.want)
		}
	}
}

func TestKey_Deterministic(t *testing.T) {
	a := Key("kopi susu", q(3, 3, 7))
	b := Key("kopi susu", q(3, 3, 7))
	if a != b {
		t.Fatalf("same inputs produced different keys: %q vs %q", a, b)
	}
}

func TestKey_LogicallyEqualInputsCollapse(t *testing.T) {
	a := Key("  Kopi Susu ", q(3, 3, 7))
	b := Key("kopi susu", q(3, 3, 7))
	if a != b {
		t.Fatalf("logically equal inputs encode differently: %q vs %q", a, b)
	}
}

func TestKey_DistinctInputsDiffer(t *testing.T) {
	seen := map[string]string{}
	categories := []string{"kopi", "kopi susu", "skincare", "fashion", "gaming"}
	for _, cat := range categories {
		for w := 1; w <= 6; w++ {
			for k := 1; k <= 5; k++ {
				key := Key(cat, q(w, k, 7))
				id := cat + "|" + key
				if prevID, ok := seen[key]; ok && prevID != id {
					t.Fatalf("collision: %q and %q -> %q", prevID, id, key)
				}
				seen[key] = id
			}
		}
	}
}

func TestKey_SafeForStore(t *testing.T) {
	key := Key("weird \t\n keyword \x00 ##", q(2, 1, 3))
	for _, r := range key {
		if r <= ' ' || r == 0x7f {
			t.Fatalf("key contains unsafe rune %q: %q", r, key)
		}
	}
	if !strings.HasPrefix(key, Prefix("weird \t\n keyword \x00 ##")) {
		t.Fatalf("key %q does not start with its category prefix", key)
	}
}

func TestLockKey(t *testing.T) {
	a := Key("kopi", q(3, 3, 7))
	b := Key("kopi", q(4, 3, 7))
	if LockKey(a) == a {
		t.Fatal("lock key must differ from cache key")
	}
	if LockKey(a) == LockKey(b) {
		t.Fatalf("distinct cache keys share a lock key: %q", LockKey(a))
	}
}

func TestLockKey_OutsideEveryCategoryPrefix(t *testing.T) {
	// invalidation deletes by category prefix; a lock key inside that
	// keyspace would be swept mid-fetch
	for _, cat := range []string{"kopi", "skincare", "Skin-Care Product 2024!"} {
		lk := LockKey(Key(cat, q(3, 3, 7)))
		if strings.HasPrefix(lk, Prefix(cat)) {
			t.Fatalf("lock key %q is inside the swept prefix %q", lk, Prefix(cat))
		}
	}
}
