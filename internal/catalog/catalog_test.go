package catalog

import "testing"

func TestRegisterAssignsDistinctBits(t *testing.T) {
	Reset()
	defer Reset()

	if err := Register("gemini-2.5-pro", "gemini-2.5-flash", "gpt-5"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	seen := map[uint64]string{}
	for _, name := range []string{"gemini-2.5-pro", "gemini-2.5-flash", "gpt-5"} {
		mask, ok := Mask(name)
		if !ok {
			t.Fatalf("mask missing for %s", name)
		}
		if mask == 0 || mask&(mask-1) != 0 {
			t.Errorf("%s mask %#x is not a single bit", name, mask)
		}
		if prev, dup := seen[mask]; dup {
			t.Errorf("mask %#x shared by %s and %s", mask, prev, name)
		}
		seen[mask] = name
	}
}

func TestRegisterIsIdempotentPerName(t *testing.T) {
	Reset()
	defer Reset()

	Register("gemini-2.5-pro")
	first, _ := Mask("gemini-2.5-pro")
	Register("gemini-2.5-pro")
	second, _ := Mask("gemini-2.5-pro")
	if first != second {
		t.Error("re-registering a model changed its mask")
	}
}

func TestMaskUnknownModel(t *testing.T) {
	Reset()
	defer Reset()

	if _, ok := Mask("never-registered"); ok {
		t.Error("unknown model should have no mask")
	}
}

func TestRegisterExhaustsAt64(t *testing.T) {
	Reset()
	defer Reset()

	names := make([]string, 64)
	for i := range names {
		names[i] = string(rune('a'+i%26)) + string(rune('0'+i/26))
	}
	if err := Register(names...); err != nil {
		t.Fatalf("Register 64: %v", err)
	}
	if err := Register("one-too-many"); err == nil {
		t.Error("65th model should exhaust the mask space")
	}
}
