package symbols

import "testing"

func TestKindIsTypeLevel(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{KindInterface, true},
		{KindType, true},
		{KindEnum, true},
		{KindFunction, false},
		{KindMethod, false},
		{KindClass, false},
		{KindVariable, false},
		{KindConstant, false},
	}

	for _, tt := range tests {
		if got := tt.kind.IsTypeLevel(); got != tt.want {
			t.Errorf("IsTypeLevel(%s) = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestAspectKeyRoundTrip(t *testing.T) {
	key := AspectKey("purpose")
	if key != "aspect.purpose" {
		t.Errorf("AspectKey(purpose) = %s", key)
	}
	if got := AspectFromKey(key); got != "purpose" {
		t.Errorf("AspectFromKey(%s) = %s, want purpose", key, got)
	}
	if got := AspectFromKey("role"); got != "" {
		t.Errorf("AspectFromKey(role) = %q, want empty", got)
	}
}

func TestMetadataSet(t *testing.T) {
	m := MetadataSet{
		"aspect.purpose": "parses config",
		"aspect.domain":  "billing",
		"role":           "entrypoint",
	}

	if !m.HasAspect("purpose") {
		t.Error("expected purpose aspect present")
	}
	if m.HasAspect("purity") {
		t.Error("purity aspect should be absent")
	}
	if !m.IsEntrypoint() {
		t.Error("expected entrypoint role")
	}
	if got := len(m.Aspects()); got != 2 {
		t.Errorf("expected 2 aspects, got %d", got)
	}
}
