package expr

import (
	"testing"
)

func lookupMap(m map[string]string) Lookup {
	return func(name string) (string, bool) {
		v, ok := m[name]
		return v, ok
	}
}

func TestResolveLiteralAndRefs(t *testing.T) {
	tmpl := MustParse("<test> ${foo} $$ ${bar}, (${not_found}) </test>")
	got := tmpl.Resolve(lookupMap(map[string]string{
		"foo": "hello",
		"bar": "world",
		"baz": "unused",
	}))
	want := "<test> hello $$ world, () </test>"
	if got != want {
		t.Errorf("Resolve = %q, want %q", got, want)
	}
}

func TestResolveUnknownVariableIsEmpty(t *testing.T) {
	tmpl := MustParse("[${missing:var}]")
	if got := tmpl.Resolve(lookupMap(nil)); got != "[]" {
		t.Errorf("Resolve = %q, want %q", got, "[]")
	}
}

func TestParseUnterminatedPlaceholder(t *testing.T) {
	if _, err := Parse("broken ${foo"); err == nil {
		t.Fatal("Parse should fail on unterminated placeholder")
	}
}

func TestReferences(t *testing.T) {
	tmpl := MustParse("${a:x} mid ${b:y|def:z} ${a:x}")
	refs := tmpl.References()
	want := []string{"a:x", "b:y", "a:x"}
	if len(refs) != len(want) {
		t.Fatalf("References = %v, want %v", refs, want)
	}
	for i := range want {
		if refs[i] != want[i] {
			t.Errorf("References[%d] = %q, want %q", i, refs[i], want[i])
		}
	}
}

func TestDefFilter(t *testing.T) {
	tests := []struct {
		name  string
		vars  map[string]string
		want  string
		tmpl  string
	}{
		{"empty uses fallback", map[string]string{"v": ""}, "n/a", "${v|def:n/a}"},
		{"missing uses fallback", nil, "n/a", "${v|def:n/a}"},
		{"non-empty passes through", map[string]string{"v": "up"}, "up", "${v|def:n/a}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MustParse(tt.tmpl).Resolve(lookupMap(tt.vars))
			if got != tt.want {
				t.Errorf("Resolve = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMaxFilter(t *testing.T) {
	tests := []struct {
		in   string
		tmpl string
		want string
	}{
		{"short", "${v|max:10}", "short"},
		{"exactly-ten", "${v|max:11}", "exactly-ten"},
		{"this is too long", "${v|max:7}", "this is…"},
		{"héllo wörld", "${v|max:5}", "héllo…"},
	}
	for _, tt := range tests {
		got := MustParse(tt.tmpl).Resolve(lookupMap(map[string]string{"v": tt.in}))
		if got != tt.want {
			t.Errorf("max(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAlignFilter(t *testing.T) {
	tests := []struct {
		arg  string
		in   string
		want string
	}{
		{" <8", "abc", "abc     "},
		{" >8", "abc", "     abc"},
		{" ^8", "abc", "  abc   "}, // odd pad: extra filler on the right
		{".^7", "abc", "..abc.."},
		{"0>5", "42", "00042"},
	}
	for _, tt := range tests {
		got := MustParse("${v|align:" + tt.arg + "}").Resolve(lookupMap(map[string]string{"v": tt.in}))
		if got != tt.want {
			t.Errorf("align:%q(%q) = %q, want %q", tt.arg, tt.in, got, tt.want)
		}
	}
}

// For input at or above the target width, align is the identity for
// every filler and direction.
func TestAlignWideInputUnchanged(t *testing.T) {
	in := "wide enough"
	for _, dir := range []string{"<", "^", ">"} {
		for _, filler := range []string{" ", ".", "0"} {
			arg := filler + dir + "5"
			got := MustParse("${v|align:" + arg + "}").Resolve(lookupMap(map[string]string{"v": in}))
			if got != in {
				t.Errorf("align:%q(%q) = %q, want unchanged", arg, in, got)
			}
		}
	}
}

func TestUnknownFilterPassesThrough(t *testing.T) {
	tmpl := MustParse("${v|sparkle:9}")
	if got := tmpl.Resolve(lookupMap(map[string]string{"v": "plain"})); got != "plain" {
		t.Errorf("Resolve = %q, want pass-through %q", got, "plain")
	}
	unknown := tmpl.UnknownFilters()
	if len(unknown) != 1 || unknown[0] != "sparkle" {
		t.Errorf("UnknownFilters = %v, want [sparkle]", unknown)
	}
}

func TestFilterChainOrder(t *testing.T) {
	// def fills in the fallback first, then align pads it.
	tmpl := MustParse("${v|def:??|align: >4}")
	if got := tmpl.Resolve(lookupMap(nil)); got != "  ??" {
		t.Errorf("Resolve = %q, want %q", got, "  ??")
	}
}

func TestReplaceChainAppliesAllInOrder(t *testing.T) {
	chain, err := CompileChain([][]string{{"1", "2"}, {"2", "3"}}, false)
	if err != nil {
		t.Fatalf("CompileChain: %v", err)
	}
	// The chain re-matches against the progressively replaced value,
	// so it is not idempotent: 1 -> 2 -> 3.
	if got := chain.Apply("1"); got != "3" {
		t.Errorf("Apply(1) = %q, want %q", got, "3")
	}
}

func TestReplaceChainFirstMatchOnly(t *testing.T) {
	chain, err := CompileChain([][]string{
		{"no-match", "x"},
		{"1", "one"},
		{"one", "never"},
	}, true)
	if err != nil {
		t.Fatalf("CompileChain: %v", err)
	}
	if got := chain.Apply("1"); got != "one" {
		t.Errorf("Apply(1) = %q, want %q", got, "one")
	}
	// No rule matches: value unchanged, not an error.
	if got := chain.Apply("zzz"); got != "zzz" {
		t.Errorf("Apply(zzz) = %q, want unchanged", got)
	}
}

func TestReplaceChainBackreferences(t *testing.T) {
	chain, err := CompileChain([][]string{{`(\d+)x(\d+)`, "$2x$1"}}, false)
	if err != nil {
		t.Fatalf("CompileChain: %v", err)
	}
	if got := chain.Apply("1920x1080"); got != "1080x1920" {
		t.Errorf("Apply = %q, want %q", got, "1080x1920")
	}
}

func TestCompileChainBadPattern(t *testing.T) {
	if _, err := CompileChain([][]string{{"(", ""}}, false); err == nil {
		t.Fatal("CompileChain should reject invalid regex")
	}
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		kind NumberKind
		in   string
		want float64
	}{
		{NumberPlain, "42", 42},
		{NumberPlain, " 3.5 ", 3.5},
		{NumberPercent, "85%", 85},
		{NumberPercent, "85", 85},
		{NumberBytes, "1.5GB", 1.5e9},
		{NumberBytes, "1.5GiB", 1.5 * 1024 * 1024 * 1024},
		{NumberBytes, "512kB", 512000},
		{NumberBytes, "512KiB", 512 * 1024},
	}
	for _, tt := range tests {
		got, err := ParseNumber(tt.kind, tt.in)
		if err != nil {
			t.Errorf("ParseNumber(%v, %q) error: %v", tt.kind, tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseNumber(%v, %q) = %v, want %v", tt.kind, tt.in, got, tt.want)
		}
	}
}

func TestParseNumberFailures(t *testing.T) {
	for _, tt := range []struct {
		kind NumberKind
		in   string
	}{
		{NumberPlain, ""},
		{NumberPlain, "not-a-number"},
		{NumberBytes, "lots"},
	} {
		if _, err := ParseNumber(tt.kind, tt.in); err == nil {
			t.Errorf("ParseNumber(%v, %q) should fail", tt.kind, tt.in)
		}
	}
}

func TestSelectRamp(t *testing.T) {
	entries := []RampEntry{
		{Threshold: 0, Format: MustParse("low ${value}")},
		{Threshold: 50, Format: MustParse("mid ${value}")},
		{Threshold: 90, Format: MustParse("high ${value}")},
	}
	tests := []struct {
		value float64
		want  string
	}{
		{-1, ""},
		{0, "low ${value}"},
		{49.9, "low ${value}"},
		{50, "mid ${value}"},
		{95, "high ${value}"},
	}
	for _, tt := range tests {
		got := SelectRamp(entries, tt.value)
		if got.String() != tt.want {
			t.Errorf("SelectRamp(%v) = %q, want %q", tt.value, got.String(), tt.want)
		}
	}
}
