package source

import (
	"bufio"
	"io"
	"log/slog"
	"strings"
	"testing"

	"gitlab.com/tinyland/lab/barkeep/pkg/config"
	"gitlab.com/tinyland/lab/barkeep/pkg/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decodeAll(t *testing.T, cmd config.Command, input string) []store.Batch {
	t.Helper()
	var batches []store.Batch
	decode := newDecoder(cmd, discardLogger())
	err := decode(bufio.NewReader(strings.NewReader(input)), func(b store.Batch) {
		batches = append(batches, b)
	})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return batches
}

func entryValue(t *testing.T, b store.Batch, name string) string {
	t.Helper()
	for _, e := range b.Entries {
		if e.Name == name {
			return e.Value
		}
	}
	t.Fatalf("entry %q not found in batch %+v", name, b)
	return ""
}

func TestPlainDefaultFieldName(t *testing.T) {
	batches := decodeAll(t, config.Command{Name: "clock"}, "12:30\n12:31\n")
	if len(batches) != 2 {
		t.Fatalf("got %d batches, want 2", len(batches))
	}
	if got := entryValue(t, batches[0], "clock:value"); got != "12:30" {
		t.Errorf("first batch = %q, want %q", got, "12:30")
	}
	if got := entryValue(t, batches[1], "clock:value"); got != "12:31" {
		t.Errorf("second batch = %q, want %q", got, "12:31")
	}
}

func TestPlainLineNamesGrouping(t *testing.T) {
	cmd := config.Command{Name: "source", LineNames: []string{"a", "b"}}
	batches := decodeAll(t, cmd, "x\ny\nz\n")

	// "z" is a partial group: buffered, never emitted.
	if len(batches) != 1 {
		t.Fatalf("got %d batches, want 1", len(batches))
	}
	if got := entryValue(t, batches[0], "source:a"); got != "x" {
		t.Errorf("source:a = %q, want %q", got, "x")
	}
	if got := entryValue(t, batches[0], "source:b"); got != "y" {
		t.Errorf("source:b = %q, want %q", got, "y")
	}
	for _, e := range batches[0].Entries {
		if e.Value == "z" {
			t.Error("partial group must not be emitted")
		}
	}
}

func TestPlainLineNamesRepeatingGroups(t *testing.T) {
	cmd := config.Command{Name: "s", LineNames: []string{"a", "b"}}
	batches := decodeAll(t, cmd, "1\n2\n3\n4\n")
	if len(batches) != 2 {
		t.Fatalf("got %d batches, want 2", len(batches))
	}
	if got := entryValue(t, batches[1], "s:a"); got != "3" {
		t.Errorf("second group s:a = %q, want %q", got, "3")
	}
}

const structuredInput = `{"version":1}
[
[{"name":"workspace","active":0,"value":"1","variants":"1,2,3"}],
[{"name":"wifi","instance":"wlan0","signal":72,"up":true}],
`

func TestStructuredProtocol(t *testing.T) {
	cmd := config.Command{Name: "source", Format: config.FormatStructured}
	batches := decodeAll(t, cmd, structuredInput)
	if len(batches) != 2 {
		t.Fatalf("got %d batches, want 2", len(batches))
	}

	first := batches[0]
	if got := entryValue(t, first, "source:workspace.active"); got != "0" {
		t.Errorf("active = %q, want %q", got, "0")
	}
	if got := entryValue(t, first, "source:workspace.value"); got != "1" {
		t.Errorf("value = %q, want %q", got, "1")
	}
	if got := entryValue(t, first, "source:workspace.variants"); got != "1,2,3" {
		t.Errorf("variants = %q, want %q", got, "1,2,3")
	}
	if first.ResetPrefix != "source:" {
		t.Errorf("ResetPrefix = %q, want %q", first.ResetPrefix, "source:")
	}

	second := batches[1]
	if got := entryValue(t, second, "source:wifi.wlan0.signal"); got != "72" {
		t.Errorf("instanced signal = %q, want %q", got, "72")
	}
	if got := entryValue(t, second, "source:wifi.wlan0.up"); got != "true" {
		t.Errorf("bool field = %q, want %q", got, "true")
	}
}

func TestStructuredDuplicateStreamLastWins(t *testing.T) {
	input := `{"version":1}
[{"name":"cpu","load":"10"},{"name":"cpu","load":"20"}]
`
	cmd := config.Command{Name: "s", Format: config.FormatStructured}
	batches := decodeAll(t, cmd, input)
	if len(batches) != 1 {
		t.Fatalf("got %d batches, want 1", len(batches))
	}

	// Both entries are present; the later one must win when applied.
	st := store.New()
	st.Apply(batches[0])
	if got, _ := st.Get("s:cpu.load"); got != "20" {
		t.Errorf("s:cpu.load = %q, want last occurrence %q", got, "20")
	}
}

func TestStructuredMalformedRowSkipped(t *testing.T) {
	input := `{"version":1}
[{"name":"ok","v":"1"}],
this is not json
[{"name":"ok","v":"2"}],
`
	cmd := config.Command{Name: "s", Format: config.FormatStructured}
	batches := decodeAll(t, cmd, input)
	if len(batches) != 2 {
		t.Fatalf("got %d batches, want 2 (malformed row skipped)", len(batches))
	}
	if got := entryValue(t, batches[1], "s:ok.v"); got != "2" {
		t.Errorf("post-error batch = %q, want %q", got, "2")
	}
}

// A producer that botches its header line still gets its rows
// decoded; the header failure is a warning, never a stream error.
func TestStructuredBadHeaderStillConsumes(t *testing.T) {
	input := `not-json
[{"name":"ok","v":"1"}]
`
	cmd := config.Command{Name: "s", Format: config.FormatStructured}
	batches := decodeAll(t, cmd, input)
	if len(batches) != 1 {
		t.Fatalf("got %d batches, want 1", len(batches))
	}
	if got := entryValue(t, batches[0], "s:ok.v"); got != "1" {
		t.Errorf("s:ok.v = %q, want %q", got, "1")
	}
}

func TestStructuredMissingNameFallsBackToIndex(t *testing.T) {
	input := `{"version":1}
[{"v":"x"}]
`
	cmd := config.Command{Name: "s", Format: config.FormatStructured}
	batches := decodeAll(t, cmd, input)
	if got := entryValue(t, batches[0], "s:0.v"); got != "x" {
		t.Errorf("indexed stream = %q, want %q", got, "x")
	}
}

func TestFormatSniffing(t *testing.T) {
	// No explicit format: JSON header selects the structured protocol.
	batches := decodeAll(t, config.Command{Name: "s"}, structuredInput)
	if len(batches) != 2 {
		t.Fatalf("sniffed structured: got %d batches, want 2", len(batches))
	}

	// Plain text stays plain even if a later line looks like JSON.
	batches = decodeAll(t, config.Command{Name: "p"}, "hello\n[1]\n")
	if len(batches) != 2 {
		t.Fatalf("sniffed plain: got %d batches, want 2", len(batches))
	}
	if got := entryValue(t, batches[1], "p:value"); got != "[1]" {
		t.Errorf("plain line = %q, want %q", got, "[1]")
	}
}

func TestSniffEmptyStream(t *testing.T) {
	batches := decodeAll(t, config.Command{Name: "s"}, "")
	if len(batches) != 0 {
		t.Fatalf("got %d batches for empty stream, want 0", len(batches))
	}
}
