// Package source runs the configured external commands and decodes
// their stdout into variable batches. Each command owns one goroutine
// which spawns the process, decodes its output stream until it ends,
// waits out the restart interval and relaunches, forever. A crashing
// command degrades only its own variables; decode errors are logged
// and skipped without terminating the process.
package source

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"gitlab.com/tinyland/lab/barkeep/pkg/config"
	"gitlab.com/tinyland/lab/barkeep/pkg/store"
)

// decoder turns one process's stdout stream into variable batches.
// Decoder state never survives a restart; the supervisor builds a
// fresh decoder per launch.
type decoder interface {
	// decode consumes the stream until EOF or error, emitting batches.
	decode(r *bufio.Reader, emit func(store.Batch)) error
}

// sniffFormat inspects the first structural byte of the stream when no
// explicit format override is configured. A JSON marker ('{' header or
// '[' array) selects the structured protocol; anything else is plain.
// Once chosen, the format is fixed until the process restarts.
func sniffFormat(r *bufio.Reader) (config.Format, error) {
	for {
		b, err := r.Peek(1)
		if err != nil {
			return config.FormatPlain, err
		}
		switch b[0] {
		case ' ', '\t', '\r', '\n':
			if _, err := r.ReadByte(); err != nil {
				return config.FormatPlain, err
			}
			continue
		case '{', '[':
			return config.FormatStructured, nil
		default:
			return config.FormatPlain, nil
		}
	}
}

// newDecoder builds the decoder for one process launch.
func newDecoder(cmd config.Command, log *slog.Logger) func(r *bufio.Reader, emit func(store.Batch)) error {
	return func(r *bufio.Reader, emit func(store.Batch)) error {
		format := cmd.Format
		if format == "" || format == config.FormatAuto {
			var err error
			format, err = sniffFormat(r)
			if err != nil {
				if err == io.EOF {
					return nil
				}
				return err
			}
		}
		var d decoder
		switch format {
		case config.FormatStructured:
			d = &structuredDecoder{source: cmd.Name, log: log}
		default:
			d = &plainDecoder{source: cmd.Name, lineNames: cmd.LineNames}
		}
		return d.decode(r, emit)
	}
}

// plainDecoder decodes newline-delimited values. Without line names,
// each line atomically sets <source>:value. With N line names, lines
// are consumed in repeating groups of N, each group emitted as one
// batch; a partial final group is buffered and discarded at stream
// end, never emitted.
type plainDecoder struct {
	source    string
	lineNames []string
	group     []string
}

func (d *plainDecoder) decode(r *bufio.Reader, emit func(store.Batch)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if len(d.lineNames) == 0 {
			emit(store.Batch{Entries: []store.Entry{
				{Name: d.source + ":value", Value: line},
			}})
			continue
		}
		d.group = append(d.group, line)
		if len(d.group) < len(d.lineNames) {
			continue
		}
		entries := make([]store.Entry, len(d.lineNames))
		for i, name := range d.lineNames {
			entries[i] = store.Entry{Name: d.source + ":" + name, Value: d.group[i]}
		}
		d.group = d.group[:0]
		emit(store.Batch{Entries: entries})
	}
	return scanner.Err()
}

// structuredDecoder decodes the multi-stream JSON protocol: a version
// header object on the first line, then one JSON array of objects per
// line, each array being one atomic refresh batch. Objects carry a
// required "name" (stream identity), an optional "instance", and
// arbitrary further fields, all published as
// <source>:<name>[.<instance>].<field>. Unknown fields are kept
// (forward compatible); malformed lines are logged and skipped.
type structuredDecoder struct {
	source string
	log    *slog.Logger
}

// protocolJSON keeps numbers as json.Number so "0" round-trips as "0"
// rather than "0.000000".
var protocolJSON = jsoniter.Config{UseNumber: true}.Froze()

type protocolHeader struct {
	Version int `json:"version"`
}

func (d *structuredDecoder) decode(r *bufio.Reader, emit func(store.Batch)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	// Header line. A malformed or wrong-version header is a warning,
	// not a decode failure: the rest of the stream is still consumed,
	// so a sloppy producer degrades to per-row skips instead of
	// tearing down its own process loop.
	if !scanner.Scan() {
		return scanner.Err()
	}
	var hdr protocolHeader
	if err := protocolJSON.UnmarshalFromString(scanner.Text(), &hdr); err != nil {
		d.log.Warn("malformed protocol header, continuing anyway",
			"source", d.source, "error", err)
	} else if hdr.Version != 1 {
		d.log.Warn("unexpected protocol version, continuing anyway",
			"source", d.source, "version", hdr.Version)
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		// Outer-array framing emitted by some producers.
		line = strings.TrimPrefix(line, ",")
		if line == "" || line == "[" || line == "]" {
			continue
		}
		line = strings.TrimSuffix(line, ",")

		var row []map[string]interface{}
		if err := protocolJSON.UnmarshalFromString(line, &row); err != nil {
			d.log.Warn("skipping malformed protocol row",
				"source", d.source, "error", err)
			continue
		}
		emit(d.rowToBatch(row))
	}
	return scanner.Err()
}

// rowToBatch converts one refresh batch. If the same (stream,
// instance) pair appears twice, the later occurrence wins because
// entries apply in order within the atomic batch.
func (d *structuredDecoder) rowToBatch(row []map[string]interface{}) store.Batch {
	batch := store.Batch{ResetPrefix: d.source + ":"}
	for idx, obj := range row {
		stream := fmt.Sprintf("%d", idx)
		if name, ok := obj["name"].(string); ok && name != "" {
			stream = name
		}
		prefix := d.source + ":" + stream
		if instance, ok := obj["instance"].(string); ok && instance != "" {
			prefix += "." + instance
		}
		for field, value := range obj {
			if field == "name" || field == "instance" {
				continue
			}
			batch.Entries = append(batch.Entries, store.Entry{
				Name:  prefix + "." + field,
				Value: jsonScalar(value),
			})
		}
	}
	return batch
}

// jsonScalar renders a decoded JSON value the way the protocol's
// producers wrote it: strings as-is, numbers verbatim, booleans as
// true/false, and anything nested re-encoded as JSON.
func jsonScalar(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	case nil:
		return ""
	default:
		out, err := protocolJSON.MarshalToString(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return out
	}
}
