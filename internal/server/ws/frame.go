package ws

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gorilla/websocket"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Format selects how frames are encoded on the wire.
type Format int

const (
	// FormatProto sends binary frames holding a google.protobuf.Struct.
	FormatProto Format = iota
	// FormatJSON sends text frames.
	FormatJSON
)

// ParseFormat maps the format query value; unknown values fall back to
// FormatProto.
func ParseFormat(s string) Format {
	if strings.EqualFold(strings.TrimSpace(s), "json") {
		return FormatJSON
	}
	return FormatProto
}

type frame struct {
	kind int
	data []byte
}

// maxExactFloat is the largest integer a protobuf double holds exactly.
const maxExactFloat = 1 << 53

// envelope is {"type": typ, "payload": payload}.
func envelope(typ string, payload any) (map[string]any, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var body any
	if err := dec.Decode(&body); err != nil {
		return nil, err
	}
	return map[string]any{"type": typ, "payload": exactNumbers(body)}, nil
}

// exactNumbers converts decoded numbers to float64 when that is lossless
// and to decimal strings otherwise, so large stakes survive Struct encoding.
func exactNumbers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = exactNumbers(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = exactNumbers(e)
		}
		return t
	case json.Number:
		if n, err := t.Int64(); err == nil {
			if n > maxExactFloat || n < -maxExactFloat {
				return t.String()
			}
			return float64(n)
		}
		f, err := t.Float64()
		if err != nil {
			return t.String()
		}
		return f
	}
	return v
}

func encode(f Format, typ string, payload any) (frame, error) {
	env, err := envelope(typ, payload)
	if err != nil {
		return frame{}, fmt.Errorf("ws: envelope %s: %w", typ, err)
	}
	if f == FormatJSON {
		data, err := json.Marshal(env)
		if err != nil {
			return frame{}, fmt.Errorf("ws: marshal %s: %w", typ, err)
		}
		return frame{kind: websocket.TextMessage, data: data}, nil
	}

	st, err := structpb.NewStruct(env)
	if err != nil {
		return frame{}, fmt.Errorf("ws: struct %s: %w", typ, err)
	}
	data, err := proto.Marshal(st)
	if err != nil {
		return frame{}, fmt.Errorf("ws: proto %s: %w", typ, err)
	}
	return frame{kind: websocket.BinaryMessage, data: data}, nil
}

// DecodeFrame turns a binary frame back into its envelope. Clients written
// in Go can use it to read the stream.
func DecodeFrame(data []byte) (map[string]any, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("ws: decode frame: %w", err)
	}
	return st.AsMap(), nil
}
