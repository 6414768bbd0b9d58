package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// MalformedFrame is returned by Decode whenever the input does not hold a
// structurally valid frame: a missing required field, an unknown status
// literal, an invalid numeric timestamp, or a non-representable payload.
var MalformedFrame = errors.New("frame: malformed")

const wireVersion = 1

// value type tags, see Value.
const (
	tagNull byte = iota
	tagFalse
	tagTrue
	tagNumber
	tagString
	tagArray
	tagMap
)

// Encode serializes a frame to its binary wire representation. Encode is
// total: every valid in-memory Frame produces bytes.
func Encode(f Frame) []byte {
	var buf bytes.Buffer
	buf.WriteByte(wireVersion)

	writeString(&buf, f.ID)
	writeString(&buf, f.ParentID)
	writeVarint(&buf, f.TsMillis)
	writeString(&buf, f.BoardID)
	writeString(&buf, f.From)
	writeString(&buf, f.Syscall)
	buf.WriteByte(byte(f.Status))
	writeBool(&buf, f.Trace)
	writeValue(&buf, f.Payload)

	return buf.Bytes()
}

// Decode parses a binary frame. It fails with MalformedFrame (wrapped with
// context) on any structural violation.
func Decode(data []byte) (Frame, error) {
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil {
		return Frame{}, fmt.Errorf("%w: missing version: %v", MalformedFrame, err)
	}
	if version != wireVersion {
		return Frame{}, fmt.Errorf("%w: unsupported wire version %d", MalformedFrame, version)
	}

	id, err := readString(r)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: id: %v", MalformedFrame, err)
	}
	if id == "" {
		return Frame{}, fmt.Errorf("%w: id is required", MalformedFrame)
	}

	parentID, err := readString(r)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: parent_id: %v", MalformedFrame, err)
	}

	ts, err := readVarint(r)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: ts: %v", MalformedFrame, err)
	}

	boardID, err := readString(r)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: board_id: %v", MalformedFrame, err)
	}

	from, err := readString(r)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: from: %v", MalformedFrame, err)
	}

	syscall, err := readString(r)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: syscall: %v", MalformedFrame, err)
	}
	if syscall == "" {
		return Frame{}, fmt.Errorf("%w: syscall is required", MalformedFrame)
	}

	statusByte, err := r.ReadByte()
	if err != nil {
		return Frame{}, fmt.Errorf("%w: status: %v", MalformedFrame, err)
	}
	status := Status(statusByte)
	if !status.valid() {
		return Frame{}, fmt.Errorf("%w: unknown status literal %d", MalformedFrame, statusByte)
	}

	trace, err := readBool(r)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: trace: %v", MalformedFrame, err)
	}

	payload, err := readValue(r)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: payload: %v", MalformedFrame, err)
	}

	return Frame{
		ID:       id,
		ParentID: parentID,
		TsMillis: ts,
		BoardID:  boardID,
		From:     from,
		Syscall:  syscall,
		Status:   status,
		Payload:  payload,
		Trace:    trace,
	}, nil
}

// ── primitives ──────────────────────────────────────────────────────────

func writeVarint(buf *bytes.Buffer, n int64) {
	var tmp [binary.MaxVarintLen64]byte
	w := binary.PutVarint(tmp[:], n)
	buf.Write(tmp[:w])
}

func readVarint(r *bytes.Reader) (int64, error) {
	n, err := binary.ReadVarint(r)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func writeUvarint(buf *bytes.Buffer, n uint64) {
	var tmp [binary.MaxVarintLen64]byte
	w := binary.PutUvarint(tmp[:], n)
	buf.Write(tmp[:w])
}

func readUvarint(r *bytes.Reader) (uint64, error) {
	return binary.ReadUvarint(r)
}

func writeBool(buf *bytes.Buffer, b bool) {
	if b {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}

func readBool(r *bytes.Reader) (bool, error) {
	b, err := r.ReadByte()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

func writeString(buf *bytes.Buffer, s string) {
	writeUvarint(buf, uint64(len(s)))
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	n, err := readUvarint(r)
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	if n > uint64(r.Len()) {
		return "", fmt.Errorf("string length %d exceeds remaining buffer", n)
	}
	b := make([]byte, n)
	if _, err := r.Read(b); err != nil {
		return "", err
	}
	return string(b), nil
}

// ── Value ───────────────────────────────────────────────────────────────

func writeValue(buf *bytes.Buffer, v Value) {
	switch v.kind {
	case kindNull:
		buf.WriteByte(tagNull)
	case kindBool:
		if v.b {
			buf.WriteByte(tagTrue)
		} else {
			buf.WriteByte(tagFalse)
		}
	case kindNumber:
		buf.WriteByte(tagNumber)
		var bits [8]byte
		binary.BigEndian.PutUint64(bits[:], math.Float64bits(v.n))
		buf.Write(bits[:])
	case kindString:
		buf.WriteByte(tagString)
		writeString(buf, v.s)
	case kindArray:
		buf.WriteByte(tagArray)
		writeUvarint(buf, uint64(len(v.arr)))
		for _, e := range v.arr {
			writeValue(buf, e)
		}
	case kindMap:
		buf.WriteByte(tagMap)
		writeUvarint(buf, uint64(len(v.pairs)))
		for _, p := range v.pairs {
			writeString(buf, p.key)
			writeValue(buf, p.val)
		}
	default:
		buf.WriteByte(tagNull)
	}
}

func readValue(r *bytes.Reader) (Value, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return Null, err
	}
	switch tag {
	case tagNull:
		return Null, nil
	case tagFalse:
		return Bool(false), nil
	case tagTrue:
		return Bool(true), nil
	case tagNumber:
		var bits [8]byte
		if _, err := io.ReadFull(r, bits[:]); err != nil {
			return Null, err
		}
		return Number(math.Float64frombits(binary.BigEndian.Uint64(bits[:]))), nil
	case tagString:
		s, err := readString(r)
		if err != nil {
			return Null, err
		}
		return String(s), nil
	case tagArray:
		n, err := readUvarint(r)
		if err != nil {
			return Null, err
		}
		// Every element is at least a one-byte tag, so n can't legitimately
		// exceed the remaining buffer. Bounding the allocation here (rather
		// than trusting an attacker-controlled count) matches readString's
		// length check above.
		if n > uint64(r.Len()) {
			return Null, fmt.Errorf("array length %d exceeds remaining buffer", n)
		}
		arr := make([]Value, 0, n)
		for i := uint64(0); i < n; i++ {
			e, err := readValue(r)
			if err != nil {
				return Null, err
			}
			arr = append(arr, e)
		}
		return Value{kind: kindArray, arr: arr}, nil
	case tagMap:
		n, err := readUvarint(r)
		if err != nil {
			return Null, err
		}
		v := Value{kind: kindMap}
		for i := uint64(0); i < n; i++ {
			k, err := readString(r)
			if err != nil {
				return Null, err
			}
			val, err := readValue(r)
			if err != nil {
				return Null, err
			}
			v.pairs = append(v.pairs, pair{key: k, val: val})
		}
		return v, nil
	default:
		return Null, fmt.Errorf("unknown value tag %d", tag)
	}
}
