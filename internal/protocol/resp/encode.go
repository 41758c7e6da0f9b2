package resp

import (
	"fmt"
	"strconv"
)

func EncodeSimpleString(s string) []byte { return []byte("+" + s + "\r\n") }
func EncodeError(msg string) []byte      { return []byte("-" + msg + "\r\n") }
func EncodeInteger(n int64) []byte       { return []byte(":" + strconv.FormatInt(n, 10) + "\r\n") }

func EncodeBulkString(data []byte) []byte {
	return []byte(fmt.Sprintf("$%d\r\n%s\r\n", len(data), data))
}

func EncodeNullBulkString() []byte { return []byte("$-1\r\n") }
func EncodeNullArray() []byte      { return []byte("*-1\r\n") }

func EncodeArray(items [][]byte) []byte {
	out := []byte(fmt.Sprintf("*%d\r\n", len(items)))
	for _, it := range items {
		out = append(out, it...)
	}
	return out
}

// Encode renders a parsed Frame back to its canonical wire form, used for
// the parse-then-format round-trip law in spec §8.
func Encode(f Frame) []byte {
	switch f.Type {
	case SimpleString:
		return EncodeSimpleString(f.Str)
	case Error:
		return EncodeError(f.Str)
	case Integer:
		return EncodeInteger(f.Int)
	case BulkString:
		if f.Null {
			return EncodeNullBulkString()
		}
		return EncodeBulkString(f.Bulk)
	case Array:
		if f.Null {
			return EncodeNullArray()
		}
		items := make([][]byte, len(f.Items))
		for i, it := range f.Items {
			items[i] = Encode(it)
		}
		return EncodeArray(items)
	default:
		return nil
	}
}
