package memcached

import (
	"fmt"
	"strconv"
)

// FormatStored, FormatNotStored, etc. are the fixed one-line responses.
func FormatStored() []byte    { return []byte("STORED\r\n") }
func FormatNotStored() []byte { return []byte("NOT_STORED\r\n") }
func FormatExists() []byte    { return []byte("EXISTS\r\n") }
func FormatNotFound() []byte  { return []byte("NOT_FOUND\r\n") }
func FormatDeleted() []byte   { return []byte("DELETED\r\n") }
func FormatOK() []byte        { return []byte("OK\r\n") }
func FormatError() []byte     { return []byte("ERROR\r\n") }

// FormatClientError wraps a protocol-violation message (spec §7).
func FormatClientError(msg string) []byte {
	return []byte(fmt.Sprintf("CLIENT_ERROR %s\r\n", msg))
}

// FormatServerError wraps an internal error message.
func FormatServerError(msg string) []byte {
	return []byte(fmt.Sprintf("SERVER_ERROR %s\r\n", msg))
}

func FormatVersion(v string) []byte {
	return []byte(fmt.Sprintf("VERSION %s\r\n", v))
}

func FormatStat(name, value string) []byte {
	return []byte(fmt.Sprintf("STAT %s %s\r\n", name, value))
}

func FormatNumeric(n uint64) []byte {
	return []byte(strconv.FormatUint(n, 10) + "\r\n")
}

// ValueEntry is one key's worth of data for a get/gets response.
type ValueEntry struct {
	Key   string
	Flags uint32
	Value []byte
	CAS   uint64 // only emitted when WithCAS is set on FormatValues
}

// FormatValues renders `VALUE k flags len [cas]\r\n<data>\r\n` for each
// entry followed by a single trailing `END\r\n`.
func FormatValues(entries []ValueEntry, withCAS bool) []byte {
	total := 0
	for _, e := range entries {
		total += len("VALUE  0 0 0\r\n") + len(e.Key) + 10 + 10 + 20 + len(e.Value) + 2
	}
	total += len("END\r\n")
	out := make([]byte, 0, total)
	for _, e := range entries {
		if withCAS {
			out = append(out, fmt.Sprintf("VALUE %s %d %d %d\r\n", e.Key, e.Flags, len(e.Value), e.CAS)...)
		} else {
			out = append(out, fmt.Sprintf("VALUE %s %d %d\r\n", e.Key, e.Flags, len(e.Value))...)
		}
		out = append(out, e.Value...)
		out = append(out, '\r', '\n')
	}
	out = append(out, "END\r\n"...)
	return out
}
