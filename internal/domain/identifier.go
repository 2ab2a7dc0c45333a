package domain

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"unicode/utf16"
)

// PaperID is the stable key of a paper. It is the decimal form of a native
// numeric id, a native non-numeric id verbatim, or the decimal title hash.
type PaperID string

// String returns the id as a plain string.
func (id PaperID) String() string {
	return string(id)
}

// NativeID holds the optional "id" field of a document, which arrives as a
// JSON number or a JSON string.
type NativeID struct {
	raw string
}

// NewNativeID builds a NativeID from its textual form.
func NewNativeID(s string) NativeID {
	return NativeID{raw: strings.TrimSpace(s)}
}

// UnmarshalJSON accepts numbers, strings and null.
func (n *NativeID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		n.raw = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		n.raw = strings.TrimSpace(s)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return err
	}
	n.raw = num.String()
	return nil
}

// MarshalJSON writes the id back as a string, or null when absent.
func (n NativeID) MarshalJSON() ([]byte, error) {
	if n.raw == "" {
		return []byte("null"), nil
	}
	return json.Marshal(n.raw)
}

// IsZero reports whether the document carried no usable id. A numeric zero
// counts as absent.
func (n NativeID) IsZero() bool {
	if n.raw == "" {
		return true
	}
	if v, ok := n.integer(); ok {
		return v == 0
	}
	return false
}

// integer parses the id as a base-10 integer, truncating a numeric fraction.
func (n NativeID) integer() (int64, bool) {
	if v, err := strconv.ParseInt(n.raw, 10, 64); err == nil {
		return v, true
	}
	if f, err := strconv.ParseFloat(n.raw, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) &&
		f >= math.MinInt64 && f <= math.MaxInt64 {
		return int64(f), true
	}
	return 0, false
}

// ResolveID derives the key for a document. A native numeric id is used in
// canonical decimal form and any other native id verbatim. Otherwise the
// title hash is used. No normalization is applied to the title.
func ResolveID(native NativeID, title string) PaperID {
	if !native.IsZero() {
		if v, ok := native.integer(); ok {
			return PaperID(strconv.FormatInt(v, 10))
		}
		return PaperID(native.raw)
	}
	return PaperID(strconv.FormatInt(HashTitle(title), 10))
}

// HashTitle computes h = h*31 + unit over the UTF-16 code units of title,
// wrapping at signed 32 bits, and returns the absolute value. The result is
// widened before negation so math.MinInt32 maps to 2147483648.
func HashTitle(title string) int64 {
	var h int32
	for _, unit := range utf16.Encode([]rune(title)) {
		h = h*31 + int32(unit)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return v
}
