package sourcemap

import (
	"errors"
)

const base64Chars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

var base64Index [256]int8

func init() {
	for i := range base64Index {
		base64Index[i] = -1
	}
	for i := range len(base64Chars) {
		base64Index[base64Chars[i]] = int8(i)
	}
}

var errTruncated = errors.New("truncated VLQ value")

func appendVLQ(buf []byte, v int) []byte {
	u := v << 1
	if v < 0 {
		u = (-v << 1) | 1
	}
	for {
		digit := u & 31
		u >>= 5
		if u > 0 {
			digit |= 32
		}
		buf = append(buf, base64Chars[digit])
		if u == 0 {
			return buf
		}
	}
}

// decodeVLQ reads one value starting at s[i] and returns it with the index
// following it.
func decodeVLQ(s string, i int) (int, int, error) {
	result, shift := 0, 0
	for {
		if i >= len(s) {
			return 0, i, errTruncated
		}
		d := base64Index[s[i]]
		if d < 0 {
			return 0, i, errors.New("invalid base64 character in mappings")
		}
		i++
		result += int(d&31) << shift
		shift += 5
		if d&32 == 0 {
			break
		}
	}
	if result&1 == 1 {
		return -(result >> 1), i, nil
	}
	return result >> 1, i, nil
}
