// Copyright 2015-2019 Parity Technologies (UK) Ltd.
// This file is part of Parity.
//
// Parity is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Parity is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Parity. If not, see <http://www.gnu.org/licenses/>.

// Package hexprefix implements the Ethereum hex-prefix encoding (HPE).
//
// HPE packs a sequence of nibbles plus a flag into bytes. The high nibble
// of the first byte contains the flag; its lowest bit encodes the oddness
// of the length and the second-lowest bit encodes whether the key belongs
// to a leaf. The low nibble of the first byte is zero for an even number
// of payload nibbles, otherwise it holds the first nibble. All remaining
// nibbles (now an even number) fit two per byte, most significant first.
//
//	[1,2,3,4,5]     not leaf -> 0x11 0x23 0x45
//	[0,1,2,3,4,5]   not leaf -> 0x00 0x01 0x23 0x45
//	[1,2,3,4,5]     leaf     -> 0x31 0x23 0x45
//	[0,1,2,3,4,5]   leaf     -> 0x20 0x01 0x23 0x45
package hexprefix

import "fmt"

const (
	oddFlag  = 0x10
	leafFlag = 0x20
)

// Encode packs nibbles (values 0-15) and the leaf flag into bytes. A
// zero-length nibble sequence encodes to the single header byte.
func Encode(nibbles []byte, leaf bool) []byte {
	buf := make([]byte, len(nibbles)/2+1)
	if leaf {
		buf[0] = leafFlag
	}
	if len(nibbles)&1 == 1 {
		buf[0] |= oddFlag | nibbles[0]
		nibbles = nibbles[1:]
	}
	for i := 0; i < len(nibbles); i += 2 {
		buf[i/2+1] = nibbles[i]<<4 | nibbles[i+1]
	}
	return buf
}

// Decode recovers the exact nibble sequence and leaf flag produced by
// Encode. The returned slice is freshly allocated.
func Decode(data []byte) (nibbles []byte, leaf bool, err error) {
	if len(data) == 0 {
		return nil, false, fmt.Errorf("hexprefix: empty input")
	}
	if data[0]&0xc0 != 0 {
		return nil, false, fmt.Errorf("hexprefix: invalid flag byte %#x", data[0])
	}
	leaf = data[0]&leafFlag != 0
	odd := data[0]&oddFlag != 0
	if !odd && data[0]&0x0f != 0 {
		return nil, false, fmt.Errorf("hexprefix: non-zero padding nibble in %#x", data[0])
	}
	nibbles = make([]byte, 0, len(data)*2-1)
	if odd {
		nibbles = append(nibbles, data[0]&0x0f)
	}
	for _, b := range data[1:] {
		nibbles = append(nibbles, b>>4, b&0x0f)
	}
	return nibbles, leaf, nil
}

// MustDecode is Decode for bytes known to be well-formed, typically a key
// that was produced by Encode in the same process.
func MustDecode(data []byte) ([]byte, bool) {
	nibbles, leaf, err := Decode(data)
	if err != nil {
		panic(err)
	}
	return nibbles, leaf
}
