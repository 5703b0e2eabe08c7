package binstate

import (
	"encoding/binary"
	"fmt"

	"blainsmith.com/go/seahash"
	"github.com/gogo/protobuf/proto"
	"github.com/grailbio/covbin/coverage"
)

// Record layout, in proto.Buffer encoding:
//
//   name      raw bytes
//   nbits     varint, the chromosome length
//   mask      raw bytes, (nbits+7)/8 bytes.  Bit i of the mask is bit i%8
//             (LSB first) of byte i/8; unused high bits of the last byte are 0.
//   hits      raw bytes, nbits bytes
//   fraglens  raw bytes, 2*nbits bytes, int16 little endian
//   checksum  fixed64, seahash of everything above

// PackMask packs m into (m.Len()+7)/8 bytes, LSB first.
func PackMask(m *coverage.PositionMask) []byte {
	n := m.Len()
	packed := make([]byte, (n+7)/8)
	for pos := 0; pos < n; pos++ {
		if m.Test(pos) {
			packed[pos/8] |= 1 << uint(pos%8)
		}
	}
	return packed
}

// UnpackMask is the inverse of PackMask.
func UnpackMask(packed []byte, n int) (*coverage.PositionMask, error) {
	if len(packed) != (n+7)/8 {
		return nil, fmt.Errorf("binstate: mask of %d bits needs %d bytes, got %d", n, (n+7)/8, len(packed))
	}
	m := coverage.NewPositionMask(n)
	for pos := 0; pos < n; pos++ {
		if packed[pos/8]&(1<<uint(pos%8)) != 0 {
			m.Set(pos)
		}
	}
	return m, nil
}

// Marshal encodes one chromosome's state.
func Marshal(state *coverage.ChromState) ([]byte, error) {
	if err := state.Validate(); err != nil {
		return nil, err
	}
	n := state.Len()
	fragLens := make([]byte, 2*n)
	for i, v := range state.FragLens {
		binary.LittleEndian.PutUint16(fragLens[2*i:], uint16(v))
	}
	b := proto.NewBuffer(make([]byte, 0, len(state.Name)+(n+7)/8+3*n+64))
	if err := b.EncodeRawBytes([]byte(state.Name)); err != nil {
		return nil, err
	}
	if err := b.EncodeVarint(uint64(n)); err != nil {
		return nil, err
	}
	for _, field := range [][]byte{PackMask(state.Mask), state.Hits, fragLens} {
		if err := b.EncodeRawBytes(field); err != nil {
			return nil, err
		}
	}
	if err := b.EncodeFixed64(seahash.Sum64(b.Bytes())); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// Unmarshal decodes a record produced by Marshal.  A truncated record, a
// field of the wrong size or a checksum mismatch is an error.
func Unmarshal(data []byte) (*coverage.ChromState, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("binstate.Unmarshal: record too short (%d bytes)", len(data))
	}
	payload := data[:len(data)-8]
	b := proto.NewBuffer(data)
	name, err := b.DecodeRawBytes(true)
	if err != nil {
		return nil, fmt.Errorf("binstate.Unmarshal: name: %v", err)
	}
	nbits, err := b.DecodeVarint()
	if err != nil {
		return nil, fmt.Errorf("binstate.Unmarshal: %s: length: %v", name, err)
	}
	if nbits > uint64(len(data)) {
		return nil, fmt.Errorf("binstate.Unmarshal: %s: length %d exceeds record size %d", name, nbits, len(data))
	}
	n := int(nbits)
	var fields [3][]byte
	for i, label := range []string{"mask", "hits", "fragment lengths"} {
		if fields[i], err = b.DecodeRawBytes(false); err != nil {
			return nil, fmt.Errorf("binstate.Unmarshal: %s: %s: %v", name, label, err)
		}
	}
	sum, err := b.DecodeFixed64()
	if err != nil {
		return nil, fmt.Errorf("binstate.Unmarshal: %s: checksum: %v", name, err)
	}
	if want := seahash.Sum64(payload); sum != want {
		return nil, fmt.Errorf("binstate.Unmarshal: %s: checksum mismatch: %x, expected %x", name, sum, want)
	}
	mask, err := UnpackMask(fields[0], n)
	if err != nil {
		return nil, fmt.Errorf("binstate.Unmarshal: %s: %v", name, err)
	}
	if len(fields[1]) != n || len(fields[2]) != 2*n {
		return nil, fmt.Errorf("binstate.Unmarshal: %s: length mismatch: %d bases, %d hits, %d fragment length bytes",
			name, n, len(fields[1]), len(fields[2]))
	}
	state := &coverage.ChromState{
		Name:     string(name),
		Mask:     mask,
		Hits:     append(coverage.HitTrack(nil), fields[1]...),
		FragLens: make(coverage.FragmentLengthTrack, n),
	}
	for i := range state.FragLens {
		state.FragLens[i] = int16(binary.LittleEndian.Uint16(fields[2][2*i:]))
	}
	return state, nil
}
