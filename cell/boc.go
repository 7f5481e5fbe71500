package cell

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math/bits"
)

var (
	bocMagicGeneric  = []byte{0xb5, 0xee, 0x9c, 0x72}
	bocMagicIdx      = []byte{0x68, 0xff, 0x65, 0xf3}
	bocMagicIdxCRC32 = []byte{0xac, 0xc3, 0xa7, 0x28}

	castagnoli = crc32.MakeTable(crc32.Castagnoli)
)

const (
	bocFlagIndex     = 0x80
	bocFlagCRC32C    = 0x40
	bocFlagCacheBits = 0x20
)

type bocReader struct {
	buf []byte
	pos int
}

func (r *bocReader) take(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.buf) {
		return nil, fmt.Errorf("%w: unexpected end of data at %d (+%d)", ErrInvalidBOC, r.pos, n)
	}
	p := r.buf[r.pos : r.pos+n]
	r.pos += n
	return p, nil
}

func (r *bocReader) uint(n int) (int, error) {
	p, err := r.take(n)
	if err != nil {
		return 0, err
	}
	var v uint64
	for _, b := range p {
		v = v<<8 | uint64(b)
	}
	if v > 1<<31 {
		return 0, fmt.Errorf("%w: value %d out of range", ErrInvalidBOC, v)
	}
	return int(v), nil
}

// FromBOC decodes a bag of cells with exactly one root.
func FromBOC(data []byte) (*Cell, error) {
	roots, err := FromBOCMultiRoot(data)
	if err != nil {
		return nil, err
	}
	if len(roots) != 1 {
		return nil, fmt.Errorf("%w: expected one root, got %d", ErrInvalidBOC, len(roots))
	}
	return roots[0], nil
}

// FromBOCMultiRoot decodes a bag of cells and returns all of its roots.
func FromBOCMultiRoot(data []byte) ([]*Cell, error) {
	r := &bocReader{buf: data}
	magic, err := r.take(4)
	if err != nil {
		return nil, err
	}

	var hasIndex, hasCRC, generic bool
	switch {
	case bytes.Equal(magic, bocMagicGeneric):
		generic = true
	case bytes.Equal(magic, bocMagicIdx):
		hasIndex = true
	case bytes.Equal(magic, bocMagicIdxCRC32):
		hasIndex, hasCRC = true, true
	default:
		return nil, fmt.Errorf("%w: unknown magic %x", ErrInvalidBOC, magic)
	}

	flags, err := r.take(1)
	if err != nil {
		return nil, err
	}
	size := int(flags[0] & 7)
	if generic {
		hasIndex = flags[0]&bocFlagIndex != 0
		hasCRC = flags[0]&bocFlagCRC32C != 0
	}
	if size == 0 || size > 4 {
		return nil, fmt.Errorf("%w: ref size %d", ErrInvalidBOC, size)
	}

	offBytes, err := r.uint(1)
	if err != nil {
		return nil, err
	}
	if offBytes == 0 || offBytes > 8 {
		return nil, fmt.Errorf("%w: offset size %d", ErrInvalidBOC, offBytes)
	}

	cellsNum, err := r.uint(size)
	if err != nil {
		return nil, err
	}
	rootsNum, err := r.uint(size)
	if err != nil {
		return nil, err
	}
	if _, err = r.uint(size); err != nil { // absent
		return nil, err
	}
	dataSize, err := r.uint(offBytes)
	if err != nil {
		return nil, err
	}
	// Every cell takes at least two descriptor bytes.
	if cellsNum > dataSize/2 || dataSize > len(data) {
		return nil, fmt.Errorf("%w: %d cells do not fit %d data bytes", ErrInvalidBOC, cellsNum, dataSize)
	}
	if rootsNum == 0 || rootsNum > cellsNum {
		return nil, fmt.Errorf("%w: %d roots for %d cells", ErrInvalidBOC, rootsNum, cellsNum)
	}

	rootIdx := make([]int, rootsNum)
	if generic {
		for i := range rootIdx {
			if rootIdx[i], err = r.uint(size); err != nil {
				return nil, err
			}
			if rootIdx[i] >= cellsNum {
				return nil, fmt.Errorf("%w: root index %d out of range", ErrInvalidBOC, rootIdx[i])
			}
		}
	} else if rootsNum != 1 {
		return nil, fmt.Errorf("%w: legacy format with %d roots", ErrInvalidBOC, rootsNum)
	}

	if hasIndex {
		if cellsNum*offBytes > len(data)-r.pos {
			return nil, fmt.Errorf("%w: index of %d cells exceeds input", ErrInvalidBOC, cellsNum)
		}
		if _, err = r.take(cellsNum * offBytes); err != nil {
			return nil, err
		}
	}

	cellData, err := r.take(dataSize)
	if err != nil {
		return nil, err
	}

	if hasCRC {
		sum, err := r.take(4)
		if err != nil {
			return nil, err
		}
		want := binary.LittleEndian.Uint32(sum)
		if got := crc32.Checksum(data[:r.pos-4], castagnoli); got != want {
			return nil, fmt.Errorf("%w: crc32c mismatch: %08x != %08x", ErrInvalidBOC, got, want)
		}
	}

	cells, err := parseBOCCells(cellData, cellsNum, size)
	if err != nil {
		return nil, err
	}

	roots := make([]*Cell, len(rootIdx))
	for i, idx := range rootIdx {
		roots[i] = cells[idx]
	}
	return roots, nil
}

type rawCell struct {
	exotic bool
	data   []byte
	bits   int
	refs   []int
}

func parseBOCCells(buf []byte, cellsNum, size int) ([]*Cell, error) {
	r := &bocReader{buf: buf}
	raws := make([]rawCell, cellsNum)

	for i := 0; i < cellsNum; i++ {
		desc, err := r.take(2)
		if err != nil {
			return nil, err
		}
		d1, d2 := desc[0], desc[1]

		refsNum := int(d1 & 7)
		if refsNum > MaxRefs {
			return nil, fmt.Errorf("%w: cell %d has %d refs", ErrInvalidBOC, i, refsNum)
		}
		if d1&16 != 0 {
			hashCount := LevelMask(d1 >> 5).HashCount()
			if _, err = r.take(hashCount * (HashSize + 2)); err != nil {
				return nil, err
			}
		}

		dataLen := int(d2+1) / 2
		payload, err := r.take(dataLen)
		if err != nil {
			return nil, err
		}
		data := make([]byte, dataLen)
		copy(data, payload)

		bitsLen := dataLen * 8
		if d2&1 != 0 {
			last := data[dataLen-1]
			if last == 0 {
				return nil, fmt.Errorf("%w: cell %d has no completion tag", ErrInvalidBOC, i)
			}
			tz := bits.TrailingZeros8(last)
			bitsLen -= tz + 1
			data[dataLen-1] &^= 1 << uint(tz)
		}

		refs := make([]int, refsNum)
		for j := range refs {
			if refs[j], err = r.uint(size); err != nil {
				return nil, err
			}
			if refs[j] <= i || refs[j] >= cellsNum {
				return nil, fmt.Errorf("%w: cell %d refers to %d", ErrInvalidBOC, i, refs[j])
			}
		}

		raws[i] = rawCell{exotic: d1&8 != 0, data: data, bits: bitsLen, refs: refs}
	}

	// Refs always point forward, so building from the end sees every
	// child before its parent.
	cells := make([]*Cell, cellsNum)
	for i := cellsNum - 1; i >= 0; i-- {
		raw := raws[i]
		refs := make([]*Cell, len(raw.refs))
		for j, idx := range raw.refs {
			refs[j] = cells[idx]
		}
		c, err := newCell(raw.exotic, raw.data, raw.bits, refs)
		if err != nil {
			return nil, fmt.Errorf("cell %d: %w", i, err)
		}
		cells[i] = c
	}
	return cells, nil
}

// ToBOC serializes the cell as a single-root bag of cells with a CRC32-C
// trailer.
func (c *Cell) ToBOC() []byte {
	return ToBOCWithFlags([]*Cell{c}, false, true)
}

// ToBOCWithFlags serializes roots, sharing identical subtrees.
func ToBOCWithFlags(roots []*Cell, withIndex, withCRC bool) []byte {
	order, index := topoOrder(roots)

	size := bytesFor(uint64(len(order)))
	var body bytes.Buffer
	offsets := make([]uint64, 0, len(order))
	for _, c := range order {
		c.serialize(&body, index, size)
		offsets = append(offsets, uint64(body.Len()))
	}
	offBytes := bytesFor(uint64(body.Len()))

	var out bytes.Buffer
	out.Write(bocMagicGeneric)
	flags := byte(size)
	if withIndex {
		flags |= bocFlagIndex
	}
	if withCRC {
		flags |= bocFlagCRC32C
	}
	out.WriteByte(flags)
	out.WriteByte(byte(offBytes))
	writeUint(&out, uint64(len(order)), size)
	writeUint(&out, uint64(len(roots)), size)
	writeUint(&out, 0, size)
	writeUint(&out, uint64(body.Len()), offBytes)
	for _, r := range roots {
		writeUint(&out, uint64(index[string(r.RepresentationHash())]), size)
	}
	if withIndex {
		for _, off := range offsets {
			writeUint(&out, off, offBytes)
		}
	}
	out.Write(body.Bytes())

	if withCRC {
		var sum [4]byte
		binary.LittleEndian.PutUint32(sum[:], crc32.Checksum(out.Bytes(), castagnoli))
		out.Write(sum[:])
	}
	return out.Bytes()
}

// topoOrder lists unique cells with every parent before its children.
func topoOrder(roots []*Cell) ([]*Cell, map[string]int) {
	visited := make(map[string]bool)
	var post []*Cell
	var visit func(c *Cell)
	visit = func(c *Cell) {
		key := string(c.RepresentationHash())
		if visited[key] {
			return
		}
		visited[key] = true
		for i := len(c.refs) - 1; i >= 0; i-- {
			visit(c.refs[i])
		}
		post = append(post, c)
	}
	for i := len(roots) - 1; i >= 0; i-- {
		visit(roots[i])
	}

	order := make([]*Cell, len(post))
	index := make(map[string]int, len(post))
	for i, c := range post {
		pos := len(post) - 1 - i
		order[pos] = c
		index[string(c.RepresentationHash())] = pos
	}
	return order, index
}

func (c *Cell) serialize(w *bytes.Buffer, index map[string]int, size int) {
	d1, d2 := c.descriptors(c.mask)
	w.WriteByte(d1)
	w.WriteByte(d2)
	w.Write(c.paddedData())
	for _, r := range c.refs {
		writeUint(w, uint64(index[string(r.RepresentationHash())]), size)
	}
}

func bytesFor(v uint64) int {
	n := (bits.Len64(v) + 7) / 8
	if n == 0 {
		return 1
	}
	return n
}

func writeUint(w *bytes.Buffer, v uint64, n int) {
	for i := n - 1; i >= 0; i-- {
		w.WriteByte(byte(v >> (8 * uint(i))))
	}
}
