// Copyright 2026 forkfuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package mutator derives new inputs from corpus inputs with stacked random byte-level
// mutations (havoc), crossover with other inputs and dictionary tokens.
//
// All randomness comes from the generator passed to Mutate, so the same generator state
// and the same seed input always produce the same candidate.
package mutator

import (
	"math/rand"
)

// DefaultMaxLen is the maximum length of produced inputs if Mutator.MaxLen is not set.
const DefaultMaxLen = 1 << 20

// Splicer provides other inputs for crossover.
type Splicer interface {
	// Splice returns a random input, or nil if there are none.
	Splice(r *rand.Rand) []byte
}

// Inputs is a trivial Splicer.
type Inputs [][]byte

func (inputs Inputs) Splice(r *rand.Rand) []byte {
	if len(inputs) == 0 {
		return nil
	}
	return inputs[r.Intn(len(inputs))]
}

type Mutator struct {
	Tokens *Tokens
	MaxLen int
}

// Mutate returns a mutated copy of seed. seed itself is not modified.
// corpus may be nil.
func (m *Mutator) Mutate(r *rand.Rand, seed []byte, corpus Splicer) []byte {
	maxLen := m.MaxLen
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	ctx := &mutation{
		r:      &randGen{r},
		data:   append(make([]byte, 0, min(len(seed), maxLen)+64), seed[:min(len(seed), maxLen)]...),
		maxLen: maxLen,
		tokens: m.Tokens,
		corpus: corpus,
	}
	stack := 1 << (1 + r.Intn(7))
	for i := 0; i < stack; i++ {
		for try := 0; try < 16; try++ {
			op := mutations[r.Intn(len(mutations))]
			if op.fn(ctx) {
				break
			}
		}
	}
	if len(ctx.data) == 0 {
		ctx.data = append(ctx.data, byte(r.Intn(256)))
	}
	return ctx.data
}

type mutation struct {
	r      *randGen
	data   []byte
	maxLen int
	tokens *Tokens
	corpus Splicer
}

type mutationOp struct {
	name string
	fn   func(ctx *mutation) bool
}

// Ops that are more useful are listed several times.
var mutations = []mutationOp{
	{"flip bit", (*mutation).flipBit},
	{"flip bit", (*mutation).flipBit},
	{"flip byte", (*mutation).flipByte},
	{"inc byte", (*mutation).incByte},
	{"dec byte", (*mutation).decByte},
	{"neg byte", (*mutation).negByte},
	{"random byte", (*mutation).randomByte},
	{"random byte", (*mutation).randomByte},
	{"arith", (*mutation).arith},
	{"arith", (*mutation).arith},
	{"arith", (*mutation).arith},
	{"interesting", (*mutation).interesting},
	{"interesting", (*mutation).interesting},
	{"delete block", (*mutation).deleteBlock},
	{"delete block", (*mutation).deleteBlock},
	{"insert block", (*mutation).insertBlock},
	{"overwrite block", (*mutation).overwriteBlock},
	{"copy block", (*mutation).copyBlock},
	{"swap blocks", (*mutation).swapBlocks},
	{"crossover insert", (*mutation).crossoverInsert},
	{"crossover replace", (*mutation).crossoverReplace},
	{"token insert", (*mutation).tokenInsert},
	{"token overwrite", (*mutation).tokenOverwrite},
	{"token overwrite", (*mutation).tokenOverwrite},
}

const maxInc = 35

var (
	interesting8  = []int64{-128, -1, 0, 1, 16, 32, 64, 100, 127}
	interesting16 = []int64{-32768, -129, 128, 255, 256, 512, 1000, 1024, 4096, 32767}
	interesting32 = []int64{-2147483648, -100663046, -32769, 32768, 65535, 65536, 100663045, 2147483647}
)

func (ctx *mutation) flipBit() bool {
	if len(ctx.data) == 0 {
		return false
	}
	pos := ctx.r.Intn(len(ctx.data))
	ctx.data[pos] ^= 1 << uint(ctx.r.Intn(8))
	return true
}

func (ctx *mutation) flipByte() bool {
	if len(ctx.data) == 0 {
		return false
	}
	ctx.data[ctx.r.Intn(len(ctx.data))] ^= 0xff
	return true
}

func (ctx *mutation) incByte() bool {
	if len(ctx.data) == 0 {
		return false
	}
	ctx.data[ctx.r.Intn(len(ctx.data))]++
	return true
}

func (ctx *mutation) decByte() bool {
	if len(ctx.data) == 0 {
		return false
	}
	ctx.data[ctx.r.Intn(len(ctx.data))]--
	return true
}

func (ctx *mutation) negByte() bool {
	if len(ctx.data) == 0 {
		return false
	}
	pos := ctx.r.Intn(len(ctx.data))
	ctx.data[pos] = -ctx.data[pos]
	return true
}

func (ctx *mutation) randomByte() bool {
	if len(ctx.data) == 0 {
		return false
	}
	// Xor with a non-zero value, so the byte always changes.
	ctx.data[ctx.r.Intn(len(ctx.data))] ^= byte(1 + ctx.r.Intn(255))
	return true
}

// arith adds or subtracts a small value from an int8/int16/int32/int64 of either endianness.
func (ctx *mutation) arith() bool {
	r := ctx.r
	width := 1 << uint(r.Intn(4))
	if len(ctx.data) < width {
		return false
	}
	pos := r.Intn(len(ctx.data) - width + 1)
	v := loadInt(ctx.data[pos:], width)
	delta := uint64(1 + r.Intn(maxInc))
	bigEndian := width > 1 && r.bin()
	if bigEndian {
		v = swapInt(v, width)
	}
	if r.bin() {
		v += delta
	} else {
		v -= delta
	}
	if bigEndian {
		v = swapInt(v, width)
	}
	storeInt(ctx.data[pos:], v, width)
	return true
}

// interesting sets an int8/int16/int32 of either endianness to a boundary value.
func (ctx *mutation) interesting() bool {
	r := ctx.r
	var width int
	var values []int64
	switch r.Intn(3) {
	case 0:
		width, values = 1, interesting8
	case 1:
		width, values = 2, append(interesting8, interesting16...)
	default:
		width, values = 4, append(append(interesting8, interesting16...), interesting32...)
	}
	if len(ctx.data) < width {
		return false
	}
	pos := r.Intn(len(ctx.data) - width + 1)
	v := uint64(values[r.Intn(len(values))])
	if r.bin() {
		v = swapInt(v, width)
	}
	storeInt(ctx.data[pos:], v, width)
	return true
}

func (ctx *mutation) deleteBlock() bool {
	if len(ctx.data) < 2 {
		return false
	}
	n := ctx.r.blockLen(len(ctx.data) - 1)
	pos := ctx.r.Intn(len(ctx.data) - n + 1)
	ctx.data = append(ctx.data[:pos], ctx.data[pos+n:]...)
	return true
}

func (ctx *mutation) insert(pos int, block []byte) {
	ctx.data = append(ctx.data, block...)
	copy(ctx.data[pos+len(block):], ctx.data[pos:])
	copy(ctx.data[pos:], block)
}

// insertBlock inserts a clone of a part of the input, or a run of a constant byte.
func (ctx *mutation) insertBlock() bool {
	r := ctx.r
	room := ctx.maxLen - len(ctx.data)
	if room <= 0 {
		return false
	}
	var block []byte
	if len(ctx.data) != 0 && r.nOutOf(3, 4) {
		n := r.blockLen(min(len(ctx.data), room))
		from := r.Intn(len(ctx.data) - n + 1)
		block = append([]byte(nil), ctx.data[from:from+n]...)
	} else {
		n := r.blockLen(min(blockXLarge, room))
		block = make([]byte, n)
		fill := byte(r.Intn(256))
		if len(ctx.data) != 0 && r.bin() {
			fill = ctx.data[r.Intn(len(ctx.data))]
		}
		for i := range block {
			block[i] = fill
		}
	}
	ctx.insert(r.Intn(len(ctx.data)+1), block)
	return true
}

// overwriteBlock overwrites a part of the input with a run of a constant byte.
func (ctx *mutation) overwriteBlock() bool {
	r := ctx.r
	if len(ctx.data) == 0 {
		return false
	}
	n := r.blockLen(len(ctx.data))
	pos := r.Intn(len(ctx.data) - n + 1)
	fill := byte(r.Intn(256))
	if r.bin() {
		fill = ctx.data[r.Intn(len(ctx.data))]
	}
	for i := pos; i < pos+n; i++ {
		ctx.data[i] = fill
	}
	return true
}

// copyBlock overwrites a part of the input with another part of the input.
func (ctx *mutation) copyBlock() bool {
	r := ctx.r
	if len(ctx.data) < 2 {
		return false
	}
	n := r.blockLen(len(ctx.data) - 1)
	from := r.Intn(len(ctx.data) - n + 1)
	to := r.Intn(len(ctx.data) - n + 1)
	if from == to {
		return false
	}
	copy(ctx.data[to:], ctx.data[from:from+n])
	return true
}

func (ctx *mutation) swapBlocks() bool {
	r := ctx.r
	if len(ctx.data) < 2 {
		return false
	}
	n := r.blockLen(len(ctx.data) / 2)
	pos1 := r.Intn(len(ctx.data) - 2*n + 1)
	pos2 := r.randRange(pos1+n, len(ctx.data)-n)
	tmp := append([]byte(nil), ctx.data[pos1:pos1+n]...)
	copy(ctx.data[pos1:], ctx.data[pos2:pos2+n])
	copy(ctx.data[pos2:], tmp)
	return true
}

func (ctx *mutation) spliceInput() []byte {
	if ctx.corpus == nil {
		return nil
	}
	return ctx.corpus.Splice(ctx.r.Rand)
}

// crossoverInsert inserts a part of another input.
func (ctx *mutation) crossoverInsert() bool {
	r := ctx.r
	other := ctx.spliceInput()
	room := ctx.maxLen - len(ctx.data)
	if len(other) == 0 || room <= 0 {
		return false
	}
	n := r.blockLen(min(len(other), room))
	from := r.Intn(len(other) - n + 1)
	ctx.insert(r.Intn(len(ctx.data)+1), other[from:from+n])
	return true
}

// crossoverReplace overwrites a part of the input with a part of another input.
func (ctx *mutation) crossoverReplace() bool {
	r := ctx.r
	other := ctx.spliceInput()
	if len(other) == 0 || len(ctx.data) == 0 {
		return false
	}
	n := r.blockLen(min(len(other), len(ctx.data)))
	from := r.Intn(len(other) - n + 1)
	to := r.Intn(len(ctx.data) - n + 1)
	copy(ctx.data[to:], other[from:from+n])
	return true
}

func (ctx *mutation) tokenInsert() bool {
	tok := ctx.tokens.pick(ctx.r)
	if len(tok) == 0 || len(ctx.data)+len(tok) > ctx.maxLen {
		return false
	}
	ctx.insert(ctx.r.Intn(len(ctx.data)+1), tok)
	return true
}

func (ctx *mutation) tokenOverwrite() bool {
	tok := ctx.tokens.pick(ctx.r)
	if len(tok) == 0 || len(tok) > len(ctx.data) {
		return false
	}
	pos := ctx.r.Intn(len(ctx.data) - len(tok) + 1)
	copy(ctx.data[pos:], tok)
	return true
}
