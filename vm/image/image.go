// Package image provides the on-disk form of compiled programs: a canonical
// CBOR wire encoding, content addressing by SHA-256, and a SQLite-backed
// store keyed by content hash.
package image

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/veldlang/veld/vm"
)

// FormatVersion is the current wire format version. Decoders reject images
// from a newer format.
const FormatVersion = 1

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("image: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// WireInstruction is the serialized form of one instruction. The field
// layout mirrors the engine's fixed-shape record; short CBOR keys keep
// images compact.
type WireInstruction struct {
	Op     uint8   `cbor:"o"`
	IntVal int32   `cbor:"i,omitempty"`
	FltVal float32 `cbor:"f,omitempty"`
	BolVal bool    `cbor:"b,omitempty"`
	StrVal string  `cbor:"s,omitempty"`
	Line   uint32  `cbor:"l,omitempty"`
}

// Image is a complete serializable program: format version, a display name,
// and the instruction stream.
type Image struct {
	Version      int               `cbor:"v"`
	Name         string            `cbor:"n,omitempty"`
	Instructions []WireInstruction `cbor:"p"`
}

// FromProgram builds an Image from an engine instruction stream.
func FromProgram(name string, program []vm.Instruction) *Image {
	img := &Image{
		Version:      FormatVersion,
		Name:         name,
		Instructions: make([]WireInstruction, len(program)),
	}
	for i, in := range program {
		img.Instructions[i] = WireInstruction{
			Op:     uint8(in.Op),
			IntVal: in.IntVal,
			FltVal: in.FloatVal,
			BolVal: in.BoolVal,
			StrVal: in.StrVal,
			Line:   in.Line,
		}
	}
	return img
}

// Program converts the image back into an engine instruction stream.
func (img *Image) Program() []vm.Instruction {
	program := make([]vm.Instruction, len(img.Instructions))
	for i, w := range img.Instructions {
		program[i] = vm.Instruction{
			Op:       vm.Opcode(w.Op),
			IntVal:   w.IntVal,
			FloatVal: w.FltVal,
			BoolVal:  w.BolVal,
			StrVal:   w.StrVal,
			Line:     w.Line,
		}
	}
	return program
}

// Marshal serializes the image to canonical CBOR bytes. Canonical mode makes
// the encoding deterministic, so equal programs share a content hash.
func (img *Image) Marshal() ([]byte, error) {
	return cborEncMode.Marshal(img)
}

// Unmarshal deserializes an image from CBOR bytes, rejecting unknown format
// versions.
func Unmarshal(data []byte) (*Image, error) {
	var img Image
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("image: unmarshal: %w", err)
	}
	if img.Version > FormatVersion {
		return nil, fmt.Errorf("image: unsupported format version %d", img.Version)
	}
	return &img, nil
}

// Hash computes the SHA-256 content hash of the image's canonical encoding.
func (img *Image) Hash() ([32]byte, error) {
	data, err := img.Marshal()
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(data), nil
}

// HashString returns the content hash as lowercase hex.
func (img *Image) HashString() (string, error) {
	h, err := img.Hash()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(h[:]), nil
}
