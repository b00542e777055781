package flat

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/custodia-labs/bastion/internal/core/domain"
)

// snapshotVersion is bumped when the persisted layout changes.
const snapshotVersion = 1

// snapshot is the sealed representation of the whole index.
type snapshot struct {
	Version   int         `cbor:"1,keyasint"`
	Dimension int         `cbor:"2,keyasint"`
	Entries   []entry     `cbor:"3,keyasint"`
	Vectors   [][]float32 `cbor:"4,keyasint"`
}

// sidecar is the plaintext metadata file written next to the raw matrix.
type sidecar struct {
	Version    int     `cbor:"1,keyasint"`
	Dimension  int     `cbor:"2,keyasint"`
	Entries    []entry `cbor:"3,keyasint"`
	Generation []byte  `cbor:"4,keyasint"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode

	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("flat: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("flat: CBOR decoder initialization failed: " + err.Error())
	}

	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("flat: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("flat: zstd decoder initialization failed: " + err.Error())
	}
}

func encodeSnapshot(s snapshot) ([]byte, error) {
	raw, err := encMode.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return zstdEncoder.EncodeAll(raw, nil), nil
}

func decodeSnapshot(data []byte) (snapshot, error) {
	raw, err := zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return snapshot{}, fmt.Errorf("%w: zstd: %v", domain.ErrCorrupt, err)
	}
	var s snapshot
	if err := decMode.Unmarshal(raw, &s); err != nil {
		return snapshot{}, fmt.Errorf("%w: cbor: %v", domain.ErrCorrupt, err)
	}
	return s, nil
}

// matrixMagic prefixes the plaintext vector file.
var matrixMagic = [4]byte{'B', 'V', 'I', 'X'}

// matrixVersion 2 added the generation id.
const matrixVersion = 2

// matrixHeaderSize is magic, version, dimension and count as little-endian
// uint32s, then the 16-byte generation id.
const matrixHeaderSize = 32

type matrixHeader struct {
	Dimension  int
	Count      int
	Generation uuid.UUID
}

func encodeMatrix(vectors [][]float32, dimension int, gen uuid.UUID) []byte {
	buf := make([]byte, matrixHeaderSize+len(vectors)*dimension*4)
	copy(buf, matrixMagic[:])
	binary.LittleEndian.PutUint32(buf[4:], matrixVersion)
	binary.LittleEndian.PutUint32(buf[8:], uint32(dimension))
	binary.LittleEndian.PutUint32(buf[12:], uint32(len(vectors)))
	copy(buf[16:32], gen[:])
	off := matrixHeaderSize
	for _, v := range vectors {
		for _, f := range v {
			binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(f))
			off += 4
		}
	}
	return buf
}

// decodeMatrix reads a vector file whose rows must have want dimensions.
// The header is checked against the file length before anything is
// allocated.
func decodeMatrix(data []byte, want int) ([][]float32, matrixHeader, error) {
	var h matrixHeader
	if len(data) < matrixHeaderSize || [4]byte(data[:4]) != matrixMagic {
		return nil, h, fmt.Errorf("%w: vector file header", domain.ErrCorrupt)
	}
	if v := binary.LittleEndian.Uint32(data[4:]); v != matrixVersion {
		return nil, h, fmt.Errorf("%w: vector file version %d", domain.ErrCorrupt, v)
	}
	h.Dimension = int(binary.LittleEndian.Uint32(data[8:]))
	h.Count = int(binary.LittleEndian.Uint32(data[12:]))
	copy(h.Generation[:], data[16:32])

	if h.Dimension != want {
		return nil, h, fmt.Errorf("%w: vector file has %d dimensions, expected %d",
			domain.ErrCorrupt, h.Dimension, want)
	}
	rowBytes := h.Dimension * 4
	payload := len(data) - matrixHeaderSize
	if payload%rowBytes != 0 || h.Count != payload/rowBytes {
		return nil, h, fmt.Errorf("%w: vector file holds %d payload bytes, header describes %d x %d",
			domain.ErrCorrupt, payload, h.Count, h.Dimension)
	}

	vectors := make([][]float32, h.Count)
	off := matrixHeaderSize
	for i := range vectors {
		v := make([]float32, h.Dimension)
		for j := range v {
			v[j] = math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
			off += 4
		}
		vectors[i] = v
	}
	return vectors, h, nil
}

func encodeSidecar(s sidecar) ([]byte, error) {
	data, err := encMode.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode metadata sidecar: %w", err)
	}
	return data, nil
}

func decodeSidecar(data []byte) (sidecar, error) {
	var s sidecar
	if err := decMode.Unmarshal(data, &s); err != nil {
		return sidecar{}, fmt.Errorf("%w: metadata sidecar: %v", domain.ErrCorrupt, err)
	}
	return s, nil
}
