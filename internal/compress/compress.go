// Package compress frames serialized streams into independently compressed
// blocks.
//
// Stream format: [magic "SGZ"][Type uint8] followed by blocks of
// [UncompressedSize uint32][CompressedSize uint32][CRC32C uint32][Data...].
// The checksum covers the uncompressed block. A block with
// CompressedSize == 0 is stored raw.
package compress

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/hupe1980/sigtree/internal/hash"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// ErrCorrupt is returned for malformed streams.
var ErrCorrupt = errors.New("compress: corrupt stream")

// Type defines the compression algorithm used.
type Type uint8

const (
	// None stores blocks raw.
	None Type = 0
	// LZ4 uses LZ4 block compression.
	LZ4 Type = 1
	// ZSTD uses zstd block compression.
	ZSTD Type = 2
)

// String returns the flag value of t.
func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case ZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("compress.Type(%d)", uint8(t))
	}
}

// ParseType parses "none", "lz4" or "zstd". The empty string is None.
func ParseType(s string) (Type, error) {
	switch s {
	case "", "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return ZSTD, nil
	default:
		return None, fmt.Errorf("compress: unknown compression %q", s)
	}
}

var magic = [3]byte{'S', 'G', 'Z'}

const (
	headerSize       = len(magic) + 1
	blockHeaderSize  = 12
	defaultBlockSize = 256 * 1024
)

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

func compressBlock(data []byte, t Type) ([]byte, error) {
	var compressed []byte
	switch t {
	case LZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, err
		}
		compressed = buf[:n]
	case ZSTD:
		enc := getZstdEncoder()
		compressed = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	}

	out := make([]byte, blockHeaderSize, blockHeaderSize+len(data))
	binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
	binary.LittleEndian.PutUint32(out[8:], hash.CRC32C(data))

	// Keep the block raw unless compression saves at least 10%.
	if len(compressed) == 0 || float64(len(compressed)) > float64(len(data))*0.9 {
		return append(out, data...), nil
	}
	binary.LittleEndian.PutUint32(out[4:], uint32(len(compressed)))
	return append(out, compressed...), nil
}

func decompressBlock(dst, data []byte, size uint32, t Type) ([]byte, error) {
	switch t {
	case LZ4:
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(data, out)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if uint32(n) != size {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorrupt)
		}
		return append(dst, out...), nil
	case ZSTD:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)
		out, err := dec.DecodeAll(data, dst)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if uint32(len(out)-len(dst)) != size {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorrupt)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: compressed block in uncompressed stream", ErrCorrupt)
	}
}

// Writer compresses everything written to it block by block. Close must be
// called to flush the last block; it does not close the underlying writer.
type Writer struct {
	w         io.Writer
	t         Type
	blockSize int
	buffer    *bytes.Buffer
	written   int64
	header    bool
}

// NewWriter creates a writer using compression t.
func NewWriter(w io.Writer, t Type) *Writer {
	return &Writer{
		w:         w,
		t:         t,
		blockSize: defaultBlockSize,
		buffer:    bytes.NewBuffer(make([]byte, 0, defaultBlockSize)),
	}
}

func (c *Writer) writeHeader() error {
	if c.header {
		return nil
	}
	c.header = true
	n, err := c.w.Write(append(magic[:], byte(c.t)))
	c.written += int64(n)
	return err
}

// Write implements io.Writer.
func (c *Writer) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		space := c.blockSize - c.buffer.Len()
		if space <= 0 {
			if err := c.flushBlock(); err != nil {
				return total, err
			}
			space = c.blockSize
		}
		n, _ := c.buffer.Write(p[:min(len(p), space)])
		total += n
		p = p[n:]
	}
	return total, nil
}

func (c *Writer) flushBlock() error {
	if err := c.writeHeader(); err != nil {
		return err
	}
	if c.buffer.Len() == 0 {
		return nil
	}
	block, err := compressBlock(c.buffer.Bytes(), c.t)
	if err != nil {
		return err
	}
	n, err := c.w.Write(block)
	c.written += int64(n)
	if err != nil {
		return err
	}
	c.buffer.Reset()
	return nil
}

// Close flushes buffered data.
func (c *Writer) Close() error {
	return c.flushBlock()
}

// BytesWritten returns the number of bytes written to the underlying writer.
func (c *Writer) BytesWritten() int64 {
	return c.written
}

// Decode decompresses a complete stream written by Writer.
func Decode(data []byte) ([]byte, error) {
	if len(data) < headerSize || [3]byte(data[:3]) != magic {
		return nil, fmt.Errorf("%w: bad header", ErrCorrupt)
	}
	t := Type(data[3])
	if t > ZSTD {
		return nil, fmt.Errorf("%w: unknown compression %d", ErrCorrupt, t)
	}
	data = data[headerSize:]

	var out []byte
	for len(data) > 0 {
		if len(data) < blockHeaderSize {
			return nil, fmt.Errorf("%w: truncated block header", ErrCorrupt)
		}
		size := binary.LittleEndian.Uint32(data[0:])
		csize := binary.LittleEndian.Uint32(data[4:])
		sum := binary.LittleEndian.Uint32(data[8:])
		data = data[blockHeaderSize:]
		start := len(out)

		if csize == 0 {
			if uint64(len(data)) < uint64(size) {
				return nil, fmt.Errorf("%w: block extends beyond data", ErrCorrupt)
			}
			out = append(out, data[:size]...)
			data = data[size:]
		} else {
			if uint64(len(data)) < uint64(csize) {
				return nil, fmt.Errorf("%w: compressed block extends beyond data", ErrCorrupt)
			}
			var err error
			out, err = decompressBlock(out, data[:csize], size, t)
			if err != nil {
				return nil, err
			}
			data = data[csize:]
		}
		if !hash.Verify(out[start:], sum) {
			return nil, fmt.Errorf("%w: block checksum mismatch", ErrCorrupt)
		}
	}
	return out, nil
}

// ReadAll reads and decodes a complete stream from r.
func ReadAll(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}
