/*package wire converts lists of detached particles to and from the byte
messages sent between processes.

A message is a zstd-compressed block containing a header followed by one
record per primary particle, each immediately followed by the records of
its secondaries. Everything is little-endian:

    header    magic uint32, version uint32, count uint64
    primary   id uint64, x, v, w [3]float64, q [4]float64,
              radius, mass float64, secondaries uint32
    secondary offset, v [3]float64, mass, density, pressure float64

Back-references are never written. Encode refuses particles which are
still attached and Decode always returns detached particles.*/
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/DataDog/zstd"

	"github.com/phil-mansfield/halox/lib/particles"
)

const (
	magicNumber = 0x6a105eed
	version     = 1
	// zstdLevel trades ratio for speed: messages are sent once and thrown
	// away.
	zstdLevel = 1

	headerSize    = 4 + 4 + 8
	primarySize   = 8 + 3*3*8 + 4*8 + 2*8 + 4
	secondarySize = 2*3*8 + 3*8
)

var (
	// ErrAttached is returned when Encode is given a particle whose
	// secondaries still refer to it.
	ErrAttached = errors.New("cannot encode an attached particle")
	// ErrFormat is wrapped by every error caused by a malformed message.
	ErrFormat = errors.New("malformed particle message")
)

var order = binary.LittleEndian

type header struct {
	Magic, Version uint32
	Count          uint64
}

type primaryRecord struct {
	ID           uint64
	X, V, W      [3]float64
	Q            [4]float64
	Radius, Mass float64
	Secondaries  uint32
}

type secondaryRecord struct {
	Offset, V               [3]float64
	Mass, Density, Pressure float64
}

// Buffer holds the scratch space used to encode and decode messages so that
// it can be reused between calls. A Buffer must not be used by more than one
// goroutine at a time.
type Buffer struct {
	raw  bytes.Buffer
	secs []secondaryRecord
}

// NewBuffer creates an empty Buffer.
func NewBuffer() *Buffer { return &Buffer{} }

// Encode is Buffer.Encode with a fresh Buffer.
func Encode(ps []*particles.Primary) ([]byte, error) {
	return NewBuffer().Encode(ps)
}

// Decode is Buffer.Decode with a fresh Buffer.
func Decode(data []byte) ([]*particles.Primary, error) {
	return NewBuffer().Decode(data)
}

// Encode serializes ps. Every particle must be detached. The returned slice
// is newly allocated and is not touched by later calls.
func (buf *Buffer) Encode(ps []*particles.Primary) ([]byte, error) {
	for _, p := range ps {
		if !particles.IsDetached(p) {
			return nil, fmt.Errorf("%w: particle %d.", ErrAttached, p.ID)
		}
	}

	buf.raw.Reset()
	n := headerSize
	for _, p := range ps {
		n += primarySize + secondarySize*len(p.Secondaries)
	}
	buf.raw.Grow(n)

	hd := header{magicNumber, version, uint64(len(ps))}
	if err := binary.Write(&buf.raw, order, &hd); err != nil {
		return nil, err
	}

	for _, p := range ps {
		rec := primaryRecord{
			ID: p.ID, X: p.X, V: p.V, W: p.W, Q: p.Q,
			Radius: p.Radius, Mass: p.Mass,
			Secondaries: uint32(len(p.Secondaries)),
		}
		if err := binary.Write(&buf.raw, order, &rec); err != nil {
			return nil, err
		}

		buf.secs = buf.secs[:0]
		for i := range p.Secondaries {
			s := &p.Secondaries[i]
			buf.secs = append(buf.secs, secondaryRecord{
				s.Offset, s.V, s.Mass, s.Density, s.Pressure,
			})
		}
		if len(buf.secs) > 0 {
			if err := binary.Write(&buf.raw, order, buf.secs); err != nil {
				return nil, err
			}
		}
	}

	return zstd.CompressLevel(nil, buf.raw.Bytes(), zstdLevel)
}

// Decode deserializes a message written by Encode. The returned particles
// are detached.
func (buf *Buffer) Decode(data []byte) ([]*particles.Primary, error) {
	raw, err := zstd.Decompress(nil, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrFormat, err.Error())
	}

	rd := bytes.NewReader(raw)
	hd := header{}
	if err := binary.Read(rd, order, &hd); err != nil {
		return nil, formatError(err)
	}
	if hd.Magic != magicNumber {
		return nil, fmt.Errorf("%w: magic number is 0x%x, not 0x%x.",
			ErrFormat, hd.Magic, magicNumber)
	} else if hd.Version != version {
		return nil, fmt.Errorf("%w: version %d is not supported.",
			ErrFormat, hd.Version)
	} else if hd.Count > uint64(rd.Len()/primarySize) {
		return nil, fmt.Errorf("%w: header claims %d particles, but there "+
			"are only %d bytes.", ErrFormat, hd.Count, rd.Len())
	}

	ps := make([]*particles.Primary, hd.Count)
	for i := range ps {
		rec := primaryRecord{}
		if err := binary.Read(rd, order, &rec); err != nil {
			return nil, formatError(err)
		}
		if uint64(rec.Secondaries) > uint64(rd.Len()/secondarySize) {
			return nil, fmt.Errorf("%w: particle %d claims %d secondaries, "+
				"but there are only %d bytes.", ErrFormat, rec.ID,
				rec.Secondaries, rd.Len())
		}

		p := &particles.Primary{
			ID: rec.ID, X: rec.X, V: rec.V, W: rec.W, Q: rec.Q,
			Radius: rec.Radius, Mass: rec.Mass,
		}

		if rec.Secondaries > 0 {
			buf.secs = resizeSecondaries(buf.secs, int(rec.Secondaries))
			if err := binary.Read(rd, order, buf.secs); err != nil {
				return nil, formatError(err)
			}
			p.Secondaries = make([]particles.Secondary, rec.Secondaries)
			for j := range p.Secondaries {
				s := &buf.secs[j]
				p.Secondaries[j] = particles.Secondary{
					Offset: s.Offset, V: s.V, Mass: s.Mass,
					Density: s.Density, Pressure: s.Pressure,
				}
			}
		}

		ps[i] = p
	}

	if rd.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes.", ErrFormat, rd.Len())
	}

	return ps, nil
}

func formatError(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: message is truncated.", ErrFormat)
	}
	return fmt.Errorf("%w: %s", ErrFormat, err.Error())
}

func resizeSecondaries(x []secondaryRecord, n int) []secondaryRecord {
	if cap(x) >= n {
		return x[:n]
	}
	return make([]secondaryRecord, n)
}
