// Package summary writes TensorBoard event files.
//
// A Writer produces a single tfevents file using the TFRecord framing
// TensorBoard expects, so finished and in-flight runs can be inspected with
// standard TensorBoard tooling. Only scalar summaries are supported.
package summary

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// fileVersion is the sentinel record TensorBoard uses to recognize
// version 2 event files.
const fileVersion = "brain.Event:2"

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Writer appends scalar events to a tfevents file. It is safe for use from
// multiple goroutines.
type Writer struct {
	mu     sync.Mutex
	file   *os.File
	buf    *bufio.Writer
	path   string
	closed bool
}

// NewWriter creates logDir if needed and opens a fresh event file in it,
// named events.out.tfevents.<unix time>.<hostname>. The file starts with
// the version record TensorBoard requires.
func NewWriter(logDir string) (*Writer, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, errors.Wrap(err, "create log directory")
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	path := filepath.Join(logDir, fmt.Sprintf("events.out.tfevents.%d.%s", time.Now().Unix(), hostname))
	file, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "create event file")
	}

	w := &Writer{
		file: file,
		buf:  bufio.NewWriter(file),
		path: path,
	}

	if err := w.writeRecord(encodeFileVersionEvent(wallTime())); err != nil {
		file.Close()
		return nil, errors.Wrap(err, "write version record")
	}

	return w, nil
}

// Path returns the location of the event file.
func (w *Writer) Path() string {
	return w.path
}

// AddScalar records one scalar value under the given tag at the given step.
func (w *Writer) AddScalar(tag string, value float32, step int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return errors.New("event writer is closed")
	}

	if err := w.writeRecord(encodeScalarEvent(wallTime(), int64(step), tag, value)); err != nil {
		return errors.Wrapf(err, "write scalar %s", tag)
	}
	return nil
}

// Flush forces buffered records to disk.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	return errors.Wrap(w.buf.Flush(), "flush event file")
}

// Close flushes pending records and closes the file. Closing an already
// closed writer is a no-op.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.buf.Flush(); err != nil {
		w.file.Close()
		return errors.Wrap(err, "flush event file")
	}
	return errors.Wrap(w.file.Close(), "close event file")
}

// writeRecord frames one serialized event in the TFRecord layout: the
// payload length, a masked checksum of the length, the payload, and a
// masked checksum of the payload.
func (w *Writer) writeRecord(payload []byte) error {
	var header [12]byte
	binary.LittleEndian.PutUint64(header[0:8], uint64(len(payload)))
	binary.LittleEndian.PutUint32(header[8:12], maskedCRC(header[0:8]))

	var footer [4]byte
	binary.LittleEndian.PutUint32(footer[0:4], maskedCRC(payload))

	if _, err := w.buf.Write(header[:]); err != nil {
		return err
	}
	if _, err := w.buf.Write(payload); err != nil {
		return err
	}
	if _, err := w.buf.Write(footer[:]); err != nil {
		return err
	}
	return nil
}

// maskedCRC computes the rotated Castagnoli checksum TFRecord readers
// verify against.
func maskedCRC(data []byte) uint32 {
	crc := crc32.Checksum(data, castagnoli)
	return ((crc >> 15) | (crc << 17)) + 0xa282ead8
}

func wallTime() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// encodeFileVersionEvent serializes the Event message that marks the start
// of every v2 event file.
func encodeFileVersionEvent(wall float64) []byte {
	var buf []byte
	buf = protowire.AppendTag(buf, 1, protowire.Fixed64Type)
	buf = protowire.AppendFixed64(buf, math.Float64bits(wall))
	buf = protowire.AppendTag(buf, 3, protowire.BytesType)
	buf = protowire.AppendString(buf, fileVersion)
	return buf
}

// encodeScalarEvent serializes an Event message carrying a Summary with a
// single tagged simple_value.
func encodeScalarEvent(wall float64, step int64, tag string, value float32) []byte {
	summary := encodeSummary(tag, value)

	var buf []byte
	buf = protowire.AppendTag(buf, 1, protowire.Fixed64Type)
	buf = protowire.AppendFixed64(buf, math.Float64bits(wall))
	buf = protowire.AppendTag(buf, 2, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(step))
	buf = protowire.AppendTag(buf, 5, protowire.BytesType)
	buf = protowire.AppendBytes(buf, summary)
	return buf
}

func encodeSummary(tag string, value float32) []byte {
	var val []byte
	val = protowire.AppendTag(val, 1, protowire.BytesType)
	val = protowire.AppendString(val, tag)
	val = protowire.AppendTag(val, 2, protowire.Fixed32Type)
	val = protowire.AppendFixed32(val, math.Float32bits(value))

	var buf []byte
	buf = protowire.AppendTag(buf, 1, protowire.BytesType)
	buf = protowire.AppendBytes(buf, val)
	return buf
}
