package checkpoint

import (
	"bytes"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	fgcheckpoint "github.com/randalmurphal/flowgraph/pkg/flowgraph/checkpoint"
	"github.com/zeebo/blake3"
)

// Sealed record layout:
//
//	magic (4 bytes) | blake3-256 of body (32 bytes) | zstd(cbor(Record))
const (
	magic   = "PCK2"
	sumSize = 32
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode

	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("checkpoint: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("checkpoint: CBOR decoder initialization failed: " + err.Error())
	}

	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("checkpoint: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("checkpoint: zstd decoder initialization failed: " + err.Error())
	}
}

// Record is the stored form of one flowgraph checkpoint. Data is the
// checkpoint exactly as the engine produced it; the key and sequence are
// sealed with it so a record moved to another key is detected.
type Record struct {
	RunID    string    `cbor:"runId"`
	NodeID   string    `cbor:"nodeId"`
	Sequence int       `cbor:"seq"`
	SavedAt  time.Time `cbor:"savedAt"`
	Data     []byte    `cbor:"data"`
}

// Info returns the listing view of the record.
func (r Record) Info(size int) fgcheckpoint.Info {
	return fgcheckpoint.Info{
		RunID:     r.RunID,
		NodeID:    r.NodeID,
		Sequence:  r.Sequence,
		Timestamp: r.SavedAt,
		Size:      int64(size),
	}
}

// Seal serializes a record into its integrity-checked storage form.
func Seal(rec Record) ([]byte, error) {
	raw, err := encMode.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode checkpoint: %w", err)
	}
	body := zstdEncoder.EncodeAll(raw, nil)
	sum := blake3.Sum256(body)

	out := make([]byte, 0, len(magic)+sumSize+len(body))
	out = append(out, magic...)
	out = append(out, sum[:]...)
	out = append(out, body...)
	return out, nil
}

// Open verifies and decodes a sealed record.
func Open(data []byte) (Record, error) {
	if len(data) < len(magic)+sumSize {
		return Record{}, fmt.Errorf("%w: truncated (%d bytes)", ErrCorrupt, len(data))
	}
	if string(data[:len(magic)]) != magic {
		return Record{}, fmt.Errorf("%w: bad header", ErrCorrupt)
	}

	stored := data[len(magic) : len(magic)+sumSize]
	body := data[len(magic)+sumSize:]
	sum := blake3.Sum256(body)
	if !bytes.Equal(stored, sum[:]) {
		return Record{}, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}

	raw, err := zstdDecoder.DecodeAll(body, nil)
	if err != nil {
		return Record{}, fmt.Errorf("%w: decompress: %v", ErrCorrupt, err)
	}

	var rec Record
	if err := decMode.Unmarshal(raw, &rec); err != nil {
		return Record{}, fmt.Errorf("%w: decode: %v", ErrCorrupt, err)
	}
	return rec, nil
}

// openFor is Open plus a check that the record belongs to runID/nodeID.
func openFor(data []byte, runID, nodeID string) (Record, error) {
	rec, err := Open(data)
	if err != nil {
		return Record{}, fmt.Errorf("%s/%s: %w", runID, nodeID, err)
	}
	if rec.RunID != runID || rec.NodeID != nodeID {
		return Record{}, fmt.Errorf("%w: %s/%s holds a record for %s/%s", ErrCorrupt, runID, nodeID, rec.RunID, rec.NodeID)
	}
	return rec, nil
}

// sealed seals every payload before it reaches the wrapped store and
// verifies it on the way back.
type sealed struct {
	fgcheckpoint.Store
}

// Save implements checkpoint.Store.
func (s sealed) Save(runID, nodeID string, data []byte) error {
	out, err := Seal(Record{RunID: runID, NodeID: nodeID, SavedAt: time.Now().UTC(), Data: data})
	if err != nil {
		return err
	}
	return s.Store.Save(runID, nodeID, out)
}

// Load implements checkpoint.Store.
func (s sealed) Load(runID, nodeID string) ([]byte, error) {
	data, err := s.Store.Load(runID, nodeID)
	if err != nil {
		return nil, err
	}
	rec, err := openFor(data, runID, nodeID)
	if err != nil {
		return nil, err
	}
	return rec.Data, nil
}
