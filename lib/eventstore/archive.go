// Copyright 2026 The Commtrail Authors
// SPDX-License-Identifier: Apache-2.0

package eventstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"filippo.io/age"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/zeebo/blake3"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/commtrail/commtrail/lib/codec"
	"github.com/commtrail/commtrail/lib/event"
)

// archiveVersion is the current archive container version. Import
// rejects archives written by a newer version.
const archiveVersion = 1

// ageIntro is the first bytes of an age-encrypted file. Import uses
// it to decide whether decryption is needed.
const ageIntro = "age-encryption.org/"

// Codec identifies the archive payload compression. The zero value
// is invalid; use DefaultCodec when the caller does not care.
type Codec string

const (
	// CodecZstd is the default: good ratios on the text-heavy
	// event payload at modest CPU cost.
	CodecZstd Codec = "zstd"

	// CodecLZ4 trades ratio for speed.
	CodecLZ4 Codec = "lz4"

	// CodecNone stores the payload uncompressed.
	CodecNone Codec = "none"
)

// DefaultCodec is used when ExportOptions.Codec is empty.
const DefaultCodec = CodecZstd

// ParseCodec parses a codec name as given on the command line.
func ParseCodec(name string) (Codec, error) {
	switch Codec(name) {
	case CodecZstd, CodecLZ4, CodecNone:
		return Codec(name), nil
	default:
		return "", fmt.Errorf("unknown archive codec: %q", name)
	}
}

// archive is the CBOR container written to disk: the manifest fields
// plus the compressed payload. The payload is a CBOR sequence of
// event records; size is its uncompressed length and hash is the
// BLAKE3 digest of the compressed bytes.
type archive struct {
	Version int    `cbor:"version"`
	Codec   Codec  `cbor:"codec"`
	Count   int    `cbor:"count"`
	Size    int64  `cbor:"size"`
	Hash    []byte `cbor:"hash"`
	Payload []byte `cbor:"payload"`
}

// ExportOptions configures an archive export.
type ExportOptions struct {
	// Codec selects the payload compression. Empty uses
	// DefaultCodec. Incompressible payloads fall back to
	// CodecNone regardless.
	Codec Codec

	// Recipients, when non-empty, encrypts the archive to these
	// age recipients.
	Recipients []age.Recipient
}

// ImportOptions configures an archive import.
type ImportOptions struct {
	// Identities decrypt an encrypted archive. Ignored for
	// plaintext archives.
	Identities []age.Identity
}

// Export writes every stored event to w as a compressed, integrity-
// protected archive. Returns the number of events exported.
func (s *Store) Export(ctx context.Context, w io.Writer, opts ExportOptions) (int, error) {
	selected := opts.Codec
	if selected == "" {
		selected = DefaultCodec
	}
	if _, err := ParseCodec(string(selected)); err != nil {
		return 0, fmt.Errorf("event store: export: %w", err)
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("event store: export: %w", err)
	}
	events, err := allEvents(conn)
	s.pool.Put(conn)
	if err != nil {
		return 0, err
	}

	var payload bytes.Buffer
	encoder := codec.NewEncoder(&payload)
	for i := range events {
		if err := encoder.Encode(&events[i]); err != nil {
			return 0, fmt.Errorf("event store: export: encode event %d: %w", events[i].ID, err)
		}
	}

	compressed, used, err := compressPayload(payload.Bytes(), selected)
	if err != nil {
		return 0, fmt.Errorf("event store: export: %w", err)
	}
	digest := blake3.Sum256(compressed)

	container, err := codec.Marshal(archive{
		Version: archiveVersion,
		Codec:   used,
		Count:   len(events),
		Size:    int64(payload.Len()),
		Hash:    digest[:],
		Payload: compressed,
	})
	if err != nil {
		return 0, fmt.Errorf("event store: export: marshal archive: %w", err)
	}

	if len(opts.Recipients) > 0 {
		sealed, err := age.Encrypt(w, opts.Recipients...)
		if err != nil {
			return 0, fmt.Errorf("event store: export: encrypt: %w", err)
		}
		if _, err := sealed.Write(container); err != nil {
			return 0, fmt.Errorf("event store: export: write archive: %w", err)
		}
		if err := sealed.Close(); err != nil {
			return 0, fmt.Errorf("event store: export: encrypt: %w", err)
		}
	} else if _, err := w.Write(container); err != nil {
		return 0, fmt.Errorf("event store: export: write archive: %w", err)
	}

	s.logger.Info("archive exported",
		"count", len(events),
		"codec", string(used),
		"encrypted", len(opts.Recipients) > 0)
	return len(events), nil
}

// Import reads an archive from r, verifies its integrity, and stores
// the events it contains in one transaction with fresh IDs. Returns
// the number of events imported.
func (s *Store) Import(ctx context.Context, r io.Reader, opts ImportOptions) (int, error) {
	events, used, err := readArchive(r, opts)
	if err != nil {
		return 0, err
	}
	if err := s.AddEvents(ctx, events); err != nil {
		return 0, err
	}
	s.logger.Info("archive imported", "count", len(events), "codec", string(used))
	return len(events), nil
}

// ReadArchive decodes and verifies an archive without touching a
// store. Callers that feed events into a running service use this to
// unpack the archive and submit the events over the socket instead of
// writing to the database file directly.
func ReadArchive(r io.Reader, opts ImportOptions) ([]event.Event, error) {
	events, _, err := readArchive(r, opts)
	return events, err
}

func readArchive(r io.Reader, opts ImportOptions) ([]event.Event, Codec, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, "", fmt.Errorf("event store: import: read archive: %w", err)
	}

	if bytes.HasPrefix(raw, []byte(ageIntro)) {
		if len(opts.Identities) == 0 {
			return nil, "", errors.New("event store: import: archive is encrypted and no identities were given")
		}
		opened, err := age.Decrypt(bytes.NewReader(raw), opts.Identities...)
		if err != nil {
			return nil, "", fmt.Errorf("event store: import: decrypt: %w", err)
		}
		raw, err = io.ReadAll(opened)
		if err != nil {
			return nil, "", fmt.Errorf("event store: import: decrypt: %w", err)
		}
	}

	var container archive
	if err := codec.Unmarshal(raw, &container); err != nil {
		return nil, "", fmt.Errorf("event store: import: decode archive: %w", err)
	}
	if container.Version > archiveVersion {
		return nil, "", fmt.Errorf("event store: import: archive version %d is newer than supported version %d",
			container.Version, archiveVersion)
	}

	digest := blake3.Sum256(container.Payload)
	if !bytes.Equal(digest[:], container.Hash) {
		return nil, "", errors.New("event store: import: payload hash mismatch, archive is corrupt")
	}

	payload, err := decompressPayload(container.Payload, container.Codec, int(container.Size))
	if err != nil {
		return nil, "", fmt.Errorf("event store: import: %w", err)
	}

	events := make([]event.Event, 0, container.Count)
	decoder := codec.NewDecoder(bytes.NewReader(payload))
	for {
		var e event.Event
		if err := decoder.Decode(&e); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, "", fmt.Errorf("event store: import: decode event: %w", err)
		}
		events = append(events, e)
	}
	if len(events) != container.Count {
		return nil, "", fmt.Errorf("event store: import: manifest says %d events, payload has %d",
			container.Count, len(events))
	}
	return events, container.Codec, nil
}

func allEvents(conn *sqlite.Conn) ([]event.Event, error) {
	var events []event.Event
	err := sqlitex.Execute(conn, selectColumns+" FROM events ORDER BY id",
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				events = append(events, scanEvent(stmt))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("event store: export: query events: %w", err)
	}
	return events, nil
}

// zstdEncoder and zstdDecoder are reused across calls. Both are safe
// for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("eventstore: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("eventstore: zstd decoder initialization failed: " + err.Error())
	}
}

// compressPayload compresses data with the selected codec. When the
// codec cannot shrink the payload it falls back to CodecNone; the
// returned codec is the one actually used.
func compressPayload(data []byte, selected Codec) ([]byte, Codec, error) {
	switch selected {
	case CodecNone:
		return data, CodecNone, nil

	case CodecZstd:
		compressed := zstdEncoder.EncodeAll(data, nil)
		if len(compressed) >= len(data) {
			return data, CodecNone, nil
		}
		return compressed, CodecZstd, nil

	case CodecLZ4:
		bound := lz4.CompressBlockBound(len(data))
		destination := make([]byte, bound)
		written, err := lz4.CompressBlock(data, destination, nil)
		if err != nil {
			return nil, "", fmt.Errorf("lz4 compress: %w", err)
		}
		// CompressBlock returns 0 when the data is incompressible.
		if written == 0 || written >= len(data) {
			return data, CodecNone, nil
		}
		return destination[:written], CodecLZ4, nil

	default:
		return nil, "", fmt.Errorf("unknown archive codec: %q", selected)
	}
}

// decompressPayload reverses compressPayload. The uncompressed size
// comes from the manifest and is verified.
func decompressPayload(data []byte, used Codec, uncompressedSize int) ([]byte, error) {
	switch used {
	case CodecNone:
		if len(data) != uncompressedSize {
			return nil, fmt.Errorf("payload size %d does not match manifest size %d", len(data), uncompressedSize)
		}
		return data, nil

	case CodecZstd:
		result, err := zstdDecoder.DecodeAll(data, make([]byte, 0, uncompressedSize))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(result) != uncompressedSize {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), uncompressedSize)
		}
		return result, nil

	case CodecLZ4:
		destination := make([]byte, uncompressedSize)
		read, err := lz4.UncompressBlock(data, destination)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if read != uncompressedSize {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, uncompressedSize)
		}
		return destination, nil

	default:
		return nil, fmt.Errorf("unknown archive codec: %q", used)
	}
}
