// Package fpfile reads and writes fingerprint files: the msgpack documents
// a feature extractor hands over for insertion and querying.
package fpfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/himanishpuri/soundmatch/pkg/models"
)

const FormatVersion = 1

var ErrUnsupportedVersion = errors.New("unsupported fingerprint file version")

// File is the decoded content of a fingerprint file. Track is optional
// metadata; the CLI lets flags override it.
type File struct {
	SampleRate   int
	Track        models.TrackInfo
	Fingerprints []models.Fingerprint
}

type fileDoc struct {
	Version      int              `msgpack:"version"`
	SampleRate   int              `msgpack:"sample_rate"`
	Track        trackDoc         `msgpack:"track,omitempty"`
	Fingerprints []fingerprintDoc `msgpack:"fingerprints"`
}

type trackDoc struct {
	ID     string  `msgpack:"id,omitempty"`
	Title  string  `msgpack:"title,omitempty"`
	Artist string  `msgpack:"artist,omitempty"`
	ISRC   string  `msgpack:"isrc,omitempty"`
	Length float64 `msgpack:"length,omitempty"`
}

// fingerprintDoc packs the boolean vector eight entries per byte, most
// significant bit first.
type fingerprintDoc struct {
	StartsAt       float64 `msgpack:"starts_at"`
	SequenceNumber int     `msgpack:"sequence_number"`
	Length         int     `msgpack:"length"`
	Bits           []byte  `msgpack:"bits"`
}

func Write(w io.Writer, f File) error {
	doc := fileDoc{
		Version:      FormatVersion,
		SampleRate:   f.SampleRate,
		Track:        trackDoc(f.Track),
		Fingerprints: make([]fingerprintDoc, 0, len(f.Fingerprints)),
	}
	for _, fp := range f.Fingerprints {
		doc.Fingerprints = append(doc.Fingerprints, fingerprintDoc{
			StartsAt:       fp.StartsAt,
			SequenceNumber: fp.SequenceNumber,
			Length:         len(fp.Vector),
			Bits:           pack(fp.Vector),
		})
	}

	if err := msgpack.NewEncoder(w).Encode(&doc); err != nil {
		return fmt.Errorf("encoding fingerprint file: %w", err)
	}
	return nil
}

func Read(r io.Reader) (File, error) {
	var doc fileDoc
	if err := msgpack.NewDecoder(r).Decode(&doc); err != nil {
		return File{}, fmt.Errorf("decoding fingerprint file: %w", err)
	}
	if doc.Version != FormatVersion {
		return File{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, doc.Version)
	}

	f := File{
		SampleRate:   doc.SampleRate,
		Track:        models.TrackInfo(doc.Track),
		Fingerprints: make([]models.Fingerprint, 0, len(doc.Fingerprints)),
	}
	for i, fd := range doc.Fingerprints {
		if fd.Length < 0 || len(fd.Bits) != (fd.Length+7)/8 {
			return File{}, fmt.Errorf("fingerprint %d: %d bytes cannot hold %d entries", i, len(fd.Bits), fd.Length)
		}
		f.Fingerprints = append(f.Fingerprints, models.Fingerprint{
			Vector:         unpack(fd.Bits, fd.Length),
			StartsAt:       fd.StartsAt,
			SequenceNumber: fd.SequenceNumber,
		})
	}
	return f, nil
}

func Save(path string, f File) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating dir: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating fingerprint file: %w", err)
	}
	if err := Write(file, f); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func Load(path string) (File, error) {
	file, err := os.Open(path)
	if err != nil {
		return File{}, fmt.Errorf("opening fingerprint file: %w", err)
	}
	defer file.Close()
	return Read(file)
}

func pack(vector []bool) []byte {
	out := make([]byte, (len(vector)+7)/8)
	for i, set := range vector {
		if set {
			out[i/8] |= 0x80 >> (i % 8)
		}
	}
	return out
}

func unpack(bits []byte, length int) []bool {
	out := make([]bool, length)
	for i := range out {
		out[i] = bits[i/8]&(0x80>>(i%8)) != 0
	}
	return out
}
