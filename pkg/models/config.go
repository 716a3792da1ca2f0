package models

import (
	"errors"
	"fmt"
)

// ErrInvalidConfiguration is wrapped by every Validate failure.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// FingerprintConfiguration describes how fingerprints were produced and how
// they are hashed. The same configuration must be used at insert and at query
// time.
type FingerprintConfiguration struct {
	// Audio framing constants, used to convert fingerprint indices to seconds.
	SampleRate  int `yaml:"sample_rate"`
	Stride      int `yaml:"stride"`       // samples between two consecutive fingerprints
	ImageLength int `yaml:"image_length"` // spectral frames per fingerprint
	Overlap     int `yaml:"overlap"`      // samples between two spectral frames

	// VectorLength is the expected length of every boolean fingerprint vector.
	VectorLength int `yaml:"vector_length"`

	NumberOfHashTables       int    `yaml:"hash_tables"`
	NumberOfHashKeysPerTable int    `yaml:"hash_keys_per_table"`
	PermutationLength        int    `yaml:"permutation_length"`
	PermutationSeed          uint64 `yaml:"permutation_seed"`
}

// DefaultFingerprintConfiguration returns the configuration used when none is
// supplied: 5512 Hz audio, 128x32x2 fingerprint images and 25 tables of 4 keys.
func DefaultFingerprintConfiguration() FingerprintConfiguration {
	return FingerprintConfiguration{
		SampleRate:               5512,
		Stride:                   512,
		ImageLength:              128,
		Overlap:                  64,
		VectorLength:             128 * 32 * 2,
		NumberOfHashTables:       25,
		NumberOfHashKeysPerTable: 4,
		PermutationLength:        255,
		PermutationSeed:          0x5eed_f00d_cafe_0001,
	}
}

// NumberOfMinHashes is the signature length in bytes.
func (c FingerprintConfiguration) NumberOfMinHashes() int {
	return c.NumberOfHashTables * c.NumberOfHashKeysPerTable
}

// FingerprintLengthInSeconds is the audio duration covered by one fingerprint.
func (c FingerprintConfiguration) FingerprintLengthInSeconds() float64 {
	if c.SampleRate == 0 {
		return 0
	}
	return float64(c.ImageLength*c.Overlap) / float64(c.SampleRate)
}

// SequenceToSeconds converts a fingerprint index into its start time.
func (c FingerprintConfiguration) SequenceToSeconds(sequenceNumber int) float64 {
	if c.SampleRate == 0 {
		return 0
	}
	return float64(sequenceNumber*c.Stride) / float64(c.SampleRate)
}

// AdjustLengthToSeconds returns the duration spanned by fingerprints starting
// at startsAt through endsAt, including the length of the last fingerprint.
func (c FingerprintConfiguration) AdjustLengthToSeconds(endsAt, startsAt float64) float64 {
	return endsAt - startsAt + c.FingerprintLengthInSeconds()
}

func (c FingerprintConfiguration) Validate() error {
	switch {
	case c.SampleRate <= 0:
		return fmt.Errorf("%w: sample rate must be positive, got %d", ErrInvalidConfiguration, c.SampleRate)
	case c.Stride <= 0:
		return fmt.Errorf("%w: stride must be positive, got %d", ErrInvalidConfiguration, c.Stride)
	case c.VectorLength <= 0:
		return fmt.Errorf("%w: vector length must be positive, got %d", ErrInvalidConfiguration, c.VectorLength)
	case c.NumberOfHashTables <= 0 || c.NumberOfHashKeysPerTable <= 0:
		return fmt.Errorf("%w: need at least one hash table and one key per table", ErrInvalidConfiguration)
	case c.PermutationLength <= 0 || c.PermutationLength > c.VectorLength:
		return fmt.Errorf("%w: permutation length %d out of range (1..%d)", ErrInvalidConfiguration, c.PermutationLength, c.VectorLength)
	}
	return nil
}

// QueryConfiguration controls candidate selection and result aggregation.
type QueryConfiguration struct {
	// ThresholdVotes is the number of equal bucket keys a candidate needs.
	ThresholdVotes int `yaml:"threshold_votes"`
	// MaxTracksToReturn caps the number of result entries per query.
	MaxTracksToReturn int `yaml:"max_tracks"`
	// PermittedGap is how far (seconds) the query/track offset may drift
	// inside one aligned run.
	PermittedGap float64 `yaml:"permitted_gap"`
	// Accuracy is the tolerance (seconds) used when collapsing realtime
	// entries that touch at a chunk boundary.
	Accuracy float64 `yaml:"accuracy"`
	// MaxWait is how long (seconds of audio) a realtime entry may stay
	// pending without new evidence.
	MaxWait float64 `yaml:"max_wait"`
	// MinConfidence rejects finalized realtime entries below it.
	MinConfidence float64 `yaml:"min_confidence"`
}

func DefaultQueryConfiguration() QueryConfiguration {
	return QueryConfiguration{
		ThresholdVotes:    4,
		MaxTracksToReturn: 25,
		PermittedGap:      2.0,
		Accuracy:          1.5,
		MaxWait:           10.0,
		MinConfidence:     0,
	}
}

func (c QueryConfiguration) Validate() error {
	switch {
	case c.ThresholdVotes <= 0:
		return fmt.Errorf("%w: threshold votes must be positive, got %d", ErrInvalidConfiguration, c.ThresholdVotes)
	case c.MaxTracksToReturn <= 0:
		return fmt.Errorf("%w: max tracks must be positive, got %d", ErrInvalidConfiguration, c.MaxTracksToReturn)
	case c.PermittedGap < 0 || c.Accuracy < 0 || c.MaxWait < 0:
		return fmt.Errorf("%w: tolerances must not be negative", ErrInvalidConfiguration)
	case c.MinConfidence < 0 || c.MinConfidence > 1:
		return fmt.Errorf("%w: min confidence must be within [0,1], got %f", ErrInvalidConfiguration, c.MinConfidence)
	}
	return nil
}
