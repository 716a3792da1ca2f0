package models

// TrackInfo is the metadata supplied when a track is inserted.
type TrackInfo struct {
	ID     string  // Optional external id
	Title  string  // Track title
	Artist string  // Artist name
	ISRC   string  // International Standard Recording Code (if available)
	Length float64 // Duration in seconds
}

// TrackData is a stored track as seen by the query engine.
type TrackData struct {
	Reference Reference
	Title     string
	Artist    string
	ISRC      string
	Length    float64 // Duration in seconds
}

// Fingerprint is one boolean feature frame produced by the (external)
// feature extractor, together with its position in the source audio.
type Fingerprint struct {
	Vector         []bool
	StartsAt       float64 // seconds from the start of the source audio
	SequenceNumber int
}

// HashedFingerprint is a Fingerprint after min-hashing and bucketing.
type HashedFingerprint struct {
	SubFingerprint []byte  // min-hash signature
	HashBins       []int64 // one bucket key per hash table
	StartsAt       float64 // seconds
	SequenceNumber int
}
