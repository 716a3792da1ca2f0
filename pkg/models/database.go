package models

// SubFingerprintData is the stored counterpart of a HashedFingerprint,
// returned by bucket-key lookups.
type SubFingerprintData struct {
	Hashes         []int64   // stored bucket keys, one per hash table
	SequenceNumber int       // index of the fingerprint within its track
	SequenceAt     float64   // SequenceNumber converted to seconds
	Reference      Reference // id of the sub-fingerprint itself
	TrackReference Reference // id of the owning track
}

// FingerprintsQueryResponse is what a storage lookup returns for one query
// fingerprint.
type FingerprintsQueryResponse struct {
	SubFingerprints []SubFingerprintData
}
