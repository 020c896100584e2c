package types

// Version is the canonical project version.
// The CLI and the recorded point schema share this version.
const Version = "0.3.0"

// RecordSchemaVersion is the version of the recorded point schema.
const RecordSchemaVersion = "1"
