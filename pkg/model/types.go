package model

// LeaseState represents the checkout state of a model.
type LeaseState string

const (
	LeaseStateUnleased LeaseState = "unleased"
	LeaseStateLeased   LeaseState = "leased"
)

// CorruptedMarker stands in for the lease holder of a record that fails to parse.
const CorruptedMarker = "CORRUPTED"

// FileExt is the extension of every persisted model record.
const FileExt = ".json"

// Persisted and view field names shared with existing model files and GUI clients.
const (
	FieldModel        = "model"
	FieldName         = "name"
	FieldModelVersion = "modelVersion"
	FieldReadOnly     = "readOnly"
	FieldLastModified = "lastModified"
)
