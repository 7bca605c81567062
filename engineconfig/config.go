// Package engineconfig carries engine-level options for embedders: the data
// directory, default transaction isolation, and defaults for the full-text
// and vector subsystems. The core loads no configuration from the
// environment itself (that belongs to an outer HTTP/CLI layer); this
// package only gives embedders a typed options struct.
package engineconfig

import (
	"github.com/evalgo/themisgo/index"
	"github.com/evalgo/themisgo/txn"
)

// Config is the engine's top-level options struct.
type Config struct {
	// DataDir is the directory the embedded KV store's data file lives in.
	DataDir string

	// DefaultIsolation is the isolation level an embedder passes to
	// txn.Manager.Begin; Begin itself always takes an explicit level and
	// does not read this field.
	DefaultIsolation txn.IsolationLevel

	// FullTextLanguage selects the stopword set and stemmer a full-text
	// index created with FullTextOptions applies.
	FullTextLanguage string

	// FullTextStemming enables stemming on every full-text index created
	// with FullTextOptions.
	FullTextStemming bool

	// FullTextStopWords enables stopword removal on every full-text index
	// created with FullTextOptions.
	FullTextStopWords bool

	// VectorDefaultM is the default ANN out-degree for a vector namespace
	// initialized without explicit construction parameters.
	VectorDefaultM int

	// VectorDefaultEfConstruction is the default insertion candidate-list
	// depth for a vector namespace initialized without explicit
	// construction parameters.
	VectorDefaultEfConstruction int

	// VectorDefaultEfSearch is the default query candidate-list depth for
	// a vector namespace initialized without explicit construction
	// parameters.
	VectorDefaultEfSearch int
}

// DefaultConfig returns the engine's defaults: a "./data" data directory,
// snapshot isolation, English stopword removal without stemming for
// full-text indexes, and the vector package's own ANN construction
// defaults (M=16, efConstruction=200, efSearch=64).
func DefaultConfig() Config {
	return Config{
		DataDir:                     "./data",
		DefaultIsolation:            txn.IsolationSnapshot,
		FullTextLanguage:            "en",
		FullTextStemming:            false,
		FullTextStopWords:           true,
		VectorDefaultM:              16,
		VectorDefaultEfConstruction: 200,
		VectorDefaultEfSearch:       64,
	}
}

// FullTextOptions builds the index.FullTextOptions a full-text index
// created under this configuration's defaults should use.
func (c Config) FullTextOptions() index.FullTextOptions {
	return index.FullTextOptions{
		Language:  c.FullTextLanguage,
		Stemming:  c.FullTextStemming,
		StopWords: c.FullTextStopWords,
	}
}
