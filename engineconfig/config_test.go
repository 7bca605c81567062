package engineconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/evalgo/themisgo/index"
	"github.com/evalgo/themisgo/txn"
)

func TestDefaultConfig_HasSaneDefaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, txn.IsolationSnapshot, cfg.DefaultIsolation)
	assert.Equal(t, "en", cfg.FullTextLanguage)
	assert.False(t, cfg.FullTextStemming)
	assert.True(t, cfg.FullTextStopWords)
	assert.Equal(t, 16, cfg.VectorDefaultM)
	assert.Equal(t, 200, cfg.VectorDefaultEfConstruction)
	assert.Equal(t, 64, cfg.VectorDefaultEfSearch)
}

func TestConfig_FieldsAreOverridable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = "/var/lib/engine"
	cfg.DefaultIsolation = txn.IsolationReadCommitted
	cfg.FullTextStemming = true
	cfg.FullTextStopWords = false

	assert.Equal(t, "/var/lib/engine", cfg.DataDir)
	assert.Equal(t, txn.IsolationReadCommitted, cfg.DefaultIsolation)
	assert.False(t, cfg.FullTextStopWords)
	assert.True(t, cfg.FullTextStemming)
}

func TestConfig_FullTextOptions_MatchesFields(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FullTextLanguage = "en"
	cfg.FullTextStemming = true
	cfg.FullTextStopWords = true

	got := cfg.FullTextOptions()
	assert.Equal(t, index.FullTextOptions{Language: "en", Stemming: true, StopWords: true}, got)
}
