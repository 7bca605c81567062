package index

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalgo/themisgo/entity"
	"github.com/evalgo/themisgo/kv"
)

func newTestStore(t *testing.T) *kv.Store {
	t.Helper()
	s, err := kv.Open(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func putEntity(t *testing.T, s *kv.Store, table string, e *entity.Entity) {
	t.Helper()
	data, err := entity.Serialize(e)
	require.NoError(t, err)
	require.NoError(t, s.Put(table+":"+e.PK, data))
}

func TestRegularIndex_PutScanErase(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, CreateIndex(s, "users", "email", false, KindRegular))

	alice := entity.New("u1")
	alice.Set("email", entity.String("alice@example.com"))
	require.NoError(t, Put(s, "users", alice))
	putEntity(t, s, "users", alice)

	pks, err := ScanKeysEqual(s, "users", "email", "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, pks)

	require.NoError(t, Erase(s, "users", "u1"))
	pks, err = ScanKeysEqual(s, "users", "email", "alice@example.com")
	require.NoError(t, err)
	assert.Empty(t, pks)
}

func TestRegularIndex_UpdateMovesEntry(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, CreateIndex(s, "users", "email", false, KindRegular))

	alice := entity.New("u1")
	alice.Set("email", entity.String("old@example.com"))
	require.NoError(t, Put(s, "users", alice))
	putEntity(t, s, "users", alice)

	alice.Set("email", entity.String("new@example.com"))
	require.NoError(t, Put(s, "users", alice))
	putEntity(t, s, "users", alice)

	pks, err := ScanKeysEqual(s, "users", "email", "old@example.com")
	require.NoError(t, err)
	assert.Empty(t, pks)

	pks, err = ScanKeysEqual(s, "users", "email", "new@example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, pks)
}

func TestUniqueIndex_RejectsDuplicate(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, CreateIndex(s, "users", "email", true, KindRegular))

	a := entity.New("u1")
	a.Set("email", entity.String("shared@example.com"))
	require.NoError(t, Put(s, "users", a))
	putEntity(t, s, "users", a)

	b := entity.New("u2")
	b.Set("email", entity.String("shared@example.com"))
	err := Put(s, "users", b)
	assert.Error(t, err)
}

func TestSparseIndex_SkipsMissingField(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, CreateIndex(s, "users", "nickname", false, KindSparse))

	a := entity.New("u1")
	require.NoError(t, Put(s, "users", a))
	putEntity(t, s, "users", a)

	stats, err := StatsFor(s, "users", "nickname")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.EntryCount)
}

func TestCompositeIndex_EqualityOverJoinedColumns(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, CreateIndex(s, "orders", "region+status", false, KindComposite))

	o := entity.New("o1")
	o.Set("region", entity.String("eu"))
	o.Set("status", entity.String("open"))
	require.NoError(t, Put(s, "orders", o))
	putEntity(t, s, "orders", o)

	pks, err := ScanKeysEqual(s, "orders", "region+status", "eu\x1fopen")
	require.NoError(t, err)
	assert.Equal(t, []string{"o1"}, pks)
}

func TestRangeIndex_Scan(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, CreateIndex(s, "events", "ts", false, KindRange))

	for _, pair := range [][2]string{{"e1", "0010"}, {"e2", "0020"}, {"e3", "0030"}} {
		e := entity.New(pair[0])
		e.Set("ts", entity.String(pair[1]))
		require.NoError(t, Put(s, "events", e))
		putEntity(t, s, "events", e)
	}

	pks, err := ScanKeysRange(s, "events", "ts", "0010", "0020", true)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"e1", "e2"}, pks)

	pks, err = ScanKeysRange(s, "events", "ts", "0010", "0020", false)
	require.NoError(t, err)
	assert.Empty(t, pks)
}

func TestFullTextIndex_SearchRanksByRelevance(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, CreateIndex(s, "docs", "body", false, KindFullText))

	d1 := entity.New("d1")
	d1.Set("body", entity.String("the quick brown fox jumps over the lazy dog"))
	require.NoError(t, Put(s, "docs", d1))
	putEntity(t, s, "docs", d1)

	d2 := entity.New("d2")
	d2.Set("body", entity.String("fox fox fox"))
	require.NoError(t, Put(s, "docs", d2))
	putEntity(t, s, "docs", d2)

	hits, err := FulltextSearch(s, "docs", "body", "fox", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "d2", hits[0].PK, "document with higher term frequency should rank first")
}

func TestFullTextIndex_StemmingCollapsesInflections(t *testing.T) {
	s := newTestStore(t)
	opts := FullTextOptions{Language: "en", Stemming: true, StopWords: true}
	require.NoError(t, CreateIndex(s, "articles", "content", false, KindFullText, opts))

	a1 := entity.New("a1")
	a1.Set("content", entity.String("ai moon base explores the moon with robots"))
	require.NoError(t, Put(s, "articles", a1))
	putEntity(t, s, "articles", a1)

	a2 := entity.New("a2")
	a2.Set("content", entity.String("ai rocket and space exploration"))
	require.NoError(t, Put(s, "articles", a2))
	putEntity(t, s, "articles", a2)

	// Without stemming "explores" and "exploration" would never match the
	// query term "explor"; with stemming enabled both documents share a
	// stem and both should score.
	hits, err := FulltextSearch(s, "articles", "content", "exploration", 10)
	require.NoError(t, err)
	var pks []string
	for _, h := range hits {
		pks = append(pks, h.PK)
	}
	assert.ElementsMatch(t, []string{"a1", "a2"}, pks)
}

func TestCreateIndex_FullTextOptionsSurviveCatalogRoundTrip(t *testing.T) {
	s := newTestStore(t)
	opts := FullTextOptions{Language: "de", Stemming: true, StopWords: false}
	require.NoError(t, CreateIndex(s, "docs", "body", false, KindFullText, opts))

	def, found, err := GetCatalog(s, "docs", "body")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, opts, def.FullText)
}

func TestCreateIndex_FullTextWithoutOptionsDefaultsToEnglishStopwordsOnly(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, CreateIndex(s, "docs", "body", false, KindFullText))

	def, found, err := GetCatalog(s, "docs", "body")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, FullTextOptions{Language: "en", StopWords: true}, def.FullText)
}

func TestRebuildAndReindexTable(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, CreateIndex(s, "users", "email", false, KindRegular))

	a := entity.New("u1")
	a.Set("email", entity.String("a@example.com"))
	putEntity(t, s, "users", a)

	require.NoError(t, Rebuild(s, "users", "email"))
	pks, err := ScanKeysEqual(s, "users", "email", "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, pks)

	require.NoError(t, ReindexTable(s, "users"))
	pks, err = ScanKeysEqual(s, "users", "email", "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, pks)
}
