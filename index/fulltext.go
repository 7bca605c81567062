package index

import (
	"encoding/binary"
	"sort"

	"github.com/evalgo/themisgo/enginestatus"
	"github.com/evalgo/themisgo/keyschema"
)

// docLenPrefix and docLenKey address the auxiliary per-document token
// count a full-text index keeps for BM25 length normalization. This is
// bookkeeping private to the full-text index, not a key shape any other
// component names, so it lives here rather than in the key schema.
func docLenPrefix(table, column string) string {
	return "idxft_doclen" + keyschema.Separator + table + keyschema.Separator + column + keyschema.Separator
}

func docLenKey(table, column, pk string) string {
	return docLenPrefix(table, column) + pk
}

func writeFullTextEntries(kvHandle KV, def Definition, value, pk string) error {
	tokens := Tokenize(value, def.FullText)
	if len(tokens) == 0 {
		return nil
	}

	termFreq := make(map[string]uint32, len(tokens))
	for _, tok := range tokens {
		termFreq[tok]++
	}

	for term, tf := range termFreq {
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, tf)
		if err := kvHandle.Put(keyschema.SecondaryIndex(def.Table, def.Column, term, pk), buf); err != nil {
			return err
		}
	}

	lenBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(lenBuf, uint32(len(tokens)))
	return kvHandle.Put(docLenKey(def.Table, def.Column, pk), lenBuf)
}

func removeFullTextEntries(kvHandle KV, def Definition, value, pk string) error {
	tokens := Tokenize(value, def.FullText)
	seen := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		if err := kvHandle.Delete(keyschema.SecondaryIndex(def.Table, def.Column, tok, pk)); err != nil {
			return err
		}
	}
	return kvHandle.Delete(docLenKey(def.Table, def.Column, pk))
}

// Hit is one full-text search result.
type Hit struct {
	PK    string
	Score float64
}

// FulltextSearch tokenizes query with the index's own catalog options (the
// same ones applied at write time), scores every candidate document with
// BM25 summed across query terms, and returns the top-limit hits ordered by
// descending score with PK-ascending tie-break.
func FulltextSearch(kvHandle KV, table, column, query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		return nil, nil
	}
	def, found, err := GetCatalog(kvHandle, table, column)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, enginestatus.Error(enginestatus.KindNotFound, "index: no definition for %s/%s", table, column).Err()
	}

	terms := Tokenize(query, def.FullText)
	if len(terms) == 0 {
		return nil, nil
	}

	n, avgDocLen, err := fullTextCorpusStats(kvHandle, table, column)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}

	scores := make(map[string]float64)
	seenTerms := make(map[string]struct{}, len(terms))
	for _, term := range terms {
		if _, dup := seenTerms[term]; dup {
			continue
		}
		seenTerms[term] = struct{}{}

		postings := make(map[string]uint32)
		err := kvHandle.ScanPrefix(keyschema.SecondaryIndexPrefix(table, column, term), func(key string, value []byte) bool {
			pk := keyschema.ExtractPK(key)
			tf := uint32(0)
			if len(value) >= 4 {
				tf = binary.LittleEndian.Uint32(value)
			}
			postings[pk] = tf
			return true
		})
		if err != nil {
			return nil, err
		}
		df := len(postings)
		if df == 0 {
			continue
		}

		for pk, tf := range postings {
			docLen, err := fullTextDocLen(kvHandle, table, column, pk)
			if err != nil {
				return nil, err
			}
			scores[pk] += bm25Score(tf, docLen, avgDocLen, df, n)
		}
	}

	hits := make([]Hit, 0, len(scores))
	for pk, score := range scores {
		hits = append(hits, Hit{PK: pk, Score: score})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].PK < hits[j].PK
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func fullTextDocLen(kvHandle KV, table, column, pk string) (float64, error) {
	data, found, err := kvHandle.Get(docLenKey(table, column, pk))
	if err != nil || !found || len(data) < 4 {
		return 0, err
	}
	return float64(binary.LittleEndian.Uint32(data)), nil
}

func fullTextCorpusStats(kvHandle KV, table, column string) (int, float64, error) {
	n := 0
	var total float64
	err := kvHandle.ScanPrefix(docLenPrefix(table, column), func(key string, value []byte) bool {
		if len(value) >= 4 {
			total += float64(binary.LittleEndian.Uint32(value))
		}
		n++
		return true
	})
	if err != nil {
		return 0, 0, err
	}
	if n == 0 {
		return 0, 0, nil
	}
	return n, total / float64(n), nil
}
