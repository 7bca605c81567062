// Command themisgo-demo exercises the storage engine end to end: it opens a
// KV store, puts a couple of indexed entities inside one transaction, links
// them with a graph edge, indexes a vector for each, and prints a few
// queries back out. It exists so the engine can be smoke-tested as a whole
// without a caller wiring every package together by hand; embedders are
// expected to import the packages directly rather than shell out to this
// binary.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/evalgo/themisgo/common"
	"github.com/evalgo/themisgo/engineconfig"
	"github.com/evalgo/themisgo/entity"
	"github.com/evalgo/themisgo/graph"
	"github.com/evalgo/themisgo/index"
	"github.com/evalgo/themisgo/kv"
	"github.com/evalgo/themisgo/txn"
	"github.com/evalgo/themisgo/vector"
)

func main() {
	log := common.NewLogger(common.DefaultLoggerConfig())
	cl := common.ServiceLogger("themisgo-demo", "0.1.0")
	defer common.LogPanic(cl)

	dir, err := os.MkdirTemp("", "themisgo-demo")
	if err != nil {
		log.WithError(err).Fatal("create data directory")
	}
	defer os.RemoveAll(dir)

	store, err := kv.Open(filepath.Join(dir, "engine.db"))
	if err != nil {
		log.WithError(err).Fatal("open store")
	}
	defer store.Close()

	if err := index.CreateIndex(store, "users", "email", true, index.KindRegular); err != nil {
		cl.WithFields(common.ErrorFields(err, "create-index")).Fatal("create index")
	}

	cfg := engineconfig.DefaultConfig()
	if err := index.CreateIndex(store, "articles", "body", false, index.KindFullText, cfg.FullTextOptions()); err != nil {
		cl.WithFields(common.ErrorFields(err, "create-fulltext-index")).Fatal("create full-text index")
	}

	graphIdx := graph.New()
	vectorMgr := vector.NewManager()
	if err := vectorMgr.Init("users", vector.DefaultConfig(2)); err != nil {
		log.WithError(err).Fatal("init vector namespace")
	}

	mgr := txn.NewManager(store, graphIdx, vectorMgr, log)

	tx, err := mgr.Begin(txn.IsolationSnapshot)
	if err != nil {
		log.WithError(err).Fatal("begin transaction")
	}

	writeStart := time.Now()
	alice := entity.New("alice")
	alice.Set("email", entity.String("alice@example.com"))
	alice.Set("embedding", entity.Vector([]float32{0, 1}))
	bob := entity.New("bob")
	bob.Set("email", entity.String("bob@example.com"))
	bob.Set("embedding", entity.Vector([]float32{1, 0}))

	if err := tx.PutEntity("users", alice); err != nil {
		log.WithError(err).Fatal("put alice")
	}
	if err := tx.PutEntity("users", bob); err != nil {
		log.WithError(err).Fatal("put bob")
	}
	cl.WithFields(common.DatabaseFields("put", "users", 2, time.Since(writeStart))).Info("wrote users")
	if err := tx.AddVector("users", alice, "embedding"); err != nil {
		log.WithError(err).Fatal("index alice's vector")
	}
	if err := tx.AddVector("users", bob, "embedding"); err != nil {
		log.WithError(err).Fatal("index bob's vector")
	}

	follows := entity.NewEdge("alice", "bob")
	if err := tx.AddEdge(follows); err != nil {
		log.WithError(err).Fatal("add edge")
	}

	post := entity.New("p1")
	post.Set("body", entity.String("alice explores the moon with a rover"))
	if err := tx.PutEntity("articles", post); err != nil {
		log.WithError(err).Fatal("put article")
	}

	err = common.LogOperation(cl, "commit-transaction", func() error {
		return mgr.Commit(tx.ID())
	})
	if err != nil {
		log.WithError(err).Fatal("commit")
	}

	pks, err := index.ScanKeysEqual(store, "users", "email", "bob@example.com")
	if err != nil {
		log.WithError(err).Fatal("scan by email")
	}
	fmt.Printf("users with email bob@example.com: %v\n", pks)

	neighbors, err := graphIdx.OutNeighbors(store, "alice")
	if err != nil {
		log.WithError(err).Fatal("out neighbors")
	}
	fmt.Printf("alice follows: %v\n", neighbors)

	textHits, err := index.FulltextSearch(store, "articles", "body", "moon", 5)
	if err != nil {
		log.WithError(err).Fatal("full-text search")
	}
	fmt.Printf("articles matching 'moon': %v\n", textHits)

	knnDone := common.LogDuration(cl, "search-knn")
	matches, err := vectorMgr.SearchKNN("users", []float32{0, 1}, 1, nil)
	knnDone()
	if err != nil {
		log.WithError(err).Fatal("search knn")
	}
	fmt.Printf("nearest to (0,1): %s (distance %.4f)\n", matches[0].PK, matches[0].Distance)

	stats := mgr.Stats()
	common.NewStructuredLog(log).
		WithField("begun", stats.Begun).
		WithField("committed", stats.Committed).
		WithField("aborted", stats.Aborted).
		Level(common.LogLevelInfo).
		Log("transaction manager stats")
	fmt.Printf("transactions: begun=%d committed=%d aborted=%d\n", stats.Begun, stats.Committed, stats.Aborted)
}
