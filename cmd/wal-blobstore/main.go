// Command wal-blobstore is a bootstrap harness: it reads a single YAML file
// naming backend stores, a write quorum, a WAL directory and a bookmarks
// database, wires a multiplex.Store and a bookmarks.Cache, and serves
// /health, /ready, /metrics plus a tiny debug HTTP surface so the core can be
// exercised end-to-end without a wire protocol in front of it.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/cuemby/mononoke-wal/pkg/blobfail"
	"github.com/cuemby/mononoke-wal/pkg/blobstore"
	"github.com/cuemby/mononoke-wal/pkg/blobstore/boltblob"
	"github.com/cuemby/mononoke-wal/pkg/blobstore/fileblob"
	"github.com/cuemby/mononoke-wal/pkg/blobstore/timed"
	"github.com/cuemby/mononoke-wal/pkg/blobtypes"
	"github.com/cuemby/mononoke-wal/pkg/bookmarks"
	"github.com/cuemby/mononoke-wal/pkg/log"
	"github.com/cuemby/mononoke-wal/pkg/metrics"
	"github.com/cuemby/mononoke-wal/pkg/multiplex"
	"github.com/cuemby/mononoke-wal/pkg/wal/boltwal"
)

func main() {
	configPath := flag.String("config", "", "path to the bootstrap YAML config")
	flag.Parse()

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "usage: wal-blobstore -config <path>")
		os.Exit(2)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "wal-blobstore: %v\n", err)
		os.Exit(1)
	}

	log.Init(log.Config{Level: log.Level(cfg.LogLevel), JSONOutput: cfg.LogJSON})

	mux, err := bootstrap(cfg)
	if err != nil {
		log.Fatal(fmt.Sprintf("bootstrap failed: %v", err))
	}

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info(fmt.Sprintf("wal-blobstore listening on %s", cfg.ListenAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(fmt.Sprintf("http server failed: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(ctx)
}

func newStore(sc storeConfig) (blobstore.Store, error) {
	switch sc.Kind {
	case "file":
		return fileblob.New(sc.Path, false)
	case "bolt":
		return boltblob.New(sc.Path)
	default:
		return nil, fmt.Errorf("unknown store kind %q for blobstore %d", sc.Kind, sc.ID)
	}
}

func bootstrap(cfg *bootstrapConfig) (http.Handler, error) {
	deadlines := timed.Deadlines{ReadTimeout: 5 * time.Second, WriteTimeout: 10 * time.Second}

	main := make([]*timed.Store, 0, len(cfg.MainStores))
	for _, sc := range cfg.MainStores {
		inner, err := newStore(sc)
		if err != nil {
			return nil, err
		}
		main = append(main, timed.New(blobtypes.BlobstoreId(sc.ID), inner, deadlines))
	}

	writeOnly := make([]*timed.Store, 0, len(cfg.WriteOnlyStores))
	for _, sc := range cfg.WriteOnlyStores {
		inner, err := newStore(sc)
		if err != nil {
			return nil, err
		}
		writeOnly = append(writeOnly, timed.New(blobtypes.BlobstoreId(sc.ID), inner, deadlines))
	}

	if err := os.MkdirAll(cfg.WALDir, 0o755); err != nil {
		return nil, fmt.Errorf("create wal dir: %w", err)
	}
	walStore, err := boltwal.Open(filepath.Join(cfg.WALDir, "wal.db"))
	if err != nil {
		return nil, fmt.Errorf("open wal: %w", err)
	}

	mplex, err := multiplex.New(multiplex.Config{
		MultiplexID: blobtypes.MultiplexId(cfg.MultiplexID),
		WriteQuorum: cfg.WriteQuorum,
	}, walStore, main, writeOnly)
	if err != nil {
		return nil, fmt.Errorf("construct multiplex: %w", err)
	}
	metrics.RegisterComponent("wal", true, "")

	backend, err := bookmarks.OpenBolt(cfg.BookmarksDBPath)
	if err != nil {
		return nil, fmt.Errorf("open bookmarks db: %w", err)
	}
	cache := bookmarks.New(backend, bookmarks.Config{TTL: time.Duration(cfg.BookmarksTTLSec) * time.Second})
	metrics.RegisterComponent("bookmarks", true, "")

	collector := metrics.NewCollector(walStore, cache)
	collector.Start()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", metrics.HealthHandler())
	mux.HandleFunc("/ready", metrics.ReadyHandler())
	mux.Handle("/metrics", metrics.Handler())
	registerDebugRoutes(mux, mplex, cache)
	return mux, nil
}

func registerDebugRoutes(mux *http.ServeMux, mplex *multiplex.Store, cache *bookmarks.Cache) {
	mux.HandleFunc("GET /blob/{key}", func(w http.ResponseWriter, r *http.Request) {
		key := blobtypes.BlobKey(r.PathValue("key"))
		data, err := mplex.Get(r.Context(), key)
		if err != nil {
			writeError(w, err)
			return
		}
		if data == nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(data.Bytes)
	})

	mux.HandleFunc("PUT /blob/{key}", func(w http.ResponseWriter, r *http.Request) {
		key := blobtypes.BlobKey(r.PathValue("key"))
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		status, err := mplex.Put(r.Context(), key, body)
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("X-Overwrite-Status", status.String())
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET /bookmarks", func(w http.ResponseWriter, r *http.Request) {
		repoParam := r.URL.Query().Get("repo")
		repoID, err := strconv.ParseInt(repoParam, 10, 64)
		if err != nil {
			http.Error(w, "missing or invalid repo query param", http.StatusBadRequest)
			return
		}
		prefix := r.URL.Query().Get("prefix")

		entries, err := cache.ListByPrefixMaybeStale(r.Context(), blobtypes.RepositoryId(repoID), prefix)
		if err != nil {
			writeError(w, err)
			return
		}
		for _, e := range entries {
			fmt.Fprintf(w, "%s %s\n", e.Name, hex.EncodeToString(e.Changeset[:]))
		}
	})
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch blobfail.KindOf(err) {
	case blobfail.KindNotFound:
		status = http.StatusNotFound
	case blobfail.KindTimeout:
		status = http.StatusGatewayTimeout
	case blobfail.KindInvalidPath, blobfail.KindInvalidCopy:
		status = http.StatusBadRequest
	}
	http.Error(w, err.Error(), status)
}
