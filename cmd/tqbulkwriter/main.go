package main

import (
	"encoding/json"
	"flag"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"

	"github.com/mevdschee/tqbulkwriter/config"
	"github.com/mevdschee/tqbulkwriter/metrics"
	"github.com/mevdschee/tqbulkwriter/store"
	"github.com/mevdschee/tqbulkwriter/writer"
)

// record is the inbound queue record shape: either prefix/suffix/value
// for a mergeable request, or query for an immediate one.
type record struct {
	Prefix string `json:"prefix"`
	Suffix string `json:"suffix"`
	Value  string `json:"value"`
	Query  string `json:"query"`
}

func main() {
	configPath := flag.String("config", "config.ini", "Path to configuration file")
	metricsAddr := flag.String("metrics", ":9090", "Metrics endpoint address")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}

	// Initialize metrics
	metrics.Init()

	// Start metrics HTTP server with pprof
	go func() {
		http.Handle("/metrics", metrics.Handler())
		log.Infof("metrics endpoint at http://localhost%s/metrics", *metricsAddr)
		log.Infof("pprof endpoints at http://localhost%s/debug/pprof/", *metricsAddr)
		if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
			log.WithError(err).Error("metrics server error")
		}
	}()

	st := store.New(store.Config{
		Driver:     cfg.Store.Driver,
		Host:       cfg.Store.Host,
		Name:       cfg.Store.Name,
		User:       cfg.Store.User,
		Credential: cfg.Store.Credential,
	})

	w := writer.New(writer.Config{
		BatchTimeWindow:   cfg.Writer.BatchTimeWindow,
		BatchSizeLimit:    cfg.Writer.BatchSizeLimit,
		BatchRetries:      cfg.Writer.BatchRetries,
		ImmediateRetries:  cfg.Writer.ImmediateRetries,
		ConnectRetryDelay: cfg.Writer.ConnectRetryDelay,
		ContentionDelay:   cfg.Writer.ContentionDelay,
		MaxValueBytes:     cfg.Writer.MaxValueBytes,
		QueueCapacity:     cfg.Writer.QueueCapacity,
	}, st)

	// Feed newline-delimited JSON records from stdin into the queue
	go func() {
		dec := json.NewDecoder(os.Stdin)
		for {
			var rec record
			if err := dec.Decode(&rec); err != nil {
				if err != io.EOF {
					log.WithError(err).Error("invalid input record")
				}
				return
			}

			var req writer.Request
			if rec.Query != "" {
				req = writer.Immediate(rec.Query)
			} else {
				req = writer.Mergeable(rec.Prefix, rec.Suffix, rec.Value)
			}
			if err := w.Enqueue(req); err != nil {
				return
			}
		}
	}()

	log.Info("tqbulkwriter started, press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down")
	w.Stop()
}
