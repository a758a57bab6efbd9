// Command airkv-server opens a store against a home directory and serves
// its read-only status/metrics surface over HTTP.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"

	"github.com/airkv-project/airkv"
	"github.com/airkv-project/airkv/httpapi"
	gokitlog "github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/trace"
)

func main() {
	homeDir := flag.String("home", "", "home directory for the store")
	backend := flag.String("backend", "local", "storage backend: local, fake, or s3")
	bucket := flag.String("s3-bucket", "", "s3 bucket name, when -backend=s3")
	addr := flag.String("addr", ":8080", "address to serve /status and /metrics on")
	flag.Parse()

	if *homeDir == "" {
		log.Fatal("airkv-server: -home is required")
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		log.Fatalf("airkv-server: creating trace exporter: %v", err)
	}
	tp := trace.NewTracerProvider(trace.WithBatcher(exporter))
	defer tp.Shutdown(context.Background())
	otel.SetTracerProvider(tp)

	registry := prometheus.NewRegistry()
	opts := airkv.DefaultOptions(*homeDir)
	opts.Backend = airkv.Backend(*backend)
	opts.Logger = gokitlog.NewLogfmtLogger(os.Stderr)
	opts.Registerer = registry
	opts.TracerProvider = tp
	if *backend == "s3" {
		opts.BackendProps = map[string]string{"bucket": *bucket}
	}

	store, err := airkv.Open(context.Background(), opts)
	if err != nil {
		log.Fatalf("airkv-server: opening store: %v", err)
	}
	defer store.Close(context.Background())

	router := httpapi.NewRouter(store, registry)
	log.Printf("airkv-server: serving on %s", *addr)
	log.Fatal(http.ListenAndServe(*addr, router))
}
