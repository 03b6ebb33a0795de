// Command clients2bolt validates a flat clients document and loads it
// into a bbolt database for the bbolt directory backend.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/uvensys/formgate/lib/directory"
	dbbolt "github.com/uvensys/formgate/lib/directory/bbolt"
	"github.com/uvensys/formgate/lib/directory/file"
	"go.etcd.io/bbolt"
)

var (
	inputFile  = flag.String("input", "", "path to the clients document, JSON or YAML (use - for stdin)")
	outputFile = flag.String("output", "", "path to the bbolt database to write")
	checkOnly  = flag.Bool("check", false, "validate the clients document without writing anything")
	helpFlag   = flag.Bool("help", false, "show help")
)

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "%s [options] -input <clients.json> -output <clients.bdb>\n\n", os.Args[0])
		flag.PrintDefaults()
		fmt.Fprintln(os.Stderr, "\nExamples:")
		fmt.Fprintln(os.Stderr, "  # Load a clients document into a bbolt database")
		fmt.Fprintln(os.Stderr, "  clients2bolt -input clients.json -output clients.bdb")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "  # Validate a document without writing")
		fmt.Fprintln(os.Stderr, "  clients2bolt -input clients.yaml -check")
		os.Exit(2)
	}
}

func loadClients(raw []byte) ([]directory.Client, error) {
	clients, err := file.Parse(raw)
	if err != nil {
		return nil, err
	}

	if len(clients) == 0 {
		return nil, errors.New("clients document is empty")
	}

	for _, client := range clients {
		if err := client.Valid(); err != nil {
			return nil, fmt.Errorf("client %q is invalid: %w", client.Code, err)
		}
	}

	return clients, nil
}

func main() {
	flag.Parse()

	if len(flag.Args()) > 0 || *helpFlag || *inputFile == "" {
		flag.Usage()
	}

	if !*checkOnly && *outputFile == "" {
		flag.Usage()
	}

	var input io.Reader
	if *inputFile == "-" {
		input = os.Stdin
	} else {
		fin, err := os.Open(*inputFile)
		if err != nil {
			log.Fatalf("failed to open input file: %v", err)
		}
		defer fin.Close()
		input = fin
	}

	raw, err := io.ReadAll(input)
	if err != nil {
		log.Fatalf("failed to read clients document: %v", err)
	}

	clients, err := loadClients(raw)
	if err != nil {
		log.Fatalf("rejecting clients document: %v", err)
	}

	if *checkOnly {
		fmt.Printf("%s is valid, %d client(s)\n", *inputFile, len(clients))
		return
	}

	bdb, err := bbolt.Open(*outputFile, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		log.Fatalf("failed to open bbolt database: %v", err)
	}
	defer bdb.Close()

	store := dbbolt.New(bdb)
	ctx := context.Background()

	for _, client := range clients {
		if err := store.Put(ctx, client); err != nil {
			log.Fatalf("failed to store client %q: %v", client.Code, err)
		}
	}

	fmt.Printf("Loaded %d client(s) into %s\n", len(clients), *outputFile)
}
