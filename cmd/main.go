package main

import (
	"fmt"
	"log"

	"github.com/loro-dev/loro-go/internal/change"
	"github.com/loro-dev/loro-go/internal/logging"
	"github.com/loro-dev/loro-go/internal/state"
	"github.com/loro-dev/loro-go/pkg/loro"
)

func main() {
	logger, err := logging.NewLogger("info", "console")
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	// Two independent replicas of the same document.
	alice, err := loro.New(loro.Options{PeerID: 1, Logger: logger})
	if err != nil {
		log.Fatal(err)
	}
	bob, err := loro.New(loro.Options{PeerID: 2, Logger: logger})
	if err != nil {
		log.Fatal(err)
	}

	// Watch every event Bob's replica produces.
	sub := bob.Subscribe(func(dd state.DocDiff) {
		fmt.Printf("bob observed %d container diff(s) from origin %q\n", len(dd.Diffs), dd.Origin)
	})
	defer sub.Unsubscribe()

	// Concurrent edits: neither replica has seen the other's yet.
	if err := alice.Text("doc").Insert(0, "Hello"); err != nil {
		log.Fatal(err)
	}
	if err := bob.Text("doc").Insert(0, " World!"); err != nil {
		log.Fatal(err)
	}
	if err := alice.Map("meta").Set("title", change.StringValue("demo")); err != nil {
		log.Fatal(err)
	}
	if err := bob.Counter("visits").Increment(2.5); err != nil {
		log.Fatal(err)
	}

	// Sync both ways through incremental updates.
	aliceToBob, err := alice.Export(loro.ExportUpdates{From: bob.OplogVersion()})
	if err != nil {
		log.Fatal(err)
	}
	bobToAlice, err := bob.Export(loro.ExportUpdates{From: alice.OplogVersion()})
	if err != nil {
		log.Fatal(err)
	}
	if err := bob.Import(aliceToBob); err != nil {
		log.Fatal(err)
	}
	if err := alice.Import(bobToAlice); err != nil {
		log.Fatal(err)
	}

	fmt.Printf("alice text: %q\n", alice.Text("doc").String())
	fmt.Printf("bob text:   %q\n", bob.Text("doc").String())
	fmt.Printf("counter:    %v\n", alice.Counter("visits").Value())

	// A third replica bootstraps from a snapshot.
	snapshot, err := alice.Export(loro.ExportSnapshot{})
	if err != nil {
		log.Fatal(err)
	}
	carol, err := loro.New(loro.Options{PeerID: 3, Logger: logger})
	if err != nil {
		log.Fatal(err)
	}
	if err := carol.Import(snapshot); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("carol text: %q (from %d-byte snapshot)\n", carol.Text("doc").String(), len(snapshot))

	diag := carol.DiagnoseSize()
	fmt.Printf("carol holds %d container(s), ~%d state bytes\n", diag.ContainerCount, diag.StateBytes)
}
