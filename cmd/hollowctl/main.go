// Command hollowctl is a thin harness around the producer cycle: it is
// not a spec module, kept intentionally small per §1's "CLI/UI/explorer
// tooling" out-of-scope note, wiring together package producer and
// package blobstore enough to run a cycle against a bbolt-backed store
// from the command line.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/dshollow/hollow/blobstore"
	"github.com/dshollow/hollow/producer"
	"github.com/dshollow/hollow/schema"
	"github.com/dshollow/hollow/wstate"
)

func main() {
	dbPath := flag.String("db", "hollow.db", "path to the bbolt-backed blob store")
	cacheDir := flag.String("cache", "", "directory for the mmapped snapshot cache (optional)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	store, err := blobstore.OpenBoltStore(*dbPath, *cacheDir)
	if err != nil {
		logger.Error("open blob store", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	schemas := recordSchema()
	p := producer.New(producer.Options{
		Schemas:   schemas,
		Publisher: store,
		Announcer: store,
		Retriever: store,
		Logger:    logger,
	})
	p.AddListener(loggingListener{logger: logger})

	if version, err := store.LatestAnnounced(); err == nil {
		if err := p.Restore(context.Background(), version); err != nil {
			logger.Warn("restore failed, starting from empty state", "err", err)
		}
	}

	status := p.RunCycle(context.Background(), producer.PopulateFunc(populateFromStdin))
	if !status.Success && !status.NoDelta {
		logger.Error("cycle did not complete", "stage", status.Stage, "err", status.Err)
		os.Exit(1)
	}
	fmt.Printf("version=%d success=%v noDelta=%v elapsed=%s\n", status.Version, status.Success, status.NoDelta, status.Elapsed)
}

// recordSchema defines the one demo type hollowctl populates: a "Record"
// object with an integer primary key and a free-text value, read one line
// at a time from stdin as "id\tvalue".
func recordSchema() *schema.Set {
	set := schema.NewSet()
	schema.DefineObject(set, "Record", func(b *schema.ObjectSchemaBuilder) {
		b.Field("id", schema.Long)
		b.Field("value", schema.String)
		b.PrimaryKey("id")
	})
	return set
}

func populateFromStdin(ctx context.Context, pc *producer.PopulateContext) error {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 2)
		if len(parts) != 2 {
			return fmt.Errorf("hollowctl: malformed line %q, want \"id\\tvalue\"", line)
		}
		id, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return fmt.Errorf("hollowctl: bad id in %q: %w", line, err)
		}
		if _, err := pc.WriteState.Add("Record", wstate.Record{Fields: []any{id, parts[1]}}); err != nil {
			return err
		}
	}
	return scanner.Err()
}

type loggingListener struct{ logger *slog.Logger }

func (l loggingListener) OnCycleSkip(reason producer.CycleSkipReason) {
	l.logger.Info("cycle skipped", "reason", reason)
}
func (l loggingListener) OnNewDeltaChain(version int64) {
	l.logger.Info("new delta chain", "version", version)
}
func (l loggingListener) OnCycleStart(version int64) {
	l.logger.Info("cycle start", "version", version)
}
func (l loggingListener) OnCycleComplete(version int64, status producer.CycleStatus) {
	l.logger.Info("cycle complete", "version", version, "success", status.Success, "stage", status.Stage)
}
