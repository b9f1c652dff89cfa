package main

import (
	"chat-relay/internal"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/olekukonko/tablewriter"
)

const defaultPath = "./data/badger"

func main() {
	dbPath := flag.String("db", defaultPath, "Path to badger DB")
	// Messages by default, the unique-name indexes are rarely interesting.
	prefix := flag.String("prefix", "msg:", "Prefix to scan (msg:, user:id:, group:id:, member:)")
	limit := flag.Int("limit", 200, "Maximum number of keys to print, 0 for all")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Type", "Timestamp", "Entity ID", "Namespace", "Detail"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	count := 0
	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			if *limit > 0 && count == *limit {
				return nil
			}
			item := it.Item()
			key := string(item.KeyCopy(nil))
			err := item.Value(func(v []byte) error {
				row := internal.RecordMapper(key, v)
				table.Append([]string{row.Key, row.Type, row.Timestamp, row.EntityID, row.Namespace, row.Detail})
				return nil
			})
			if err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	table.Render()
	fmt.Printf("\n%d key(s) under %q\n", count, *prefix)
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)

	db, err := badger.Open(opts)
	if err != nil {
		// A crashed writer leaves a vlog that must be truncated before a read-only open succeeds.
		if strings.Contains(err.Error(), "Log truncate required") {
			repairOpts := badger.DefaultOptions(path).
				WithLogger(nil).WithBypassLockGuard(true)

			db, err = badger.Open(repairOpts)
			if err != nil {
				return nil, fmt.Errorf("repair failed: %w", err)
			}
			_ = db.Close()
			return badger.Open(opts)
		}
		return nil, err
	}
	return db, nil
}
