package main

import (
	"chat-relay/repositories"
	"fmt"
	"io"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/database"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var (
	inspectPrefix string
	inspectLimit  int
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <badger-dir>",
	Short: "Dump the keys of a relay store as a table",
	Long: "Open a relay Badger directory read-only and print one row per key.\n" +
		"Without --prefix every key family is listed in turn.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openReadOnly(args[0])
		if err != nil {
			return fmt.Errorf("error while opening Badger: %w", err)
		}
		defer db.Close()

		prefixes := repositories.InspectPrefixes
		if inspectPrefix != "" {
			prefixes = []string{inspectPrefix}
		}
		return renderStore(os.Stdout, db, prefixes, inspectLimit)
	},
}

func init() {
	inspectCmd.Flags().StringVar(&inspectPrefix, "prefix", "", "Only scan keys with this prefix (e.g. msg:)")
	inspectCmd.Flags().IntVar(&inspectLimit, "limit", 100, "Maximum rows per prefix, 0 for no limit")
}

func openReadOnly(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)
	return badger.Open(opts)
}

// renderStore writes one table row per key, decoded with the same mapper
// the relay's debug inspector uses.
func renderStore(w io.Writer, db *badger.DB, prefixes []string, limit int) error {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Key", "Type", "Detail"})
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

	err := db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for _, prefix := range prefixes {
			rows := 0
			p := []byte(prefix)
			for it.Seek(p); it.ValidForPrefix(p); it.Next() {
				if limit > 0 && rows == limit {
					break
				}
				item := it.Item()
				key := string(item.KeyCopy(nil))
				val, err := item.ValueCopy(nil)
				if err != nil {
					return err
				}
				table.Append(toColumns(key, repositories.DescribeEntry(key, val)))
				rows++
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	table.Render()
	return nil
}

func toColumns(key string, row database.InspectRow) []string {
	return []string{key, row.Type, row.Detail}
}
