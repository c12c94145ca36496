package cli

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

type partitionInfo struct {
	Key        string `json:"key"`
	Bytes      int64  `json:"bytes"`
	ModifiedAt string `json:"modifiedAt"`
}

// NewPartitionCommand returns the `grepwise partition` subcommand tree,
// which inspects on-disk partitions directly — no running server required.
func NewPartitionCommand() *cobra.Command {
	var indexRoot, output string

	cmd := &cobra.Command{
		Use:   "partition",
		Short: "Inspect on-disk log partitions",
	}
	cmd.PersistentFlags().StringVar(&indexRoot, "index-root", "", "index root directory (contains partitions/)")
	cmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "output format: table|json")
	cmd.MarkPersistentFlagRequired("index-root")

	cmd.AddCommand(newPartitionListCommand(&indexRoot, &output))

	return cmd
}

func newPartitionListCommand(indexRoot, output *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List partitions and their on-disk size",
		RunE: func(cmd *cobra.Command, args []string) error {
			infos, err := listPartitions(*indexRoot)
			if err != nil {
				return err
			}

			p := newPrinter(*output)
			if *output == "json" {
				return p.json(infos)
			}
			rows := make([][]string, 0, len(infos))
			for _, info := range infos {
				rows = append(rows, []string{info.Key, humanize.Bytes(uint64(info.Bytes)), info.ModifiedAt})
			}
			p.table([]string{"KEY", "SIZE", "MODIFIED"}, rows)
			return nil
		},
	}
}

// listPartitions walks <indexRoot>/partitions/<key>/ and reports each
// partition's key, total on-disk size, and most recent file modification
// time, matching the layout index.Engine writes under the hood.
func listPartitions(indexRoot string) ([]partitionInfo, error) {
	partitionsDir := filepath.Join(indexRoot, "partitions")
	entries, err := os.ReadDir(partitionsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	infos := make([]partitionInfo, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		key := entry.Name()
		dir := filepath.Join(partitionsDir, key)

		var totalBytes int64
		var latest os.FileInfo
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			fi, err := d.Info()
			if err != nil {
				return err
			}
			totalBytes += fi.Size()
			if latest == nil || fi.ModTime().After(latest.ModTime()) {
				latest = fi
			}
			return nil
		})
		if err != nil {
			return nil, err
		}

		modified := ""
		if latest != nil {
			modified = latest.ModTime().Format("2006-01-02T15:04:05Z07:00")
		}
		infos = append(infos, partitionInfo{Key: key, Bytes: totalBytes, ModifiedAt: modified})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}
