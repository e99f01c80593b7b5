package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pario-ai/warden/pkg/models"
	"github.com/pario-ai/warden/pkg/store"
)

func newFlagsCmd() *cobra.Command {
	var (
		configPath string
		kind       string
		minCount   int
		bannedOnly bool
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "flags",
		Short: "List violation flags",
		RunE: func(cmd *cobra.Command, args []string) error {
			var k models.SubjectKind
			switch strings.ToUpper(kind) {
			case "":
			case "USER":
				k = models.SubjectUser
			case "IP":
				k = models.SubjectIP
			default:
				return fmt.Errorf("invalid --kind %q (use USER or IP)", kind)
			}

			st, _, cleanup, err := openStore(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			flags, err := st.ListFlags(context.Background(), store.FlagFilter{
				Kind:       k,
				MinCount:   minCount,
				BannedOnly: bannedOnly,
				Limit:      limit,
			})
			if err != nil {
				return err
			}
			fmt.Print(formatFlags(flags))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to warden config file")
	cmd.Flags().StringVar(&kind, "kind", "", "filter by subject kind (USER or IP)")
	cmd.Flags().IntVar(&minCount, "min-count", 0, "minimum violation count")
	cmd.Flags().BoolVar(&bannedOnly, "banned", false, "only show banned subjects")
	cmd.Flags().IntVar(&limit, "limit", 50, "max flags to return")

	return cmd
}

func formatFlags(flags []models.ViolationFlag) string {
	if len(flags) == 0 {
		return "No violation flags found.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-30s %-6s %10s %-20s %-25s\n",
		"SUBJECT", "KIND", "VIOLATIONS", "LAST AT", "BAN")
	b.WriteString(strings.Repeat("-", 96) + "\n")
	for _, f := range flags {
		fmt.Fprintf(&b, "%-30s %-6s %10d %-20s %-25s\n",
			f.Subject.ID, f.Subject.Kind, f.ViolationCount,
			f.LastViolationAt.Format("2006-01-02 15:04:05"), banLabel(f))
	}
	return b.String()
}

func banLabel(f models.ViolationFlag) string {
	if !f.IsBanned {
		return "-"
	}
	if f.BanUntil == nil {
		return "permanent"
	}
	return "until " + f.BanUntil.Format("2006-01-02 15:04:05")
}
