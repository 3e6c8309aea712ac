package cli

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mnemo-labs/mnemo/internal/core/domain"
)

var connectionsDiscover bool

var connectionsCmd = &cobra.Command{
	Use:   "connections [item-id]",
	Short: "Show connections for an item",
	Long: `Lists discovered connections for an item, strongest first.
Connections combine semantic similarity, shared named entities, and
temporal proximity. Use --discover to re-run discovery first.`,
	Args: cobra.ExactArgs(1),
	RunE: runConnections,
}

func init() {
	connectionsCmd.Flags().BoolVar(&connectionsDiscover, "discover", false, "run discovery before listing")
	rootCmd.AddCommand(connectionsCmd)
}

func runConnections(cmd *cobra.Command, args []string) error {
	if connectionService == nil {
		return errors.New("connection service not configured")
	}

	ctx := cmd.Context()
	itemID := args[0]

	if connectionsDiscover {
		if err := connectionService.DiscoverConnections(ctx, itemID); err != nil {
			return fmt.Errorf("discovery failed: %w", err)
		}
	}

	connections, err := connectionService.ListConnections(ctx, itemID)
	if err != nil {
		return fmt.Errorf("listing connections: %w", err)
	}

	if len(connections) == 0 {
		cmd.Println("No connections found.")
		return nil
	}

	cmd.Printf("Connections for %s:\n\n", itemID)
	for _, conn := range connections {
		other := conn.TargetID
		if other == itemID {
			other = conn.SourceID
		}
		cmd.Printf("  %s (%.2f) %s\n", other, conn.Strength, formatSignals(conn.Signals))
	}
	return nil
}

// formatSignals renders signal contributions like "similarity=0.81 temporal=0.93".
func formatSignals(signals map[domain.Signal]float64) string {
	if len(signals) == 0 {
		return ""
	}
	parts := make([]string, 0, len(signals))
	for sig, v := range signals {
		parts = append(parts, fmt.Sprintf("%s=%.2f", sig, v))
	}
	sort.Strings(parts)
	return "[" + strings.Join(parts, " ") + "]"
}
