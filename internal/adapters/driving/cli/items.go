package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var itemsCmd = &cobra.Command{
	Use:   "items",
	Short: "Manage captured items",
	Long:  `List, inspect, or delete captured items.`,
}

var itemsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all items, newest first",
	Args:  cobra.NoArgs,
	RunE:  runItemsList,
}

var itemsShowCmd = &cobra.Command{
	Use:   "show [item-id]",
	Short: "Show an item with its metadata",
	Args:  cobra.ExactArgs(1),
	RunE:  runItemsShow,
}

var itemsDeleteCmd = &cobra.Command{
	Use:   "delete [item-id]",
	Short: "Delete an item and its chunks and connections",
	Args:  cobra.ExactArgs(1),
	RunE:  runItemsDelete,
}

func init() {
	itemsCmd.AddCommand(itemsListCmd)
	itemsCmd.AddCommand(itemsShowCmd)
	itemsCmd.AddCommand(itemsDeleteCmd)
	rootCmd.AddCommand(itemsCmd)
}

func runItemsList(cmd *cobra.Command, _ []string) error {
	if itemStore == nil {
		return errors.New("item store not configured")
	}

	items, err := itemStore.ListItems(cmd.Context())
	if err != nil {
		return fmt.Errorf("listing items: %w", err)
	}
	if len(items) == 0 {
		cmd.Println("No items captured yet.")
		return nil
	}

	for _, item := range items {
		title := item.Title
		if title == "" {
			title = "(untitled)"
		}
		cmd.Printf("%s  %-9s %-8s %s\n", item.ID, item.Status, item.Kind, title)
	}
	return nil
}

func runItemsShow(cmd *cobra.Command, args []string) error {
	if itemStore == nil {
		return errors.New("item store not configured")
	}

	item, err := itemStore.GetItem(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("loading item: %w", err)
	}

	cmd.Printf("ID:      %s\n", item.ID)
	cmd.Printf("Title:   %s\n", item.Title)
	cmd.Printf("Kind:    %s\n", item.Kind)
	cmd.Printf("Status:  %s\n", item.Status)
	if item.SourceURI != "" {
		cmd.Printf("Source:  %s\n", item.SourceURI)
	}
	if item.Error != "" {
		cmd.Printf("Error:   %s\n", item.Error)
	}
	cmd.Printf("Created: %s\n", item.CreatedAt.Format("2006-01-02 15:04:05"))
	if item.Metadata != nil {
		cmd.Printf("Summary: %s\n", item.Metadata.Summary)
		for _, c := range item.Metadata.Concepts {
			cmd.Printf("  concept: %s\n", c)
		}
		for _, e := range item.Metadata.Entities {
			cmd.Printf("  entity:  %s\n", e)
		}
	}
	return nil
}

func runItemsDelete(cmd *cobra.Command, args []string) error {
	if itemStore == nil {
		return errors.New("item store not configured")
	}

	if err := itemStore.DeleteItem(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("deleting item: %w", err)
	}
	cmd.Printf("Deleted %s\n", args[0])
	return nil
}
