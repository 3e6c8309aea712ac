package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var chatConversation string

var chatCmd = &cobra.Command{
	Use:   "chat [question]",
	Short: "Ask a question answered from stored content",
	Long: `Answers a question using only content in your knowledge base.
The answer streams as it is generated and cites the chunks it draws
from. Answers that fail the grounding check are flagged as unverified.

Pass --conversation to continue an earlier conversation; without it a
new conversation is started and its ID printed for follow-ups.`,
	Args: cobra.ExactArgs(1),
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatConversation, "conversation", "c", "", "conversation ID to continue")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	if chatService == nil {
		return errors.New("chat service not configured")
	}

	ctx := cmd.Context()
	conversationID := chatConversation
	newConversation := conversationID == ""
	if newConversation {
		conv, err := chatService.NewConversation(ctx, "")
		if err != nil {
			return fmt.Errorf("starting conversation: %w", err)
		}
		conversationID = conv.ID
	}

	result, err := chatService.SendMessage(ctx, conversationID, args[0], func(token string) error {
		cmd.Print(token)
		return nil
	})
	if err != nil {
		return fmt.Errorf("chat failed: %w", err)
	}
	cmd.Println()

	if len(result.Citations) > 0 {
		cmd.Println()
		cmd.Println("Sources:")
		for _, c := range result.Citations {
			cmd.Printf("  [%d] %s: %s\n", c.Index, c.ItemID, c.Snippet)
		}
	}
	if !result.Verified {
		cmd.Println()
		cmd.Println("Note: this answer could not be verified against its sources.")
	}
	if newConversation {
		cmd.Println()
		cmd.Printf("Conversation: %s (continue with --conversation)\n", conversationID)
	}
	return nil
}
