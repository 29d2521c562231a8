package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/sitechat-go/internal/service"
)

var (
	askConversation string
	askStream       bool
)

var askCmd = &cobra.Command{
	Use:   "ask <site-id> <question>",
	Short: "Ask a question against a site's indexed content",
	Long: `Ask a question and get an answer grounded in the site's indexed
content, with citations back to the source pages.

Pass --conversation to continue an earlier conversation; the answer
then takes the previous turns into account.

Examples:
  sitechat ask <site-id> "How do I reset my password?"
  sitechat ask <site-id> "And on mobile?" --conversation <conv-id>
  sitechat ask <site-id> "What is your refund policy?" --stream`,
	Args: cobra.ExactArgs(2),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askConversation, "conversation", "", "continue an existing conversation")
	askCmd.Flags().BoolVar(&askStream, "stream", false, "print the answer token by token")
}

func runAsk(cmd *cobra.Command, args []string) error {
	siteID, question := args[0], args[1]
	ctx := context.Background()

	chat, err := getChat()
	if err != nil {
		return err
	}

	req := service.ChatRequest{SiteID: siteID, Message: question}
	if askConversation != "" {
		req.ConversationID = &askConversation
	}

	var resp *service.ChatResponse
	if askStream {
		resp, err = chat.AskStream(ctx, req, func(token string) error {
			fmt.Print(token)
			return nil
		})
		fmt.Println()
	} else {
		resp, err = chat.Ask(ctx, req)
		if err == nil {
			fmt.Println(resp.Answer)
		}
	}
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	if len(resp.Citations) > 0 {
		fmt.Println("\nSources:")
		for i, c := range resp.Citations {
			title := c.URL
			if c.Title != nil && *c.Title != "" {
				title = *c.Title
			}
			fmt.Printf("  [%d] %s\n      %s\n", i+1, title, c.URL)
		}
	}

	if verbose {
		fmt.Printf("\nConversation: %s\n", resp.ConversationID)
		fmt.Printf("Tokens: %d prompt, %d completion\n", resp.PromptTokens, resp.CompletionTokens)
	}

	return nil
}
