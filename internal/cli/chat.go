package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// NewChatCmd creates the chat command.
func NewChatCmd() *cobra.Command {
	var (
		chatID    string
		model     string
		stream    bool
		resume    bool
		serverURL string
	)

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Send a message to the gateway",
		Long: `Send a chat message to a running freqgate server.

Slash commands (like /status or /profit) are forwarded to the trading
bot controller; anything else goes to the LLM backend.

If no message is provided as an argument, an interactive session starts.`,
		Example: `  # Ask the bot for its status
  freqgate chat "/status"

  # Free-form question, streamed
  freqgate chat --stream "How did the strategy perform today?"

  # Continue an existing conversation
  freqgate chat --chat 2f1c... "And yesterday?"

  # Replay the latest answer of a conversation
  freqgate chat --chat 2f1c... --resume

  # Interactive chat
  freqgate chat`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if serverURL == "" {
				if cliCtx := GetCLIContext(cmd); cliCtx != nil {
					serverURL = cliCtx.ServerURL()
				} else {
					serverURL = "http://localhost:8080"
				}
			}
			if resume {
				if chatID == "" {
					return fmt.Errorf("--resume requires --chat")
				}
				return resumeChat(serverURL, chatID)
			}
			return runChat(args, chatID, model, stream, serverURL)
		},
	}

	cmd.Flags().StringVar(&chatID, "chat", "", "chat ID to continue a conversation")
	cmd.Flags().StringVarP(&model, "model", "m", "", "logical model selector")
	cmd.Flags().BoolVar(&stream, "stream", false, "stream the response")
	cmd.Flags().BoolVar(&resume, "resume", false, "replay the most recent answer of the chat")
	cmd.Flags().StringVar(&serverURL, "url", "", "freqgate server URL (reads from config if not specified)")

	return cmd
}

func runChat(args []string, chatID, model string, stream bool, serverURL string) error {
	if len(args) == 0 {
		return runInteractiveChat(chatID, model, serverURL)
	}

	message := strings.Join(args, " ")

	if stream {
		return sendStreamingMessage(serverURL, chatID, model, message)
	}
	_, err := sendSyncMessage(serverURL, chatID, model, message, true)
	return err
}

func runInteractiveChat(chatID, model, serverURL string) error {
	fmt.Println("Interactive chat (type 'exit' or Ctrl-D to quit)")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}

		id, err := sendSyncMessage(serverURL, chatID, model, line, true)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		// keep the conversation going in the same chat
		chatID = id
	}
}

func sendSyncMessage(serverURL, chatID, model, message string, print bool) (string, error) {
	reqBody := map[string]any{
		"message": message,
	}
	if chatID != "" {
		reqBody["chat_id"] = chatID
	}
	if model != "" {
		reqBody["model"] = model
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	client := &http.Client{Timeout: 120 * time.Second}
	resp, err := client.Post(
		serverURL+"/api/v1/chat",
		"application/json",
		bytes.NewBuffer(jsonData),
	)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w\nIs the server running? Start it with: freqgate serve", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	var chatResp struct {
		ChatID  string `json:"chat_id"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if print {
		fmt.Println(chatResp.Message)
		if chatID == "" {
			fmt.Printf("\n(Chat ID: %s)\n", chatResp.ChatID)
		}
	}

	return chatResp.ChatID, nil
}

func sendStreamingMessage(serverURL, chatID, model, message string) error {
	reqBody := map[string]any{
		"message": message,
	}
	if chatID != "" {
		reqBody["chat_id"] = chatID
	}
	if model != "" {
		reqBody["model"] = model
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	client := &http.Client{Timeout: 300 * time.Second}
	resp, err := client.Post(
		serverURL+"/api/v1/chat/stream",
		"application/json",
		bytes.NewBuffer(jsonData),
	)
	if err != nil {
		return fmt.Errorf("failed to send request: %w\nIs the server running? Start it with: freqgate serve", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	return printEventStream(resp.Body, chatID == "")
}

func resumeChat(serverURL, chatID string) error {
	client := &http.Client{Timeout: 120 * time.Second}
	resp, err := client.Get(serverURL + "/api/v1/chat/resume?chat_id=" + url.QueryEscape(chatID))
	if err != nil {
		return fmt.Errorf("failed to send request: %w\nIs the server running? Start it with: freqgate serve", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		fmt.Println("(nothing to resume)")
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	return printEventStream(resp.Body, false)
}

// printEventStream reads an SSE response and writes content deltas to
// stdout until the done frame.
func printEventStream(body io.Reader, printChatID bool) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		var event struct {
			Type   string `json:"type"`
			Delta  string `json:"delta"`
			ChatID string `json:"chat_id"`
			Error  string `json:"error"`
		}
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			continue
		}

		switch event.Type {
		case "content":
			fmt.Print(event.Delta)
		case "done":
			fmt.Println()
			if printChatID && event.ChatID != "" {
				fmt.Printf("\n(Chat ID: %s)\n", event.ChatID)
			}
			return nil
		case "error":
			fmt.Println()
			return fmt.Errorf("server error: %s", event.Error)
		}
	}

	return scanner.Err()
}
