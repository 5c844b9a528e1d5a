package openai

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"freqgate/internal/provider"
	"freqgate/pkg/logger"
)

// ProcessStream decodes an SSE stream in the OpenAI chat completions format.
// Each event is prefixed with "data: " and the stream ends with
// "data: [DONE]".
func ProcessStream(reader io.ReadCloser) <-chan provider.ChatEvent {
	events := make(chan provider.ChatEvent, 32)

	go func() {
		defer close(events)
		defer reader.Close()

		scanner := bufio.NewScanner(reader)
		// Increase buffer size for large streaming chunks
		buf := make([]byte, 0, 64*1024)
		scanner.Buffer(buf, 1024*1024)

		sawFinish := false

		for scanner.Scan() {
			line := scanner.Text()

			// Skip empty lines and comments
			if line == "" || strings.HasPrefix(line, ":") {
				continue
			}

			if !strings.HasPrefix(line, "data:") {
				continue
			}

			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))

			if data == "[DONE]" {
				if !sawFinish {
					events <- provider.ChatEvent{Type: provider.EventTypeDone}
				}
				return
			}

			var chunk chatStreamChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				logger.Error().Err(err).Str("data", data).Msg("Failed to parse stream chunk")
				continue
			}

			if chunk.Error != nil {
				events <- provider.ChatEvent{
					Type:  provider.EventTypeError,
					Error: fmt.Errorf("[%s] %s", chunk.Error.Type, chunk.Error.Message),
				}
				return
			}

			if len(chunk.Choices) == 0 {
				continue
			}

			choice := chunk.Choices[0]
			if choice.Delta.Content != "" {
				events <- provider.ChatEvent{
					Type:  provider.EventTypeContent,
					Delta: choice.Delta.Content,
				}
			}

			if choice.FinishReason == "stop" || choice.FinishReason == "length" {
				sawFinish = true
				events <- provider.ChatEvent{
					Type:         provider.EventTypeDone,
					FinishReason: choice.FinishReason,
				}
			}
		}

		if err := scanner.Err(); err != nil {
			logger.Error().Err(err).Msg("Stream scanner error")
			events <- provider.ChatEvent{
				Type:  provider.EventTypeError,
				Error: err,
			}
		}
	}()

	return events
}
