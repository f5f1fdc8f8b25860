package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// record mirrors the persisted trend record returned by GET /scrape.
type record struct {
	Trends          []string  `json:"trends"`
	Timestamp       time.Time `json:"timestamp"`
	ID              string    `json:"id"`
	AccessTimestamp time.Time `json:"accessTimestamp"`
}

// errorEnvelope mirrors the API error body.
type errorEnvelope struct {
	Code       string `json:"code"`
	Stage      string `json:"stage"`
	FailedStep string `json:"failedStep"`
	Error      string `json:"error"`
}

// message renders the envelope for the tool caller. Error already names
// the failed step, if any.
func (e errorEnvelope) message() string {
	if e.Code == "" {
		return fmt.Sprintf("%s (%s stage)", e.Error, e.Stage)
	}
	return fmt.Sprintf("%s (%s, %s stage)", e.Error, e.Code, e.Stage)
}

func main() {
	apiURL := os.Getenv("TRENDS_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:3000"
	}
	apiKey := os.Getenv("TRENDS_API_KEY")

	s := server.NewMCPServer(
		"trendscraper",
		"0.1.0",
		server.WithToolCapabilities(false),
	)

	scrapeTool := mcp.NewTool("scrape_trends",
		mcp.WithDescription("Log in to X with the server's configured account, read the top trending topics from the explore page, store them and return them. Takes 20-60 seconds."),
	)
	s.AddTool(scrapeTool, handleScrapeTrends(strings.TrimRight(apiURL, "/"), apiKey))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func handleScrapeTrends(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 180 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL+"/scrape", nil)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to create request: %v", err)), nil
		}
		if apiKey != "" {
			httpReq.Header.Set("X-API-Key", apiKey)
		}

		resp, err := client.Do(httpReq)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("API request failed: %v", err)), nil
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to read response: %v", err)), nil
		}

		if resp.StatusCode != http.StatusOK {
			var env errorEnvelope
			if err := json.Unmarshal(body, &env); err != nil || env.Error == "" {
				return mcp.NewToolResultError(fmt.Sprintf("API returned status %d", resp.StatusCode)), nil
			}
			return mcp.NewToolResultError(env.message()), nil
		}

		var rec record
		if err := json.Unmarshal(body, &rec); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "Trending on X at %s (run %s):\n", rec.Timestamp.Format(time.RFC1123), rec.ID)
		for i, t := range rec.Trends {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, strings.ReplaceAll(t, "\n", " · "))
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}
