package main

import (
	"context"
	"log"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

func main() {
	server := sdk.NewServer(&sdk.Implementation{Name: "test-command", Version: "1.0.0"}, nil)

	type publishArgs struct {
		TranscriptID string           `json:"transcript_id"`
		Text         string           `json:"text"`
		Segments     []map[string]any `json:"segments,omitempty"`
	}

	sdk.AddTool(server, &sdk.Tool{Name: "publish_transcript", Description: "echo the transcript text"}, func(ctx context.Context, req *sdk.CallToolRequest, args publishArgs) (*sdk.CallToolResult, any, error) {
		return &sdk.CallToolResult{
			Content: []sdk.Content{
				&sdk.TextContent{Text: args.TranscriptID + ":" + args.Text},
			},
		}, nil, nil
	})

	if err := server.Run(context.Background(), &sdk.StdioTransport{}); err != nil {
		log.Printf("server exited: %v", err)
	}
}
