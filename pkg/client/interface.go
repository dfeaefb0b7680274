package client

import (
	"context"
	"regexp"
	"strings"
)

// DefaultSystemPrompt is sent ahead of every question
const DefaultSystemPrompt = "You are a helpful assistant who can analyze the given images in detail and answer the question appropriately."

// Request is one question about one image
type Request struct {
	Model    string
	System   string
	Prompt   string
	ImageB64 string
}

// VisionClient answers questions about images
type VisionClient interface {
	Chat(ctx context.Context, req Request) (string, error)
	SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error)
	Ping(ctx context.Context) error
	Name() string
}

var (
	reThink = regexp.MustCompile(`(?s)<think>.*?</think>`)
	// an assistant turn marker on its own line or followed by a colon
	reTurn  = regexp.MustCompile(`(?m)^[ \t]*(?:<\|im_start\|>)?assistant[ \t]*(?::|$)`)
)

// CleanAnswer strips chat template residue from model output: everything up
// to the last assistant turn marker, reasoning blocks and surrounding code
// fences. The word "assistant" inside the answer itself is left alone.
func CleanAnswer(raw string) string {
	raw = reThink.ReplaceAllString(raw, "")
	if m := reTurn.FindAllStringIndex(raw, -1); len(m) > 0 {
		raw = raw[m[len(m)-1][1]:]
	}
	raw = strings.ReplaceAll(raw, "<|im_end|>", "")
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		} else {
			raw = strings.TrimPrefix(raw, "```")
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimLeft(raw, ":\n ")
	return strings.TrimSpace(raw)
}
