package mcp

import (
	"encoding/base64"
	"fmt"
	"strings"

	"chromepilot-mcp-server/internal/browser"

	"github.com/mark3labs/mcp-go/mcp"
)

type imageAttachment struct {
	data     []byte
	mimeType string
}

// Response accumulates a tool call's reply: ordered text lines, optional
// image attachments, and an optional page listing rendered at finalize time.
// One fresh Response exists per call.
type Response struct {
	lines        []string
	images       []imageAttachment
	includePages bool
}

func NewResponse() *Response {
	return &Response{}
}

// AppendLine adds one line of reply text.
func (r *Response) AppendLine(line string) {
	r.lines = append(r.lines, line)
}

// Appendf adds one formatted line of reply text.
func (r *Response) Appendf(format string, args ...interface{}) {
	r.lines = append(r.lines, fmt.Sprintf(format, args...))
}

// AttachImage adds an image block to the reply.
func (r *Response) AttachImage(data []byte, mimeType string) {
	r.images = append(r.images, imageAttachment{data: data, mimeType: mimeType})
}

// SetIncludePages asks Finalize to append the current page listing, which
// tools that change the page set use to show the result.
func (r *Response) SetIncludePages() {
	r.includePages = true
}

// Lines returns the accumulated text lines.
func (r *Response) Lines() []string {
	return r.lines
}

// Finalize renders the accumulated reply into an MCP tool result. Errors
// (e.g. the browser going away while listing pages) are returned to the
// dispatch boundary, which converts them into an error-flagged reply.
func (r *Response) Finalize(tc *browser.Context) (*mcp.CallToolResult, error) {
	lines := append([]string(nil), r.lines...)

	if r.includePages && tc != nil {
		pages, err := tc.Pages()
		if err != nil {
			return nil, fmt.Errorf("listing pages: %w", err)
		}
		selected := tc.SelectedIndex()
		lines = append(lines, "", "## Pages")
		for i, page := range pages {
			info, err := page.Info()
			if err != nil {
				return nil, fmt.Errorf("page %d info: %w", i, err)
			}
			marker := ""
			if i == selected {
				marker = " [selected]"
			}
			lines = append(lines, fmt.Sprintf("%d: %s%s", i, info.URL, marker))
		}
	}

	content := []mcp.Content{mcp.NewTextContent(strings.Join(lines, "\n"))}
	for _, img := range r.images {
		encoded := base64.StdEncoding.EncodeToString(img.data)
		content = append(content, mcp.NewImageContent(encoded, img.mimeType))
	}

	return &mcp.CallToolResult{Content: content, IsError: false}, nil
}
