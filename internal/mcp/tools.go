package mcp

import (
	"context"
	"fmt"

	"chromepilot-mcp-server/internal/browser"
	"chromepilot-mcp-server/internal/collector"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

type ListPagesTool struct{}

func (t *ListPagesTool) Name() string { return "list_pages" }
func (t *ListPagesTool) Description() string {
	return `List all open pages (tabs) in the browser.

Returns each page's index and URL. The selected page is marked; all
page-scoped tools act on the selected page. Use select_page to switch.`
}
func (t *ListPagesTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}
func (t *ListPagesTool) Handle(_ context.Context, _ map[string]interface{}, resp *Response, _ *browser.Context) error {
	resp.SetIncludePages()
	return nil
}

type NewPageTool struct{}

func (t *NewPageTool) Name() string { return "new_page" }
func (t *NewPageTool) Description() string {
	return `Open a new page (tab) at the given URL and select it.

The new page becomes the target of subsequent page-scoped tools.`
}
func (t *NewPageTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"url": map[string]interface{}{
				"type":        "string",
				"description": "URL to open in the new page",
			},
		},
		"required": []string{"url"},
	}
}
func (t *NewPageTool) Handle(_ context.Context, args map[string]interface{}, resp *Response, tc *browser.Context) error {
	url := getStringArg(args, "url")
	if url == "" {
		return fmt.Errorf("url is required")
	}
	if _, err := tc.NewPage(url); err != nil {
		return err
	}
	resp.Appendf("Opened and selected new page at %s", url)
	resp.SetIncludePages()
	return nil
}

type SelectPageTool struct{}

func (t *SelectPageTool) Name() string { return "select_page" }
func (t *SelectPageTool) Description() string {
	return `Select the page at the given index as the target of page-scoped tools.

Use list_pages to see the indices.`
}
func (t *SelectPageTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"index": map[string]interface{}{
				"type":        "integer",
				"description": "Zero-based page index from list_pages",
			},
		},
		"required": []string{"index"},
	}
}
func (t *SelectPageTool) Handle(_ context.Context, args map[string]interface{}, resp *Response, tc *browser.Context) error {
	idx := getIntArg(args, "index", -1)
	if idx < 0 {
		return fmt.Errorf("index is required")
	}
	if _, err := tc.SelectPage(idx); err != nil {
		return err
	}
	resp.Appendf("Selected page %d", idx)
	resp.SetIncludePages()
	return nil
}

type ClosePageTool struct{}

func (t *ClosePageTool) Name() string { return "close_page" }
func (t *ClosePageTool) Description() string {
	return `Close the page at the given index.

The last remaining page is not closed; it is navigated to about:blank so the
browser keeps one target alive.`
}
func (t *ClosePageTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"index": map[string]interface{}{
				"type":        "integer",
				"description": "Zero-based page index from list_pages",
			},
		},
		"required": []string{"index"},
	}
}
func (t *ClosePageTool) Handle(_ context.Context, args map[string]interface{}, resp *Response, tc *browser.Context) error {
	idx := getIntArg(args, "index", -1)
	if idx < 0 {
		return fmt.Errorf("index is required")
	}
	if err := tc.ClosePage(idx); err != nil {
		return err
	}
	resp.Appendf("Closed page %d", idx)
	resp.SetIncludePages()
	return nil
}

type NavigatePageTool struct{}

func (t *NavigatePageTool) Name() string { return "navigate_page" }
func (t *NavigatePageTool) Description() string {
	return `Navigate the selected page to a URL and wait for the load event.

Console messages and network requests from the previous document are trimmed
per the collector policy, so list_console_messages and list_network_requests
reflect the new document afterwards.`
}
func (t *NavigatePageTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"url": map[string]interface{}{
				"type":        "string",
				"description": "URL to navigate to",
			},
		},
		"required": []string{"url"},
	}
}
func (t *NavigatePageTool) Handle(_ context.Context, args map[string]interface{}, resp *Response, tc *browser.Context) error {
	url := getStringArg(args, "url")
	if url == "" {
		return fmt.Errorf("url is required")
	}
	page, err := tc.Page()
	if err != nil {
		return err
	}

	timeout := tc.NavigationTimeout()
	if err := page.Timeout(timeout).Navigate(url); err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}
	if err := page.Timeout(timeout).WaitLoad(); err != nil {
		return fmt.Errorf("waiting for %s to load: %w", url, err)
	}

	resp.Appendf("Navigated to %s", url)
	resp.SetIncludePages()
	return nil
}

type ScreenshotTool struct{}

func (t *ScreenshotTool) Name() string { return "screenshot" }
func (t *ScreenshotTool) Description() string {
	return `Capture a screenshot of the selected page.

Returns the image as a content block. Set full_page to capture beyond the
viewport; format is png (default) or jpeg.`
}
func (t *ScreenshotTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"full_page": map[string]interface{}{
				"type":        "boolean",
				"description": "Capture the full scrollable page instead of the viewport",
			},
			"format": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"png", "jpeg"},
				"description": "Image format (default png)",
			},
		},
	}
}
func (t *ScreenshotTool) Handle(_ context.Context, args map[string]interface{}, resp *Response, tc *browser.Context) error {
	page, err := tc.Page()
	if err != nil {
		return err
	}

	format := proto.PageCaptureScreenshotFormatPng
	mimeType := "image/png"
	if getStringArg(args, "format") == "jpeg" {
		format = proto.PageCaptureScreenshotFormatJpeg
		mimeType = "image/jpeg"
	}

	data, err := page.Screenshot(getBoolArg(args, "full_page", false), &proto.PageCaptureScreenshot{
		Format: format,
	})
	if err != nil {
		return fmt.Errorf("capturing screenshot: %w", err)
	}

	resp.Appendf("Captured %s screenshot (%d bytes)", mimeType, len(data))
	resp.AttachImage(data, mimeType)
	return nil
}

type EvaluateScriptTool struct{}

func (t *EvaluateScriptTool) Name() string { return "evaluate_script" }
func (t *EvaluateScriptTool) Description() string {
	return `Evaluate a JavaScript function on the selected page.

The function parameter must be a function expression, e.g. "() =>
document.title". The awaited return value is serialized to JSON.`
}
func (t *EvaluateScriptTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"function": map[string]interface{}{
				"type":        "string",
				"description": "JavaScript function expression to evaluate",
			},
		},
		"required": []string{"function"},
	}
}
func (t *EvaluateScriptTool) Handle(_ context.Context, args map[string]interface{}, resp *Response, tc *browser.Context) error {
	fn := getStringArg(args, "function")
	if fn == "" {
		return fmt.Errorf("function is required")
	}
	page, err := tc.Page()
	if err != nil {
		return err
	}

	res, err := page.Evaluate(&rod.EvalOptions{
		JS:           fn,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return fmt.Errorf("evaluating script: %w", err)
	}

	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return fmt.Errorf("serializing script result: %w", err)
	}
	resp.AppendLine(string(raw))
	return nil
}

type ListConsoleMessagesTool struct{}

func (t *ListConsoleMessagesTool) Name() string { return "list_console_messages" }
func (t *ListConsoleMessagesTool) Description() string {
	return `List console messages collected for the selected page.

The buffer is cleared on every main-frame navigation, so only messages from
the current document appear.`
}
func (t *ListConsoleMessagesTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}
func (t *ListConsoleMessagesTool) Handle(_ context.Context, _ map[string]interface{}, resp *Response, tc *browser.Context) error {
	messages, err := tc.ConsoleMessages()
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		resp.AppendLine("No console messages for the selected page.")
		return nil
	}
	resp.Appendf("%d console messages:", len(messages))
	for _, msg := range messages {
		resp.Appendf("[%s] %s", msg.Type, msg.Text)
	}
	return nil
}

type ListNetworkRequestsTool struct{}

func (t *ListNetworkRequestsTool) Name() string { return "list_network_requests" }
func (t *ListNetworkRequestsTool) Description() string {
	return `List network activity collected for the selected page.

Entries from before the current document's navigation request are discarded;
the request that loaded the current document is the first entry.`
}
func (t *ListNetworkRequestsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}
func (t *ListNetworkRequestsTool) Handle(_ context.Context, _ map[string]interface{}, resp *Response, tc *browser.Context) error {
	events, err := tc.NetworkEvents()
	if err != nil {
		return err
	}
	if len(events) == 0 {
		resp.AppendLine("No network activity for the selected page.")
		return nil
	}
	resp.Appendf("%d network events:", len(events))
	for _, ev := range events {
		resp.AppendLine(formatNetworkEvent(ev))
	}
	return nil
}

// formatNetworkEvent renders one buffered network event as a reply line.
// Every kind the collector buffers gets a line; the reply must account for
// the whole buffer.
func formatNetworkEvent(ev collector.NetworkEvent) string {
	switch ev.Kind {
	case collector.NetworkRequest:
		marker := ""
		if ev.NavigationRequest {
			marker = " [navigation]"
		}
		return fmt.Sprintf("-> %s %s%s", ev.Method, ev.URL, marker)
	case collector.NetworkResponse:
		return fmt.Sprintf("<- %d %s", ev.Status, ev.URL)
	case collector.NetworkFinished:
		return fmt.Sprintf("ok %s", ev.RequestID)
	case collector.NetworkFailed:
		return fmt.Sprintf("xx %s %s", ev.RequestID, ev.ErrorText)
	}
	return fmt.Sprintf("?? %s %s", ev.Kind, ev.RequestID)
}
