package mcp

import (
	"testing"

	"chromepilot-mcp-server/internal/collector"
)

func TestFormatNetworkEvent(t *testing.T) {
	tests := []struct {
		name string
		ev   collector.NetworkEvent
		want string
	}{
		{
			"request",
			collector.NetworkEvent{Kind: collector.NetworkRequest, Method: "GET", URL: "https://example.com/api"},
			"-> GET https://example.com/api",
		},
		{
			"navigation request",
			collector.NetworkEvent{Kind: collector.NetworkRequest, Method: "GET", URL: "https://example.com", NavigationRequest: true},
			"-> GET https://example.com [navigation]",
		},
		{
			"response",
			collector.NetworkEvent{Kind: collector.NetworkResponse, Status: 204, URL: "https://example.com/api"},
			"<- 204 https://example.com/api",
		},
		{
			"finished",
			collector.NetworkEvent{Kind: collector.NetworkFinished, RequestID: "req-7"},
			"ok req-7",
		},
		{
			"failed",
			collector.NetworkEvent{Kind: collector.NetworkFailed, RequestID: "req-9", ErrorText: "net::ERR_ABORTED"},
			"xx req-9 net::ERR_ABORTED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatNetworkEvent(tt.ev); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

// Every kind the collector can buffer must render as a distinct line, not
// fall through to the unknown form.
func TestFormatNetworkEventCoversAllKinds(t *testing.T) {
	kinds := []collector.NetworkEventKind{
		collector.NetworkRequest,
		collector.NetworkResponse,
		collector.NetworkFinished,
		collector.NetworkFailed,
	}
	for _, kind := range kinds {
		line := formatNetworkEvent(collector.NetworkEvent{Kind: kind, RequestID: "r"})
		if len(line) >= 2 && line[:2] == "??" {
			t.Errorf("kind %q rendered as unknown: %q", kind, line)
		}
	}
}
