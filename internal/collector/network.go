package collector

import (
	"context"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// NetworkEventKind distinguishes the network lifecycle stages we buffer.
type NetworkEventKind string

const (
	NetworkRequest  NetworkEventKind = "request"
	NetworkResponse NetworkEventKind = "response"
	NetworkFinished NetworkEventKind = "finished"
	NetworkFailed   NetworkEventKind = "failed"
)

// NetworkEvent is one buffered network lifecycle event.
type NetworkEvent struct {
	Kind      NetworkEventKind `json:"kind"`
	RequestID string           `json:"request_id"`
	Method    string           `json:"method,omitempty"`
	URL       string           `json:"url,omitempty"`
	Status    int              `json:"status,omitempty"`
	ErrorText string           `json:"error_text,omitempty"`
	// NavigationRequest marks the main-frame document request that starts a
	// navigation. It anchors the retention policy below.
	NavigationRequest bool      `json:"navigation_request,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}

// NewNetwork builds a collector of network events. Unlike the default
// policy, a main-frame navigation does not clear the buffer: the request that
// triggered the navigation is observed before the navigated event fires, so
// entries from that request onward belong to the new document and must be
// kept. Everything strictly before the last navigation request is discarded.
func NewNetwork() *Collector[NetworkEvent] {
	return New[NetworkEvent](networkListeners, RetainFromLastNavigationRequest)
}

// RetainFromLastNavigationRequest keeps the buffer from the last main-frame
// navigation request (inclusive) through the end. With no navigation request
// buffered, it clears.
func RetainFromLastNavigationRequest(buf *PageBuffer[NetworkEvent]) {
	buf.TrimBeforeLastMatch(func(ev NetworkEvent) bool {
		return ev.Kind == NetworkRequest && ev.NavigationRequest
	})
}

func networkListeners(ctx context.Context, page *rod.Page, buf *PageBuffer[NetworkEvent]) {
	mainFrame := page.FrameID

	wait := page.Context(ctx).EachEvent(
		func(ev *proto.NetworkRequestWillBeSent) {
			buf.Append(NetworkEvent{
				Kind:              NetworkRequest,
				RequestID:         string(ev.RequestID),
				Method:            ev.Request.Method,
				URL:               ev.Request.URL,
				NavigationRequest: isNavigationRequest(ev, mainFrame),
				Timestamp:         time.Now(),
			})
		},
		func(ev *proto.NetworkResponseReceived) {
			buf.Append(NetworkEvent{
				Kind:      NetworkResponse,
				RequestID: string(ev.RequestID),
				URL:       ev.Response.URL,
				Status:    ev.Response.Status,
				Timestamp: time.Now(),
			})
		},
		func(ev *proto.NetworkLoadingFinished) {
			buf.Append(NetworkEvent{
				Kind:      NetworkFinished,
				RequestID: string(ev.RequestID),
				Timestamp: time.Now(),
			})
		},
		func(ev *proto.NetworkLoadingFailed) {
			buf.Append(NetworkEvent{
				Kind:      NetworkFailed,
				RequestID: string(ev.RequestID),
				ErrorText: ev.ErrorText,
				Timestamp: time.Now(),
			})
		},
	)
	go wait()
}

// isNavigationRequest reports whether the request is the document request of
// a main-frame navigation: its RequestID doubles as the LoaderID and it
// targets the page's top frame.
func isNavigationRequest(ev *proto.NetworkRequestWillBeSent, mainFrame proto.PageFrameID) bool {
	return string(ev.RequestID) == string(ev.LoaderID) &&
		ev.Type == proto.NetworkResourceTypeDocument &&
		ev.FrameID == mainFrame
}
