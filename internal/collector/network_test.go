package collector

import (
	"testing"

	"github.com/go-rod/rod/lib/proto"
)

func navRequest(id, url string) NetworkEvent {
	return NetworkEvent{Kind: NetworkRequest, RequestID: id, Method: "GET", URL: url, NavigationRequest: true}
}

func subRequest(id, url string) NetworkEvent {
	return NetworkEvent{Kind: NetworkRequest, RequestID: id, Method: "GET", URL: url}
}

func TestNetworkRetentionKeepsFromLastNavigationRequest(t *testing.T) {
	buf := &PageBuffer[NetworkEvent]{}
	// A starts a navigation, B belongs to A's document, C starts the next
	// navigation before A's "navigated" event would be observed, D belongs
	// to C's document.
	buf.Append(navRequest("A", "https://one.test/"))
	buf.Append(subRequest("B", "https://one.test/app.js"))
	buf.Append(navRequest("C", "https://two.test/"))
	buf.Append(subRequest("D", "https://two.test/style.css"))

	RetainFromLastNavigationRequest(buf)

	got := buf.Snapshot()
	if len(got) != 2 {
		t.Fatalf("expected 2 retained events, got %d: %+v", len(got), got)
	}
	if got[0].RequestID != "C" || got[1].RequestID != "D" {
		t.Errorf("expected [C D], got [%s %s]", got[0].RequestID, got[1].RequestID)
	}
}

func TestNetworkRetentionClearsWithoutNavigationRequest(t *testing.T) {
	buf := &PageBuffer[NetworkEvent]{}
	buf.Append(subRequest("A", "https://one.test/app.js"))
	buf.Append(NetworkEvent{Kind: NetworkResponse, RequestID: "A", Status: 200})

	RetainFromLastNavigationRequest(buf)

	if buf.Len() != 0 {
		t.Errorf("expected cleared buffer, got %d events", buf.Len())
	}
}

func TestNetworkRetentionKeepsResponsesAfterAnchor(t *testing.T) {
	buf := &PageBuffer[NetworkEvent]{}
	buf.Append(subRequest("A", "https://one.test/x"))
	buf.Append(navRequest("B", "https://two.test/"))
	buf.Append(NetworkEvent{Kind: NetworkResponse, RequestID: "B", Status: 200})
	buf.Append(NetworkEvent{Kind: NetworkFinished, RequestID: "B"})

	RetainFromLastNavigationRequest(buf)

	got := buf.Snapshot()
	if len(got) != 3 {
		t.Fatalf("expected 3 retained events, got %d", len(got))
	}
	if got[0].RequestID != "B" || !got[0].NavigationRequest {
		t.Errorf("expected navigation request B first, got %+v", got[0])
	}
}

func TestNetworkCollectorUsesRetentionPolicy(t *testing.T) {
	c := NewNetwork()
	const id = proto.TargetTargetID("page-1")

	tp, _ := c.track(id)
	tp.buf.Append(navRequest("A", "https://one.test/"))
	tp.buf.Append(subRequest("B", "https://one.test/app.js"))
	tp.buf.Append(navRequest("C", "https://two.test/"))
	tp.buf.Append(subRequest("D", "https://two.test/style.css"))

	c.onMainFrameNavigated(id)

	got := c.Data(id)
	if len(got) != 2 || got[0].RequestID != "C" || got[1].RequestID != "D" {
		t.Errorf("after navigation commit expected [C D], got %+v", got)
	}
}

func TestIsNavigationRequest(t *testing.T) {
	const mainFrame = proto.PageFrameID("frame-main")

	tests := []struct {
		name string
		ev   *proto.NetworkRequestWillBeSent
		want bool
	}{
		{
			"main frame document",
			&proto.NetworkRequestWillBeSent{
				RequestID: "r1", LoaderID: "r1",
				Type: proto.NetworkResourceTypeDocument, FrameID: mainFrame,
			},
			true,
		},
		{
			"subresource",
			&proto.NetworkRequestWillBeSent{
				RequestID: "r2", LoaderID: "r1",
				Type: proto.NetworkResourceTypeScript, FrameID: mainFrame,
			},
			false,
		},
		{
			"iframe document",
			&proto.NetworkRequestWillBeSent{
				RequestID: "r3", LoaderID: "r3",
				Type: proto.NetworkResourceTypeDocument, FrameID: "frame-child",
			},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isNavigationRequest(tt.ev, mainFrame); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
