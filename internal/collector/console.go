package collector

import (
	"context"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// ConsoleMessage is one console API call observed on a page.
type ConsoleMessage struct {
	Type      string    `json:"type"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// NewConsole builds a collector of console messages with the default
// clear-on-navigation policy: messages logged by the previous document are
// dropped when the main frame commits a navigation.
func NewConsole() *Collector[ConsoleMessage] {
	return New[ConsoleMessage](consoleListeners, nil)
}

func consoleListeners(ctx context.Context, page *rod.Page, buf *PageBuffer[ConsoleMessage]) {
	wait := page.Context(ctx).EachEvent(func(ev *proto.RuntimeConsoleAPICalled) {
		buf.Append(ConsoleMessage{
			Type:      string(ev.Type),
			Text:      stringifyConsoleArgs(ev.Args),
			Timestamp: time.Now(),
		})
	})
	go wait()
}

func stringifyConsoleArgs(args []*proto.RuntimeRemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		if a == nil {
			continue
		}
		if !a.Value.Nil() {
			parts = append(parts, a.Value.String())
			continue
		}
		if a.Description != "" {
			parts = append(parts, a.Description)
		}
	}
	return strings.Join(parts, " ")
}
