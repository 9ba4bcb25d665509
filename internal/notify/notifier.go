// Package notify sends fire-and-forget HTTP notifications for loop events.
// The primary use case is ntfy.sh, but any HTTP webhook works.
package notify

import (
	"net/http"
	"strings"
	"time"

	"github.com/LISSConsulting/bagkeeper/internal/loop"
)

// Notifier posts plain-text HTTP notifications for selected loop events.
type Notifier struct {
	url            string
	title          string
	onEvictFailure bool
	onError        bool
	onStop         bool
	client         *http.Client
}

// New creates a Notifier. The X-Title header is "bagkeeper", followed by the
// namespace in parentheses when one is set, so alerts from several robots
// sharing a topic can be told apart.
func New(notifURL, namespace string, onEvictFailure, onError, onStop bool) *Notifier {
	title := "bagkeeper"
	if namespace != "" {
		title = "bagkeeper (" + namespace + ")"
	}
	return &Notifier{
		url:            notifURL,
		title:          title,
		onEvictFailure: onEvictFailure,
		onError:        onError,
		onStop:         onStop,
		client:         &http.Client{Timeout: 10 * time.Second},
	}
}

// Hook is a loop.Loop.NotificationHook-compatible function. It fires
// asynchronous POSTs for events that match the configured notification flags.
// Alerts are sent with high priority.
func (n *Notifier) Hook(entry loop.LogEntry) {
	switch entry.Kind {
	case loop.LogAlert:
		if n.onEvictFailure {
			go n.post(entry.Message, "high")
		}
	case loop.LogError:
		if n.onError {
			go n.post(entry.Message, "")
		}
	case loop.LogDone, loop.LogStopped:
		if n.onStop {
			go n.post(entry.Message, "")
		}
	}
}

// post sends a plain-text POST to the configured URL. Errors are silently
// discarded so notification failures never interrupt the loop.
func (n *Notifier) post(message, priority string) {
	req, err := http.NewRequest(http.MethodPost, n.url, strings.NewReader(message))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("X-Title", n.title)
	if priority != "" {
		req.Header.Set("X-Priority", priority)
	}
	resp, err := n.client.Do(req)
	if err != nil {
		return
	}
	resp.Body.Close()
}
