package publish

import (
	"encoding/json"
)

const (
	statusTopic = "status"

	// BannerExcerptLength caps the banner carried in an open-port event.
	BannerExcerptLength = 50
)

// StatusTopic returns the topic for scan lifecycle events.
func StatusTopic(prefix string) string {
	return prefix + "/" + statusTopic
}

// HostTopic returns the topic for events about one host address.
func HostTopic(prefix, addr string) string {
	return prefix + "/" + addr
}

type statusEvent struct {
	Status   string `json:"status"`
	Duration *int64 `json:"duration,omitempty"`
	Results  *int   `json:"results,omitempty"`
}

type portEvent struct {
	Port   uint16 `json:"port"`
	State  string `json:"state"`
	Banner string `json:"banner,omitempty"`
}

// Started is the payload announcing a new scan cycle.
func Started() string {
	return mustJSON(statusEvent{Status: "started"})
}

// Complete is the payload announcing a finished scan cycle, with its duration
// in seconds and the number of results held in the store.
func Complete(durationSeconds int64, results int) string {
	return mustJSON(statusEvent{Status: "complete", Duration: &durationSeconds, Results: &results})
}

// OpenPort is the payload for a port found open. At most the first
// BannerExcerptLength characters of banner are included.
func OpenPort(port uint16, banner string) string {
	if r := []rune(banner); len(r) > BannerExcerptLength {
		banner = string(r[:BannerExcerptLength])
	}
	return mustJSON(portEvent{Port: port, State: "open", Banner: banner})
}

func mustJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		// Only fixed struct shapes are marshalled here.
		panic(err)
	}
	return string(b)
}
