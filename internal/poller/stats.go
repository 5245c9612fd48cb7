package poller

import (
	"strconv"

	"github.com/danmuck/rosctl/internal/protocol"
)

// UnknownInterface names rows that carry no name attribute.
const UnknownInterface = "Unknown"

// CounterKeys are the interface attributes exported as numeric counters.
var CounterKeys = []string{
	"rx-byte", "tx-byte",
	"rx-packet", "tx-packet",
	"rx-drop", "tx-drop",
	"rx-error", "tx-error",
	"tx-queue-drop",
	"fp-rx-byte", "fp-tx-byte",
	"fp-rx-packet", "fp-tx-packet",
}

// InterfaceStats is one !re row of /interface/print =stats=.
type InterfaceStats struct {
	Name     string            `json:"name"`
	Pairs    map[string]string `json:"pairs"`
	Counters map[string]uint64 `json:"counters"`
}

// ParseStats keeps the !re rows of a response and collects their valued
// attributes. Flags and the .id attribute are dropped.
func ParseStats(sentences []protocol.Sentence) []InterfaceStats {
	out := make([]InterfaceStats, 0, len(sentences))
	for _, s := range sentences {
		if reply, ok := s.Reply(); !ok || reply != protocol.ReplyRe {
			continue
		}
		pairs := make(map[string]string)
		for _, w := range s.Words {
			if w.Kind != protocol.KindAttribute || !w.HasValue || w.Name == ".id" {
				continue
			}
			pairs[w.Name] = w.Value
		}
		name := pairs["name"]
		if name == "" {
			name = UnknownInterface
		}
		counters := make(map[string]uint64)
		for _, key := range CounterKeys {
			v, ok := pairs[key]
			if !ok {
				continue
			}
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				continue
			}
			counters[key] = n
		}
		out = append(out, InterfaceStats{Name: name, Pairs: pairs, Counters: counters})
	}
	return out
}
