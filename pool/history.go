package pool

import (
	"encoding/json"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// historyEntry is one abbreviated transaction-history line (spec §3
// "Transaction history"): abbreviated address form, symbols, human-scaled
// amounts.
type historyEntry struct {
	Time      time.Time `json:"time"`
	Kind      string    `json:"kind"`
	User      string    `json:"user"`
	TokenIn   string    `json:"tokenIn,omitempty"`
	TokenOut  string    `json:"tokenOut,omitempty"`
	AmountIn  string    `json:"amountIn,omitempty"`
	AmountOut string    `json:"amountOut,omitempty"`
	TxHash    string    `json:"txHash,omitempty"`
	Note      string    `json:"note,omitempty"`
}

const historyCap = 1000

// history is an in-memory capped ring buffer mirrored to a rotated log file,
// so operators can tail recent activity on disk while handlers read the
// capped in-memory tail cheaply (spec §3: "capped at the last 1,000 entries").
type history struct {
	mu      sync.Mutex
	entries []historyEntry
	next    int
	full    bool
	file    *lumberjack.Logger
}

func newHistory(logPath string) *history {
	h := &history{entries: make([]historyEntry, historyCap)}
	if logPath != "" {
		h.file = &lumberjack.Logger{
			Filename:   logPath,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
	}
	return h
}

func (h *history) record(entry historyEntry) {
	h.mu.Lock()
	h.entries[h.next] = entry
	h.next = (h.next + 1) % historyCap
	if h.next == 0 {
		h.full = true
	}
	h.mu.Unlock()

	if h.file == nil {
		return
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return
	}
	line = append(line, '\n')
	_, _ = h.file.Write(line)
}

// recent returns up to n of the most recently recorded entries, newest last.
func (h *history) recent(n int) []historyEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	total := h.next
	if h.full {
		total = historyCap
	}
	if n <= 0 || n > total {
		n = total
	}
	out := make([]historyEntry, 0, n)
	start := h.next - n
	if h.full {
		for i := 0; i < n; i++ {
			idx := ((start+i)%historyCap + historyCap) % historyCap
			out = append(out, h.entries[idx])
		}
		return out
	}
	for i := h.next - n; i < h.next; i++ {
		out = append(out, h.entries[i])
	}
	return out
}

func (h *history) close() error {
	if h.file == nil {
		return nil
	}
	return h.file.Close()
}
