package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"html"
	"log"
	"math/rand"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

type call struct {
	ID        int
	IP        string
	Server    string
	Target    string
	TargetID  string
	Reason    string
	Client    string
	ClientID  string
	Reported  int64
	HandledAt int64
}

type store struct {
	mu     sync.Mutex
	calls  []call
	nextID int
}

var (
	servers = []string{"Public #1", "Public #2", "Competitive", "Surf"}
	reasons = []string{"aimbot", "wallhack", "spinbot", "mic spam", "griefing"}
	players = []string{"Alice", "Bob", "Carol", "Dave", "Eve", "Mallory"}
)

func (s *store) add(now time.Time) call {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	c := call{
		ID:       s.nextID,
		IP:       fmt.Sprintf("203.0.113.%d:27015", rand.Intn(250)+1),
		Server:   servers[rand.Intn(len(servers))],
		Target:   players[rand.Intn(len(players))],
		TargetID: fmt.Sprintf("STEAM_0:1:%d", rand.Intn(100000)),
		Reason:   reasons[rand.Intn(len(reasons))],
		Client:   players[rand.Intn(len(players))],
		ClientID: fmt.Sprintf("STEAM_0:0:%d", rand.Intn(100000)),
		Reported: now.Unix(),
	}
	s.calls = append(s.calls, c)
	return c
}

func (s *store) handleOldest(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.calls {
		if s.calls[i].HandledAt == 0 {
			s.calls[i].HandledAt = now.Unix()
			return
		}
	}
}

// firstRun returns the newest limit calls, newest first, and the total count.
func (s *store) firstRun(limit int) ([]call, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]call, 0, limit)
	for i := len(s.calls) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.calls[i])
	}
	return out, len(s.calls)
}

// since returns calls reported within the last from seconds or handled within the
// last handled seconds, oldest first.
func (s *store) since(now time.Time, from, handled int64) []call {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []call
	for _, c := range s.calls {
		if c.Reported >= now.Unix()-from || (c.HandledAt != 0 && c.HandledAt >= now.Unix()-handled) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Reported < out[j].Reported })
	return out
}

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	key := flag.String("key", "devkey", "accepted API key")
	every := flag.Duration("every", 15*time.Second, "interval between generated calls")
	failRate := flag.Float64("fail-rate", 0, "fraction of notice requests answered with HTTP 500")
	latest := flag.String("latest", "0.0.0-dev", "version served by /version.txt")
	flag.Parse()

	logger := log.New(log.Writer(), "calladmin-mock ", log.LstdFlags|log.Lmicroseconds)
	db := &store{}
	now := time.Now()
	for i := 0; i < 5; i++ {
		db.add(now.Add(time.Duration(i-5) * time.Minute))
	}
	db.handleOldest(now)

	go func() {
		ticker := time.NewTicker(*every)
		defer ticker.Stop()
		for t := range ticker.C {
			c := db.add(t)
			logger.Printf("generated call %d on %s", c.ID, c.Server)
			if rand.Intn(3) == 0 {
				db.handleOldest(t)
			}
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/notice.php", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("key") != *key {
			writeXML(w, "<CallAdmin><error>Key not allowed</error></CallAdmin>")
			return
		}
		if *failRate > 0 && rand.Float64() < *failRate {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		var b strings.Builder
		b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><CallAdmin>`)
		switch q.Get("from_type") {
		case "unixtime":
			limit, _ := strconv.Atoi(q.Get("limit"))
			if limit <= 0 {
				limit = 25
			}
			calls, total := db.firstRun(limit)
			fmt.Fprintf(&b, "<foundRows>%d</foundRows>", total)
			for _, c := range calls {
				writeCall(&b, c)
			}
		case "interval":
			from, _ := strconv.ParseInt(q.Get("from"), 10, 64)
			handled, _ := strconv.ParseInt(q.Get("handled"), 10, 64)
			for _, c := range db.since(time.Now(), from, handled) {
				writeCall(&b, c)
			}
		default:
			b.WriteString("<error>Invalid from_type</error>")
		}
		b.WriteString("</CallAdmin>")
		writeXML(w, b.String())
	})

	mux.HandleFunc("/trackers.php", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != *key {
			writeXML(w, "<CallAdmin_Trackers><error>Key not allowed</error></CallAdmin_Trackers>")
			return
		}
		writeXML(w, `<?xml version="1.0" encoding="UTF-8"?><CallAdmin_Trackers>`+
			`<singleTracker><trackerID>STEAM_0:1:100</trackerID></singleTracker>`+
			`<singleTracker><trackerID>STEAM_0:0:200</trackerID></singleTracker>`+
			`</CallAdmin_Trackers>`)
	})

	// Presence answers "pending" for the first lookup of an id, like a cold profile cache.
	var seenMu sync.Mutex
	seen := map[string]bool{}
	mux.HandleFunc("/presence", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("id")
		seenMu.Lock()
		warm := seen[id]
		seen[id] = true
		seenMu.Unlock()
		if !warm {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"name":         "Admin " + id[strings.LastIndex(id, ":")+1:],
			"relationship": "friend",
			"online":       strings.HasSuffix(id, "100"),
		})
	})

	mux.HandleFunc("/version.txt", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprintf(w, "{%s}", *latest)
	})

	srv := &http.Server{
		Addr:    *addr,
		Handler: logRequests(logger, mux),
	}

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

func writeCall(b *strings.Builder, c call) {
	handled := 0
	if c.HandledAt != 0 {
		handled = 1
	}
	fmt.Fprintf(b, "<singleReport><callID>%d</callID><fullIP>%s</fullIP><serverName>%s</serverName>"+
		"<targetName>%s</targetName><targetID>%s</targetID><targetReason>%s</targetReason>"+
		"<clientName>%s</clientName><clientID>%s</clientID><reportedAt>%d</reportedAt>"+
		"<callHandled>%d</callHandled></singleReport>",
		c.ID, c.IP, html.EscapeString(c.Server), html.EscapeString(c.Target), c.TargetID,
		html.EscapeString(c.Reason), html.EscapeString(c.Client), c.ClientID, c.Reported, handled)
}

func writeXML(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	_, _ = w.Write([]byte(body))
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
