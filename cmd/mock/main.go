// mock 本地模拟验证码打码平台（in.php / res.php），用于不花钱地联调登录流程。
package main

import (
	crand "crypto/rand"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"
)

type job struct {
	polls int
}

type vendor struct {
	apiKey     string
	pending    int
	unsolvable bool

	mu   sync.Mutex
	jobs map[string]*job
}

func main() {
	addr := flag.String("addr", ":8090", "listen address")
	apiKey := flag.String("key", "", "accepted api key, empty accepts any")
	pending := flag.Int("pending", 2, "polls answered CAPCHA_NOT_READY before solving")
	unsolvable := flag.Bool("unsolvable", false, "answer ERROR_CAPTCHA_UNSOLVABLE instead of a token")
	flag.Parse()

	v := &vendor{apiKey: *apiKey, pending: *pending, unsolvable: *unsolvable, jobs: make(map[string]*job)}
	srv := &http.Server{
		Addr:              *addr,
		Handler:           v.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("mock captcha vendor listening on %s", *addr)
	log.Fatal(srv.ListenAndServe())
}

func (v *vendor) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/mock/health", func(w http.ResponseWriter, _ *http.Request) {
		reply(w, map[string]any{"ok": true})
	})
	mux.HandleFunc("/in.php", v.handleSubmit)
	mux.HandleFunc("/res.php", v.handlePoll)
	return mux
}

func (v *vendor) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		reply(w, map[string]any{"status": 0, "request": "ERROR_WRONG_REQUEST"})
		return
	}
	if v.apiKey != "" && r.PostForm.Get("key") != v.apiKey {
		reply(w, map[string]any{"status": 0, "request": "ERROR_WRONG_USER_KEY"})
		return
	}
	if strings.TrimSpace(r.PostForm.Get("googlekey")) == "" || strings.TrimSpace(r.PostForm.Get("pageurl")) == "" {
		reply(w, map[string]any{"status": 0, "request": "ERROR_GOOGLEKEY"})
		return
	}

	id := randString(10)
	v.mu.Lock()
	v.jobs[id] = &job{}
	v.mu.Unlock()
	log.Printf("job %s submitted for %s", id, r.PostForm.Get("pageurl"))
	reply(w, map[string]any{"status": 1, "request": id})
}

func (v *vendor) handlePoll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	if v.apiKey != "" && q.Get("key") != v.apiKey {
		reply(w, map[string]any{"status": 0, "request": "ERROR_WRONG_USER_KEY"})
		return
	}

	v.mu.Lock()
	j, ok := v.jobs[q.Get("id")]
	if ok {
		j.polls++
	}
	v.mu.Unlock()

	switch {
	case !ok:
		reply(w, map[string]any{"status": 0, "request": "ERROR_WRONG_CAPTCHA_ID"})
	case j.polls <= v.pending:
		reply(w, map[string]any{"status": 0, "request": "CAPCHA_NOT_READY"})
	case v.unsolvable:
		reply(w, map[string]any{"status": 0, "request": "ERROR_CAPTCHA_UNSOLVABLE"})
	default:
		reply(w, map[string]any{"status": 1, "request": "03AGdBq2" + randString(40)})
	}
}

func reply(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func randString(n int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz0123456789"
	if n <= 0 {
		return ""
	}
	raw := make([]byte, n)
	_, _ = crand.Read(raw)
	out := make([]byte, n)
	for i := range out {
		out[i] = letters[int(raw[i])%len(letters)]
	}
	return string(out)
}
