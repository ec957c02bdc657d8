package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/tensai/internal/protocol"
)

type options struct {
	baseURL        string
	turns          int
	interTurnDelay time.Duration
	turnTimeout    time.Duration
	texts          []string
	name           string
	phone          string
	keepSession    bool
	verbose        bool
}

var defaultUtterances = []string{
	"Hi, what do you offer?",
	"My name is Perf Replay.",
	"You can reach me at 555-0100.",
	"Our main problem is slow onboarding.",
}

type report struct {
	SessionID string
	Latencies []time.Duration
}

func main() {
	cfg, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "perfchat: %v\n", err)
		os.Exit(2)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Minute)
	defer cancel()
	rep, err := run(ctx, cfg, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "perfchat: %v\n", err)
		os.Exit(1)
	}
	printSummary(os.Stdout, rep)
}

func parseFlags(fs *flag.FlagSet, args []string) (options, error) {
	var cfg options
	var textsRaw string
	var interTurnMS, turnTimeoutMS int

	fs.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8080", "tensai base URL")
	fs.IntVar(&cfg.turns, "turns", 8, "number of turns to replay")
	fs.IntVar(&interTurnMS, "inter-turn-ms", 200, "delay between turns in milliseconds")
	fs.IntVar(&turnTimeoutMS, "turn-timeout-ms", 60000, "timeout waiting for each chat_reply in milliseconds")
	fs.StringVar(&textsRaw, "texts", "", "utterances separated by '|' (optional)")
	fs.StringVar(&cfg.name, "name", "", "name hint sent with the first turn")
	fs.StringVar(&cfg.phone, "phone", "", "phone hint sent with the first turn")
	fs.BoolVar(&cfg.keepSession, "keep-session", false, "do not delete the synthetic session afterwards")
	fs.BoolVar(&cfg.verbose, "verbose", true, "print replay progress")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if cfg.turns <= 0 {
		return options{}, fmt.Errorf("turns must be > 0")
	}
	if interTurnMS < 0 {
		interTurnMS = 0
	}
	if turnTimeoutMS < 1000 {
		turnTimeoutMS = 1000
	}
	cfg.interTurnDelay = time.Duration(interTurnMS) * time.Millisecond
	cfg.turnTimeout = time.Duration(turnTimeoutMS) * time.Millisecond

	if strings.TrimSpace(textsRaw) == "" {
		cfg.texts = append([]string(nil), defaultUtterances...)
	} else {
		for _, part := range strings.Split(textsRaw, "|") {
			if t := strings.TrimSpace(part); t != "" {
				cfg.texts = append(cfg.texts, t)
			}
		}
		if len(cfg.texts) == 0 {
			return options{}, fmt.Errorf("texts produced no non-empty utterances")
		}
	}
	return cfg, nil
}

func run(ctx context.Context, cfg options, out io.Writer) (report, error) {
	wsURL, err := wsURLFor(cfg.baseURL)
	if err != nil {
		return report{}, fmt.Errorf("build ws URL: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return report{}, fmt.Errorf("open websocket: %w", err)
	}
	defer conn.Close()

	var rep report
	defer func() {
		if !cfg.keepSession && rep.SessionID != "" {
			_ = deleteSession(context.Background(), cfg.baseURL, rep.SessionID)
		}
	}()

	for i := 0; i < cfg.turns; i++ {
		text := cfg.texts[i%len(cfg.texts)]
		turn := protocol.ChatTurn{
			Type:      protocol.TypeChatTurn,
			RequestID: fmt.Sprintf("perf-%d", i+1),
			SessionID: rep.SessionID,
			UserQuery: text,
		}
		if i == 0 {
			turn.Name = cfg.name
			turn.Phone = cfg.phone
		}

		start := time.Now()
		if err := conn.WriteJSON(turn); err != nil {
			return rep, fmt.Errorf("turn %d send: %w", i+1, err)
		}
		reply, err := awaitReply(conn, turn.RequestID, cfg.turnTimeout)
		if err != nil {
			return rep, fmt.Errorf("turn %d await chat_reply: %w", i+1, err)
		}
		elapsed := time.Since(start)
		rep.SessionID = reply.SessionID
		rep.Latencies = append(rep.Latencies, elapsed)
		if cfg.verbose {
			fmt.Fprintf(out, "perfchat: turn %d/%d %dms text=%q reply=%q\n", i+1, cfg.turns, elapsed.Milliseconds(), text, reply.Reply)
		}
		if cfg.interTurnDelay > 0 && i < cfg.turns-1 {
			time.Sleep(cfg.interTurnDelay)
		}
	}
	return rep, nil
}

// awaitReply reads frames until the reply for requestID arrives. Server
// error frames for the same request abort the replay.
func awaitReply(conn *websocket.Conn, requestID string, timeout time.Duration) (protocol.ChatReply, error) {
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	defer conn.SetReadDeadline(time.Time{})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return protocol.ChatReply{}, err
		}
		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		switch env.Type {
		case protocol.TypeChatReply:
			var reply protocol.ChatReply
			if err := json.Unmarshal(data, &reply); err != nil {
				return protocol.ChatReply{}, err
			}
			if reply.RequestID == requestID {
				return reply, nil
			}
		case protocol.TypeErrorEvent:
			var ev protocol.ErrorEvent
			if err := json.Unmarshal(data, &ev); err != nil {
				return protocol.ChatReply{}, err
			}
			if ev.RequestID == "" || ev.RequestID == requestID {
				return protocol.ChatReply{}, fmt.Errorf("server error %s: %s", ev.Code, ev.Detail)
			}
		}
	}
}

func wsURLFor(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", fmt.Errorf("base-url host is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/chat/ws"
	return u.String(), nil
}

func deleteSession(ctx context.Context, baseURL, sessionID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, baseURL+"/v1/sessions/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: 10 * time.Second}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 1<<20))
	return nil
}

func printSummary(w io.Writer, rep report) {
	if len(rep.Latencies) == 0 {
		fmt.Fprintln(w, "perfchat: no turns completed")
		return
	}
	fmt.Fprintf(w, "perfchat: session=%s turns=%d p50=%dms p95=%dms max=%dms\n",
		rep.SessionID,
		len(rep.Latencies),
		percentile(rep.Latencies, 0.50).Milliseconds(),
		percentile(rep.Latencies, 0.95).Milliseconds(),
		percentile(rep.Latencies, 1).Milliseconds(),
	)
}

// percentile uses nearest-rank on a sorted copy.
func percentile(samples []time.Duration, q float64) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(q*float64(len(sorted))+0.999999) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
