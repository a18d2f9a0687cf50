// Command e2etest drives a running server through the real-time user
// journey: health, handshake, mutual swipe, live match delivery, messaging
// over HTTP and the socket, and typing relay.
//
// Usage:
//
//	go run ./cmd/e2etest -user <seeded uid> [-api http://localhost:8080] [-timeout 60s]
//
// The partner is the first candidate the server offers the given user. Exit
// code 0 if every required scenario passes, 1 otherwise.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gobwas/ws"

	"github.com/flicker/match-app/internal/models"
	"github.com/flicker/match-app/internal/protocol"
	"github.com/flicker/match-app/internal/wsclient"
)

type resultKind int

const (
	resultPass resultKind = iota
	resultFail
	resultInfo // optional, non-fatal
)

type scenarioResult struct {
	name   string
	kind   resultKind
	detail string
}

func (r scenarioResult) tag() string {
	switch r.kind {
	case resultPass:
		return "PASS"
	case resultFail:
		return "FAIL"
	default:
		return "INFO"
	}
}

func pass(name, format string, args ...interface{}) scenarioResult {
	return scenarioResult{name, resultPass, fmt.Sprintf(format, args...)}
}

func fail(name, format string, args ...interface{}) scenarioResult {
	return scenarioResult{name, resultFail, fmt.Sprintf(format, args...)}
}

func main() {
	apiBase := flag.String("api", "http://localhost:8080", "HTTP API base URL")
	userID := flag.String("user", "", "UID of a seeded user to act as")
	timeout := flag.Duration("timeout", 60*time.Second, "global test timeout")
	flag.Parse()

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "-user is required (run cmd/seeder for ids)")
		os.Exit(2)
	}

	base := strings.TrimRight(*apiBase, "/")
	wsURL := "ws" + strings.TrimPrefix(base, "http") + "/ws"
	api := newAPIClient(base)

	fmt.Println("=== flicker end-to-end ===")
	fmt.Printf("Server: %s\n\n", base)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var results []scenarioResult
	results = append(results, scenarioHealth(ctx, api))
	results = append(results, scenarioRejectAnonymous(ctx, wsURL))
	results = append(results, scenarioJourney(ctx, api, wsURL, *userID)...)

	fmt.Println()
	passed, failed, info := 0, 0, 0
	for _, r := range results {
		fmt.Printf("[%s] %s", r.tag(), r.name)
		if r.detail != "" {
			fmt.Printf(" (%s)", r.detail)
		}
		fmt.Println()

		switch r.kind {
		case resultPass:
			passed++
		case resultFail:
			failed++
		case resultInfo:
			info++
		}
	}

	fmt.Printf("\n=== Results: %d/%d passed", passed, passed+failed)
	if info > 0 {
		fmt.Printf(", %d info", info)
	}
	fmt.Println(" ===")

	if failed > 0 {
		os.Exit(1)
	}
}

func scenarioHealth(ctx context.Context, api *apiClient) scenarioResult {
	name := "Health and metrics"

	var health struct {
		Status      string `json:"status"`
		Connections int    `json:"connections"`
	}
	if err := api.get(ctx, "/health", "", &health); err != nil {
		return fail(name, "/health: %v", err)
	}

	body, err := api.raw(ctx, "/metrics")
	if err != nil {
		return fail(name, "/metrics: %v", err)
	}
	if !strings.Contains(body, "flicker_connections_active") {
		return fail(name, "/metrics: missing flicker_connections_active")
	}
	return pass(name, "status=%s connections=%d", health.Status, health.Connections)
}

func scenarioRejectAnonymous(ctx context.Context, wsURL string) scenarioResult {
	name := "Handshake without user id is rejected"

	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	conn, _, _, err := ws.Dial(dialCtx, wsURL)
	if err == nil {
		conn.Close()
		return fail(name, "upgrade succeeded")
	}
	return pass(name, "%v", err)
}

// scenarioJourney shares two connected clients across the match, message
// and typing steps.
func scenarioJourney(ctx context.Context, api *apiClient, wsURL, actor string) []scenarioResult {
	matchName := "Mutual swipe delivers newMatch to both"
	msgName := "Messages reach the peer live"
	typingName := "Typing indicator is relayed"
	historyName := "Conversation lists messages in order"
	skipAll := func(r scenarioResult) []scenarioResult {
		return []scenarioResult{r, fail(msgName, "skipped"), fail(typingName, "skipped"), fail(historyName, "skipped")}
	}

	var candidates struct {
		Users []models.User `json:"users"`
	}
	if err := api.get(ctx, "/api/users/profiles?limit=1", actor, &candidates); err != nil {
		return skipAll(fail(matchName, "candidates: %v", err))
	}
	if len(candidates.Users) == 0 {
		return skipAll(fail(matchName, "no candidates left for %s; reseed", actor))
	}
	partner := candidates.Users[0].ID

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	a, err := wsclient.Dial(dialCtx, wsURL, actor)
	if err != nil {
		return skipAll(fail(matchName, "connect %s: %v", actor, err))
	}
	defer a.Close()
	b, err := wsclient.Dial(dialCtx, wsURL, partner)
	if err != nil {
		return skipAll(fail(matchName, "connect %s: %v", partner, err))
	}
	defer b.Close()
	for _, c := range []*wsclient.Client{a, b} {
		if _, err := c.Expect(dialCtx, protocol.TypeConnected); err != nil {
			return skipAll(fail(matchName, "handshake %s: %v", c.UserID(), err))
		}
	}

	results := []scenarioResult{checkMatch(ctx, api, a, b)}
	results = append(results, checkMessages(ctx, api, a, b))
	results = append(results, checkTyping(ctx, a, b))
	results = append(results, checkHistory(ctx, api, a.UserID(), b.UserID()))
	return results
}

func checkMatch(ctx context.Context, api *apiClient, a, b *wsclient.Client) scenarioResult {
	name := "Mutual swipe delivers newMatch to both"

	var first, second struct {
		Matched bool `json:"matched"`
	}
	if err := api.post(ctx, "/api/swipes/right/"+b.UserID(), a.UserID(), nil, &first); err != nil {
		return fail(name, "first swipe: %v", err)
	}
	if first.Matched {
		return fail(name, "first swipe reported a match")
	}
	if err := a.ExpectNone(protocol.TypeNewMatch, 300*time.Millisecond); err != nil {
		return fail(name, "%v", err)
	}

	if err := api.post(ctx, "/api/swipes/right/"+a.UserID(), b.UserID(), nil, &second); err != nil {
		return fail(name, "second swipe: %v", err)
	}
	if !second.Matched {
		return fail(name, "second swipe did not match")
	}

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for _, pair := range [][2]*wsclient.Client{{a, b}, {b, a}} {
		f, err := pair[0].Expect(waitCtx, protocol.TypeNewMatch)
		if err != nil {
			return fail(name, "%s: %v", pair[0].UserID(), err)
		}
		var s models.Summary
		if err := f.Decode(&s); err != nil || s.ID != pair[1].UserID() {
			return fail(name, "%s got counterpart %q", pair[0].UserID(), s.ID)
		}
	}
	return pass(name, "%s <-> %s", short(a.UserID()), short(b.UserID()))
}

func checkMessages(ctx context.Context, api *apiClient, a, b *wsclient.Client) scenarioResult {
	name := "Messages reach the peer live"
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	body := map[string]string{"receiverId": b.UserID(), "content": "hello from the e2e runner"}
	if err := api.post(ctx, "/api/messages", a.UserID(), body, nil); err != nil {
		return fail(name, "http send: %v", err)
	}
	if err := expectMessage(waitCtx, b, protocol.TypeNewMessage, body["content"]); err != nil {
		return fail(name, "http send: %v", err)
	}

	reply := "reply over the socket"
	if err := b.Send(protocol.SendMessageMsg{Type: protocol.TypeSendMessage, ReceiverID: a.UserID(), Content: reply}); err != nil {
		return fail(name, "socket send: %v", err)
	}
	if err := expectMessage(waitCtx, b, protocol.TypeSent, reply); err != nil {
		return fail(name, "socket ack: %v", err)
	}
	if err := expectMessage(waitCtx, a, protocol.TypeNewMessage, reply); err != nil {
		return fail(name, "socket send: %v", err)
	}
	return pass(name, "http and socket")
}

func expectMessage(ctx context.Context, c *wsclient.Client, frameType, content string) error {
	f, err := c.Expect(ctx, frameType)
	if err != nil {
		return err
	}
	var m struct {
		Message models.Message `json:"message"`
	}
	if err := f.Decode(&m); err != nil {
		return err
	}
	if m.Message.Content != content {
		return fmt.Errorf("got content %q", m.Message.Content)
	}
	return nil
}

func checkTyping(ctx context.Context, a, b *wsclient.Client) scenarioResult {
	name := "Typing indicator is relayed"
	if err := a.Send(protocol.TypingMsg{Type: protocol.TypeTyping, To: b.UserID(), IsTyping: true}); err != nil {
		return fail(name, "%v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	f, err := b.Expect(waitCtx, protocol.TypeTyping)
	if err != nil {
		return fail(name, "%v", err)
	}
	var t protocol.ServerTypingMsg
	if err := f.Decode(&t); err != nil || t.From != a.UserID() || !t.IsTyping {
		return fail(name, "unexpected frame %s", f.Raw)
	}
	return pass(name, "")
}

func checkHistory(ctx context.Context, api *apiClient, a, b string) scenarioResult {
	name := "Conversation lists messages in order"
	var resp struct {
		Messages []models.Message `json:"messages"`
	}
	if err := api.get(ctx, "/api/messages/"+b, a, &resp); err != nil {
		return fail(name, "%v", err)
	}
	if len(resp.Messages) < 2 {
		return fail(name, "got %d messages", len(resp.Messages))
	}
	for i := 1; i < len(resp.Messages); i++ {
		if resp.Messages[i].CreatedAt.Before(resp.Messages[i-1].CreatedAt) {
			return fail(name, "message %d is older than its predecessor", i)
		}
	}
	return pass(name, "%d messages", len(resp.Messages))
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
