package coordclient

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"crfs/internal/cmrdt"
)

// fakeServer mimics just enough of the coordinator wire protocol to drive
// Client through each call: it decodes the envelope, dispatches on Type,
// and replies with a matching envelope.
func fakeServer(t *testing.T, state map[cmrdt.Hash]bool, ops map[string][]byte) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		var env envelope
		if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
			t.Fatalf("server: decode request: %v", err)
		}

		reply := envelope{
			Version:       protocolVersion,
			TransactionID: env.TransactionID,
			Reply:         true,
			Type:          env.Type,
		}

		switch env.Type {
		case "ping", "register_user", "register_fs", "enrol", "push_state":
			reply.Payload, _ = json.Marshal(replyBase{})
		case "check_user", "check_fs":
			reply.Payload, _ = json.Marshal(replyBase{})
		case "fetch_state":
			hashes := make([]cmrdt.Hash, 0, len(state))
			for h := range state {
				hashes = append(hashes, h)
			}
			reply.Payload, _ = json.Marshal(fetchStateReplyPayload{State: hashes})
		default:
			t.Fatalf("server: unexpected message type %q", env.Type)
		}

		json.NewEncoder(w).Encode(reply)
	})

	mux.HandleFunc("/operation/", func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.URL.Path, "/operation/")
		switch r.Method {
		case http.MethodGet:
			data, ok := ops[key]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Write(data)
		case http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			ops[key] = body
		}
	})

	return httptest.NewServer(mux)
}

func addrOf(srv *httptest.Server) string {
	return strings.TrimPrefix(srv.URL, "http://")
}

func TestPingSucceeds(t *testing.T) {
	srv := fakeServer(t, nil, nil)
	defer srv.Close()

	c := New(addrOf(srv))
	if err := c.Ping(); err != nil {
		t.Fatal(err)
	}
}

func TestFetchStateReturnsServerHashes(t *testing.T) {
	var h cmrdt.Hash
	h[0] = 0xab
	srv := fakeServer(t, map[cmrdt.Hash]bool{h: true}, nil)
	defer srv.Close()

	c := New(addrOf(srv))
	state, err := c.FetchState(uuid.New(), uuid.New())
	if err != nil {
		t.Fatal(err)
	}
	if !state[h] {
		t.Fatal("expected fetched state to contain the server's hash")
	}
}

func TestPushAndFetchOpRoundTrips(t *testing.T) {
	ops := make(map[string][]byte)
	srv := fakeServer(t, nil, ops)
	defer srv.Close()

	c := New(addrOf(srv))
	fsID := uuid.New()
	data := []byte(`{"Kind":1}`)
	h := cmrdt.Hash{0x11, 0x22}

	if err := c.PushOp(fsID, h, data); err != nil {
		t.Fatal(err)
	}
	got, err := c.FetchOp(fsID, h)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(data) {
		t.Fatalf("expected round-tripped bytes to match, got %q", got)
	}
}

func TestFetchOpMissingReturnsError(t *testing.T) {
	srv := fakeServer(t, nil, make(map[string][]byte))
	defer srv.Close()

	c := New(addrOf(srv))
	if _, err := c.FetchOp(uuid.New(), cmrdt.Hash{0x99}); err == nil {
		t.Fatal("expected an error for a missing operation")
	}
}
