// Package coordclient implements the HTTP coordinator protocol consumed
// by internal/sync: a versioned, transaction-tagged message/reply
// exchange for account and filesystem bootstrap, plus hash-set exchange
// and per-operation blob transfer.
package coordclient

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"crfs/internal/cmrdt"
	"crfs/internal/crfserr"
)

const protocolVersion = "0.0.1"

// transactionID draws a fresh random transaction identifier for one
// request/reply pair.
func transactionID() uint64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(fmt.Sprintf("coordclient: failed to read randomness: %v", err))
	}
	return binary.BigEndian.Uint64(buf[:])
}

// envelope is the wire shape shared by every request and reply: version,
// transaction id, a reply flag, and a tagged payload. Go has no
// adjacently-tagged-enum sugar, so the tag and payload are two explicit
// fields of the envelope itself (Type and a raw Payload), rather than a
// flattened enum as in the source's
// #[serde(tag = "type", content = "payload")] plus #[serde(flatten)].
type envelope struct {
	Version       string          `json:"version"`
	TransactionID uint64          `json:"transaction_id"`
	Reply         bool            `json:"reply"`
	Type          string          `json:"type"`
	Payload       json.RawMessage `json:"payload"`
}

type replyBase struct {
	Code   crfserr.Code `json:"code"`
	ErrMsg string       `json:"err_msg"`
}

func (r replyBase) asError() error {
	if r.Code == crfserr.CodeOK {
		return nil
	}
	return &crfserr.Error{Code: r.Code, Msg: r.ErrMsg}
}

type registerUserPayload struct {
	UserUUID    uuid.UUID `json:"user_uuid"`
	DisplayName string    `json:"display_name"`
}

type checkUserPayload struct {
	UserUUID uuid.UUID `json:"user_uuid"`
}

type registerFsPayload struct {
	UserUUID    uuid.UUID `json:"user_uuid"`
	FSUUID      uuid.UUID `json:"fs_uuid"`
	DisplayName string    `json:"display_name"`
	FSOpts      []string  `json:"fs_opts"`
}

type checkFsPayload struct {
	UserUUID uuid.UUID `json:"user_uuid"`
	FSUUID   uuid.UUID `json:"fs_uuid"`
}

type enrolPayload struct {
	UserUUID    uuid.UUID `json:"user_uuid"`
	FSUUID      uuid.UUID `json:"fs_uuid"`
	ReplicaUUID uuid.UUID `json:"replica_uuid"`
}

type fetchStatePayload struct {
	UserUUID uuid.UUID `json:"user_uuid"`
	FSUUID   uuid.UUID `json:"fs_uuid"`
}

type fetchStateReplyPayload struct {
	replyBase
	State []cmrdt.Hash `json:"state"`
}

type pushStatePayload struct {
	UserUUID uuid.UUID    `json:"user_uuid"`
	FSUUID   uuid.UUID    `json:"fs_uuid"`
	Ops      []cmrdt.Hash `json:"ops"`
}

// Client talks to a single coordinator server over HTTP, implementing
// internal/sync's Coordinator interface along with the account/filesystem
// bootstrap calls the "setup" command needs.
type Client struct {
	Addr string
	HTTP *http.Client
}

// New returns a Client targeting the server at addr ("host:port").
func New(addr string) *Client {
	return &Client{Addr: addr, HTTP: http.DefaultClient}
}

func (c *Client) endpoint(path string) string {
	return (&url.URL{Scheme: "http", Host: c.Addr, Path: "/" + path + "/"}).String()
}

// send posts msgType/payload to the "api" endpoint and decodes the
// reply's payload into out. The caller's out must be or embed replyBase so the
// numeric code/err_msg pair can be surfaced as a structured error.
func (c *Client) send(msgType string, payload any, out interface{ asError() error }) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return crfserr.FromJSON(err)
	}
	reqTID := transactionID()
	req := envelope{
		Version:       protocolVersion,
		TransactionID: reqTID,
		Reply:         false,
		Type:          msgType,
		Payload:       payloadBytes,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return crfserr.FromJSON(err)
	}

	resp, err := c.HTTP.Post(c.endpoint("api"), "application/json", bytes.NewReader(body))
	if err != nil {
		return crfserr.New(crfserr.CodeNetErr, "coordclient: request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return crfserr.New(crfserr.CodeNetErr, "coordclient: reading response: %v", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return crfserr.New(crfserr.CodeNetErr, "coordclient: received status %d", resp.StatusCode)
	}

	var respEnv envelope
	if err := json.Unmarshal(respBody, &respEnv); err != nil {
		return crfserr.FromJSON(err)
	}
	if respEnv.Version != protocolVersion {
		return crfserr.New(crfserr.CodeMalformed, "coordclient: protocol version mismatch: got %q", respEnv.Version)
	}
	if respEnv.TransactionID != reqTID {
		return crfserr.New(crfserr.CodeMalformed, "coordclient: transaction id mismatch")
	}
	if !respEnv.Reply || respEnv.Type != msgType {
		return crfserr.New(crfserr.CodeMalformed, "coordclient: unexpected reply type %q", respEnv.Type)
	}
	if err := json.Unmarshal(respEnv.Payload, out); err != nil {
		return crfserr.FromJSON(err)
	}
	return out.asError()
}

// Ping checks that the coordinator is reachable and speaks the expected
// protocol version.
func (c *Client) Ping() error {
	var reply replyBase
	return c.send("ping", struct{}{}, &reply)
}

// RegisterUser registers a new account on the coordinator.
func (c *Client) RegisterUser(userID uuid.UUID, displayName string) error {
	var reply replyBase
	return c.send("register_user", registerUserPayload{UserUUID: userID, DisplayName: displayName}, &reply)
}

// CheckUser reports whether userID is already known to the coordinator.
func (c *Client) CheckUser(userID uuid.UUID) (bool, error) {
	var reply replyBase
	err := c.send("check_user", checkUserPayload{UserUUID: userID}, &reply)
	if err == nil {
		return true, nil
	}
	if cerr, ok := err.(*crfserr.Error); ok && cerr.Code == crfserr.CodeNoUser {
		return false, nil
	}
	return false, err
}

// RegisterFS registers a new filesystem owned by userID.
func (c *Client) RegisterFS(userID, fsID uuid.UUID, displayName string) error {
	var reply replyBase
	return c.send("register_fs", registerFsPayload{UserUUID: userID, FSUUID: fsID, DisplayName: displayName}, &reply)
}

// CheckFS reports whether fsID is already known to the coordinator.
func (c *Client) CheckFS(userID, fsID uuid.UUID) (bool, error) {
	var reply replyBase
	err := c.send("check_fs", checkFsPayload{UserUUID: userID, FSUUID: fsID}, &reply)
	if err == nil {
		return true, nil
	}
	if cerr, ok := err.(*crfserr.Error); ok && cerr.Code == crfserr.CodeNoFS {
		return false, nil
	}
	return false, err
}

// Enrol registers replicaID as a participant in fsID.
func (c *Client) Enrol(userID, fsID, replicaID uuid.UUID) error {
	var reply replyBase
	return c.send("enrol", enrolPayload{UserUUID: userID, FSUUID: fsID, ReplicaUUID: replicaID}, &reply)
}

// FetchState implements sync.Coordinator.
func (c *Client) FetchState(userID, fsID uuid.UUID) (map[cmrdt.Hash]bool, error) {
	var reply fetchStateReplyPayload
	if err := c.send("fetch_state", fetchStatePayload{UserUUID: userID, FSUUID: fsID}, &reply); err != nil {
		return nil, err
	}
	out := make(map[cmrdt.Hash]bool, len(reply.State))
	for _, h := range reply.State {
		out[h] = true
	}
	return out, nil
}

// PushState implements sync.Coordinator.
func (c *Client) PushState(userID, fsID uuid.UUID, hashes map[cmrdt.Hash]bool) error {
	ops := make([]cmrdt.Hash, 0, len(hashes))
	for h := range hashes {
		ops = append(ops, h)
	}
	var reply replyBase
	return c.send("push_state", pushStatePayload{UserUUID: userID, FSUUID: fsID, Ops: ops}, &reply)
}

// FetchOp implements sync.Coordinator: GET operation/<fs-uuid>/<hex-hash>.
func (c *Client) FetchOp(fsID uuid.UUID, h cmrdt.Hash) ([]byte, error) {
	full := c.endpoint("operation") + fsID.String() + "/" + h.String()
	resp, err := c.HTTP.Get(full)
	if err != nil {
		return nil, crfserr.New(crfserr.CodeNetErr, "coordclient: fetch op: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, crfserr.New(crfserr.CodeNetErr, "coordclient: fetch op: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// PushOp implements sync.Coordinator: PUT operation/<fs-uuid>/<hex-hash>.
func (c *Client) PushOp(fsID uuid.UUID, h cmrdt.Hash, data []byte) error {
	full := c.endpoint("operation") + fsID.String() + "/" + h.String()
	req, err := http.NewRequest(http.MethodPut, full, bytes.NewReader(data))
	if err != nil {
		return crfserr.FromIO(err)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return crfserr.New(crfserr.CodeNetErr, "coordclient: push op: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return crfserr.New(crfserr.CodeNetErr, "coordclient: push op: status %d, %s", resp.StatusCode, body)
	}
	return nil
}
