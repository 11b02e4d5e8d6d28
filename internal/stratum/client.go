package stratum

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"
)

type clientEventKind int

const (
	eventVersionRollingConfigured clientEventKind = iota
	eventSubscribed
	eventNewJob
	eventDifficultyChanged
	eventVersionMaskSet
	eventShareAccepted
	eventShareRejected
	eventDisconnected
	eventError
)

// clientEvent is everything the wire client surfaces to the owning source:
// exactly one of its payload fields is meaningful, selected by kind.
type clientEvent struct {
	kind clientEventKind

	authorizedMask  *uint32 // eventVersionRollingConfigured
	extranonce1     []byte  // eventSubscribed
	extranonce2Size int     // eventSubscribed
	job             jobNotification
	difficulty      uint64
	versionMask     uint32
	shareJobID      string
	shareNonce      uint32
	rejectReason    string
	err             error
}

type clientCommand struct {
	suggestDifficulty *uint64
	submitShare       *submitParams
}

// client owns one TCP connection to a pool: it runs the mining.configure /
// mining.subscribe / mining.authorize handshake, then relays mining.notify
// and mining.submit traffic until the connection drops or the context is
// cancelled.
type client struct {
	cfg      PoolConfig
	log      *logrus.Entry
	events   chan<- clientEvent
	commands <-chan clientCommand
	nextID   int

	// pendingSubmits tracks in-flight mining.submit requests by id, so the
	// response can be reported back with the job id and nonce it applies to.
	pendingSubmits map[int]submitParams
}

func newClient(cfg PoolConfig, log *logrus.Entry, events chan<- clientEvent, commands <-chan clientCommand) *client {
	return &client{
		cfg:            cfg,
		log:            log,
		events:         events,
		commands:       commands,
		nextID:         1,
		pendingSubmits: make(map[int]submitParams),
	}
}

// run dials, handshakes and then serves the connection until it closes or
// ctx is cancelled. It emits eventDisconnected only when the pool closes the
// connection; a dial or handshake failure or ctx cancellation returns
// without it.
// initialDifficulty, if non-nil, is sent as mining.suggest_difficulty
// immediately after subscribe so the pool never issues a job at its
// default difficulty.
func (c *client) run(ctx context.Context, initialDifficulty *uint64) error {
	conn, err := net.DialTimeout("tcp", c.cfg.DialAddr(), 10*time.Second)
	if err != nil {
		return fmt.Errorf("stratum: dial %s: %w", c.cfg.DialAddr(), err)
	}
	defer conn.Close()

	lines := make(chan string, 64)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(conn)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		readErr <- scanner.Err()
		close(lines)
	}()

	if err := c.handshake(conn, lines, initialDifficulty); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case line, ok := <-lines:
			if !ok {
				c.emit(clientEvent{kind: eventDisconnected})
				return <-readErr
			}
			c.handleLine(line)

		case cmd, ok := <-c.commands:
			if !ok {
				return nil
			}
			if err := c.send(conn, cmd); err != nil {
				c.emit(clientEvent{kind: eventError, err: err})
			}
		}
	}
}

// handshake runs mining.configure, mining.subscribe, an inline
// mining.suggest_difficulty and mining.authorize in sequence, surfacing
// the results as events before the main serve loop begins.
func (c *client) handshake(conn net.Conn, lines <-chan string, initialDifficulty *uint64) error {
	configureID := c.write(conn, newRequest(c.nextID, "mining.configure",
		[]string{"version-rolling"},
		map[string]interface{}{"version-rolling.mask": "1fffe000"},
	))
	var authorizedMask *uint32
	if resp, err := c.awaitResponse(conn, lines, configureID); err == nil {
		authorizedMask = parseConfigureResult(resp.Result)
	}
	c.emit(clientEvent{kind: eventVersionRollingConfigured, authorizedMask: authorizedMask})

	subscribeID := c.write(conn, newRequest(c.nextID, "mining.subscribe", c.cfg.UserAgent))
	resp, err := c.awaitResponse(conn, lines, subscribeID)
	if err != nil {
		return fmt.Errorf("stratum: mining.subscribe: %w", err)
	}
	extranonce1, extranonce2Size, err := parseSubscribeResult(resp.Result)
	if err != nil {
		return fmt.Errorf("stratum: mining.subscribe result: %w", err)
	}
	c.emit(clientEvent{kind: eventSubscribed, extranonce1: extranonce1, extranonce2Size: extranonce2Size})

	if initialDifficulty != nil {
		c.write(conn, newRequest(c.nextID, "mining.suggest_difficulty", *initialDifficulty))
	}

	authorizeID := c.write(conn, newRequest(c.nextID, "mining.authorize", c.cfg.Username, c.cfg.Password))
	if _, err := c.awaitResponse(conn, lines, authorizeID); err != nil {
		return fmt.Errorf("stratum: mining.authorize: %w", err)
	}

	return nil
}

// awaitResponse reads lines until one carries the given request id,
// dispatching any notifications it sees along the way so a mining.notify
// racing the handshake isn't lost.
func (c *client) awaitResponse(conn net.Conn, lines <-chan string, id int) (inbound, error) {
	for line := range lines {
		var msg inbound
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			continue
		}
		if msg.isNotification() {
			c.handleNotification(msg)
			continue
		}
		if msg.ID == nil || *msg.ID != id {
			continue
		}
		if len(msg.Error) > 0 && string(msg.Error) != "null" {
			return msg, fmt.Errorf("pool returned error: %s", msg.Error)
		}
		return msg, nil
	}
	return inbound{}, fmt.Errorf("connection closed before response to request %d", id)
}

func (c *client) handleLine(line string) {
	var msg inbound
	if err := json.Unmarshal([]byte(line), &msg); err != nil {
		c.log.WithError(err).Warn("unparseable stratum line")
		return
	}
	if msg.isNotification() {
		c.handleNotification(msg)
		return
	}
	if msg.ID == nil {
		return
	}
	params, ok := c.pendingSubmits[*msg.ID]
	if !ok {
		return
	}
	delete(c.pendingSubmits, *msg.ID)
	c.handleSubmitResponse(msg, params)
}

func (c *client) handleSubmitResponse(msg inbound, params submitParams) {
	accepted := false
	_ = json.Unmarshal(msg.Result, &accepted)
	if accepted {
		c.emit(clientEvent{kind: eventShareAccepted, shareJobID: params.jobID, shareNonce: params.nonce})
		return
	}
	reason := string(msg.Error)
	c.emit(clientEvent{kind: eventShareRejected, shareJobID: params.jobID, rejectReason: reason})
}

func (c *client) handleNotification(msg inbound) {
	var params []interface{}
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		c.emit(clientEvent{kind: eventError, err: fmt.Errorf("stratum: malformed %s params: %w", msg.Method, err)})
		return
	}

	switch msg.Method {
	case "mining.notify":
		job, err := parseJobNotification(params)
		if err != nil {
			c.emit(clientEvent{kind: eventError, err: err})
			return
		}
		c.emit(clientEvent{kind: eventNewJob, job: job})

	case "mining.set_difficulty":
		if len(params) < 1 {
			return
		}
		if d, ok := params[0].(float64); ok {
			c.emit(clientEvent{kind: eventDifficultyChanged, difficulty: uint64(d)})
		}

	case "mining.set_version_mask", "mining.set_extranonce":
		if msg.Method == "mining.set_version_mask" && len(params) >= 1 {
			if s, ok := params[0].(string); ok {
				if mask, err := parseHexUint32(s); err == nil {
					c.emit(clientEvent{kind: eventVersionMaskSet, versionMask: mask})
				}
			}
		}
	}
}

// write serialises and sends req, advancing nextID past the id it used, and
// returns that id.
func (c *client) write(conn net.Conn, req request) int {
	id := req.ID
	c.nextID = id + 1
	_ = c.writeRaw(conn, req)
	return id
}

func (c *client) send(conn net.Conn, cmd clientCommand) error {
	switch {
	case cmd.suggestDifficulty != nil:
		c.write(conn, newRequest(c.nextID, "mining.suggest_difficulty", *cmd.suggestDifficulty))
		return nil
	case cmd.submitShare != nil:
		id := c.nextID
		c.pendingSubmits[id] = *cmd.submitShare
		c.write(conn, cmd.submitShare.toRequest(id))
		return nil
	}
	return nil
}

func (c *client) writeRaw(conn net.Conn, req request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = conn.Write(data)
	return err
}

func (c *client) emit(ev clientEvent) {
	select {
	case c.events <- ev:
	default:
		c.log.Warn("stratum client event channel full, dropping event")
	}
}

func parseConfigureResult(raw json.RawMessage) *uint32 {
	var result map[string]interface{}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil
	}
	maskStr, ok := result["version-rolling.mask"].(string)
	if !ok {
		return nil
	}
	mask, err := parseHexUint32(maskStr)
	if err != nil {
		return nil
	}
	return &mask
}

func parseSubscribeResult(raw json.RawMessage) ([]byte, int, error) {
	var result []interface{}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, 0, err
	}
	if len(result) < 3 {
		return nil, 0, fmt.Errorf("expected 3 elements, got %d", len(result))
	}
	extranonce1Hex, ok := result[1].(string)
	if !ok {
		return nil, 0, fmt.Errorf("extranonce1 is not a string")
	}
	extranonce1, err := decodeHex(extranonce1Hex)
	if err != nil {
		return nil, 0, err
	}
	size, ok := result[2].(float64)
	if !ok {
		return nil, 0, fmt.Errorf("extranonce2_size is not a number")
	}
	return extranonce1, int(size), nil
}

func decodeHex(s string) ([]byte, error) {
	return hex.DecodeString(s)
}
