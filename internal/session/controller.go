package session

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mellowtone/atkd/internal/atkerr"
	"github.com/mellowtone/atkd/internal/engine"
	"github.com/mellowtone/atkd/internal/queue"
)

type envelope struct {
	req   Request
	reply chan Response
}

// player is the subset of *engine.Engine the controller drives, narrowed to
// an interface so tests can dispatch commands against a fake device-free
// stand-in instead of a real PortAudio stream.
type player interface {
	Load(path string) error
	Play(startSeconds float64) error
	Pause()
	Unpause() error
	Stop() error
	Seek(seconds float64) error
	SetVolume(v int)
	Volume() int
	SetRate(speed float64, mode engine.RateMode)
	Rate() float64
	CurrentPosition() float64
	Duration() float64
	IsPlaying() bool
	SetDeviceIndex(idx int) error
	DeviceIndex() int
}

// Controller is the single-threaded dispatch loop: one goroutine (Run)
// owns the queue and the engine handle and is the only writer of either.
// Grounded on the teacher's monitorPlayback/monitorBufferStatus ticker
// goroutines (cmd/fileplayer.go, cmd/player.go) for the select-loop shape.
type Controller struct {
	eng     player
	q       *queue.Queue
	sink    Sink
	dataDir string

	requests  chan envelope
	endOfTrack chan struct{}

	state       PlaybackState
	subscribed  bool
	lastError   string
}

// New builds a Controller wired to a real engine. dataDir is ${data} from
// internal/runtimedir, used to resolve playlist paths.
func New(eng *engine.Engine, dataDir string) *Controller {
	c := newController(eng, dataDir)
	eng.SetEndCallback(func() {
		select {
		case c.endOfTrack <- struct{}{}:
		default:
			// A prior end-of-track notification is already pending; the
			// control task hasn't drained it yet. Dropping a duplicate is
			// safe since the callback recomputes everything from queue
			// state, not from the notification payload.
		}
	})
	return c
}

// newController builds a Controller against any player, real or fake —
// split out from New so tests can dispatch commands without a PortAudio
// stream behind them.
func newController(p player, dataDir string) *Controller {
	return &Controller{
		eng:        p,
		q:          queue.New(),
		dataDir:    dataDir,
		requests:   make(chan envelope),
		endOfTrack: make(chan struct{}, 1),
		state:      StateStopped,
	}
}

// AttachSink installs the outbound event/response writer. Must be called
// before Run.
func (c *Controller) AttachSink(s Sink) {
	c.sink = s
}

// Dispatch hands req to the control task and blocks for its response. Safe
// to call concurrently from multiple reader goroutines (there is only one
// in practice, per spec section 4.6).
func (c *Controller) Dispatch(req Request) Response {
	reply := make(chan Response, 1)
	c.requests <- envelope{req: req, reply: reply}
	return <-reply
}

// Run is the control task: single-threaded, handling one request,
// track-end notice or tick at a time. It owns the queue and engine
// exclusively. It does no pipe I/O, but track loads (a full decode) run
// inline here, so other commands and ticks wait until a load finishes.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case env := <-c.requests:
			env.reply <- c.handle(env.req)
		case <-c.endOfTrack:
			c.handleTrackEnd()
		case <-ticker.C:
			c.emitPositionUpdate()
		}
	}
}

func (c *Controller) handle(req Request) Response {
	h, ok := handlers[req.Cmd]
	if !ok {
		return c.fail(req.ID, atkerr.New(atkerr.Transport, fmt.Sprintf("unknown command: %s", req.Cmd)))
	}

	data, err := h(c, req.Args)
	if err != nil {
		return c.fail(req.ID, err)
	}
	return Response{ID: req.ID, OK: true, Data: data}
}

func (c *Controller) fail(id string, err error) Response {
	return Response{ID: id, OK: false, Error: atkerr.AsPayload(err)}
}

func (c *Controller) emit(event string, data any) {
	if c.sink == nil {
		return
	}
	c.sink.SendEvent(EventMessage{Event: event, Data: data})
}

// handleTrackEnd implements spec section 4.5's natural-track-end policy.
func (c *Controller) handleTrackEnd() {
	if c.q.Repeat() == queue.RepeatTrack {
		c.playCurrentOrAdvance(false)
		return
	}

	_, err := c.q.Advance()
	if err != nil {
		c.state = StateStopped
		c.emit("queue_finished", map[string]any{})
		return
	}

	c.playCurrentOrAdvance(true)
}

// playCurrentOrAdvance loads and plays the current track, emitting
// track_changed on success when announceChange is true. If loading fails it
// emits an error event and auto-advances past the offending track, bounded
// by the queue length so an all-failing queue still terminates (spec
// section 4.5 "Failure recovery in play_current"). If Play fails it emits
// an error event and stops without advancing.
func (c *Controller) playCurrentOrAdvance(announceChange bool) {
	attempts := c.q.Len()
	if attempts == 0 {
		c.state = StateStopped
		return
	}

	for i := 0; i < attempts; i++ {
		track := c.q.CurrentTrack()
		if err := c.eng.Load(track); err != nil {
			c.emit("error", map[string]any{"track": track, "message": err.Error()})
			if _, advErr := c.q.Advance(); advErr != nil {
				c.state = StateStopped
				c.emit("queue_finished", map[string]any{})
				return
			}
			continue
		}

		if err := c.eng.Play(0); err != nil {
			c.emit("error", map[string]any{"track": track, "message": err.Error()})
			c.state = StateStopped
			return
		}

		c.state = StatePlaying
		if announceChange {
			c.emit("track_changed", map[string]any{
				"queue_position": c.q.Current(),
				"track":          describeTrack(track),
			})
		}
		return
	}

	c.state = StateStopped
	c.emit("queue_finished", map[string]any{})
}

func (c *Controller) emitPositionUpdate() {
	if c.state != StatePlaying || !c.subscribed {
		return
	}
	c.emit("position_update", map[string]any{
		"position": c.eng.CurrentPosition(),
		"duration": c.eng.Duration(),
	})
}

// parseSeek resolves a {pos} arg to an absolute, non-negative second offset.
// Accepts a JSON number (absolute), a "+"/"-" prefixed string (relative to
// current position), or an "h:mm:ss"/"m:ss" string (absolute), per spec
// sections 4.5 and 8.
func parseSeek(pos any, current float64) (float64, error) {
	switch v := pos.(type) {
	case float64:
		return clampNonNegative(v), nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, atkerr.Invalid("seek: empty position")
		}
		if s[0] == '+' || s[0] == '-' {
			delta, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return 0, atkerr.Invalid("seek: invalid relative position %q", v)
			}
			return clampNonNegative(current + delta), nil
		}
		if strings.Contains(s, ":") {
			secs, err := parseClock(s)
			if err != nil {
				return 0, err
			}
			return clampNonNegative(secs), nil
		}
		abs, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, atkerr.Invalid("seek: invalid position %q", v)
		}
		return clampNonNegative(abs), nil
	default:
		return 0, atkerr.Invalid("seek: pos must be a number or string")
	}
}

func parseClock(s string) (float64, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, atkerr.Invalid("seek: invalid clock position %q", s)
	}

	var h, m int
	var sec float64
	var err error

	if len(parts) == 3 {
		h, err = strconv.Atoi(parts[0])
		if err != nil {
			return 0, atkerr.Invalid("seek: invalid clock position %q", s)
		}
		parts = parts[1:]
	}

	m, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, atkerr.Invalid("seek: invalid clock position %q", s)
	}
	sec, err = strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return 0, atkerr.Invalid("seek: invalid clock position %q", s)
	}

	return float64(h*3600+m*60) + sec, nil
}

func clampNonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
