package session

import (
	"fmt"
	"os"
	"strconv"

	"github.com/mellowtone/atkd/internal/atkerr"
	"github.com/mellowtone/atkd/internal/decode"
	"github.com/mellowtone/atkd/internal/engine"
	"github.com/mellowtone/atkd/internal/queue"
)

type handlerFunc func(c *Controller, args map[string]any) (any, error)

// handlers is the command dispatch table, grounded on the teacher's
// per-subcommand cobra.Command.Run pattern, translated from an argv tree
// into a string-keyed map since the IPC protocol (not argv) is the
// interface here.
var handlers = map[string]handlerFunc{
	"ping":       cmdPing,
	"status":     cmdStatus,
	"play":       cmdPlay,
	"pause":      cmdPause,
	"stop":       cmdStop,
	"next":       cmdNext,
	"prev":       cmdPrev,
	"seek":       cmdSeek,
	"volume":     cmdVolume,
	"rate":       cmdRate,
	"add":        cmdAdd,
	"remove":     cmdRemove,
	"move":       cmdMove,
	"clear":      cmdClear,
	"queue":      cmdQueue,
	"jump":       cmdJump,
	"shuffle":    cmdShuffle,
	"repeat":     cmdRepeat,
	"info":       cmdInfo,
	"subscribe":  cmdSubscribe,
	"save":       cmdSave,
	"load":       cmdLoad,
	"playlists":  cmdPlaylists,
	"devices":    cmdDevices,
	"set-device": cmdSetDevice,
	"shutdown":   cmdShutdown,
}

func cmdPing(c *Controller, args map[string]any) (any, error) {
	return map[string]any{"pong": true}, nil
}

func cmdStatus(c *Controller, args map[string]any) (any, error) {
	return c.statusPayload(), nil
}

func (c *Controller) statusPayload() map[string]any {
	var track any
	if c.q.Len() > 0 {
		info := describeTrack(c.q.CurrentTrack())
		if c.state != StateStopped {
			dur := c.eng.Duration()
			info.Duration = &dur
		}
		track = info
	}

	return map[string]any{
		"state":          c.state,
		"track":          track,
		"position":       c.eng.CurrentPosition(),
		"duration":       c.eng.Duration(),
		"volume":         c.eng.Volume(),
		"shuffle":        c.q.Shuffle(),
		"repeat":         c.q.Repeat(),
		"queue_length":   c.q.Len(),
		"queue_position": c.q.Current(),
		"rate":           c.eng.Rate(),
	}
}

// cmdPlay loads the given file (replacing the queue with a single-track
// queue, per the daemon-side convenience convention) or resumes the
// current/paused track when no file argument is given.
func cmdPlay(c *Controller, args map[string]any) (any, error) {
	file, hasFile := stringArg(args, "file")

	switch {
	case hasFile:
		c.q.Clear()
		c.q.Add(file)
		if err := c.eng.Load(file); err != nil {
			return nil, err
		}
		if err := c.eng.Play(0); err != nil {
			return nil, err
		}
		c.state = StatePlaying
		c.emit("playback_started", map[string]any{"track": describeTrack(file)})

	case c.state == StatePaused:
		if err := c.eng.Unpause(); err != nil {
			return nil, err
		}
		c.state = StatePlaying
		c.emit("playback_started", map[string]any{})

	case c.q.Len() > 0:
		track := c.q.CurrentTrack()
		if err := c.eng.Load(track); err != nil {
			return nil, err
		}
		if err := c.eng.Play(0); err != nil {
			return nil, err
		}
		c.state = StatePlaying
		c.emit("playback_started", map[string]any{"track": describeTrack(track)})

	default:
		return nil, atkerr.Invalid("play: no file argument and queue is empty")
	}

	return map[string]any{"state": c.state}, nil
}

func cmdPause(c *Controller, args map[string]any) (any, error) {
	if c.state != StatePlaying {
		return map[string]any{"state": c.state}, nil
	}
	c.eng.Pause()
	c.state = StatePaused
	c.emit("playback_paused", map[string]any{})
	return map[string]any{"state": c.state}, nil
}

func cmdStop(c *Controller, args map[string]any) (any, error) {
	if err := c.eng.Stop(); err != nil {
		return nil, err
	}
	c.state = StateStopped
	c.emit("playback_stopped", map[string]any{})
	return map[string]any{"state": c.state}, nil
}

func cmdNext(c *Controller, args map[string]any) (any, error) {
	_, err := c.q.Advance()
	if err != nil {
		return map[string]any{"error": err.Error()}, nil
	}

	track := c.q.CurrentTrack()
	if c.state != StateStopped {
		if err := c.eng.Load(track); err != nil {
			return nil, err
		}
		if err := c.eng.Play(0); err != nil {
			return nil, err
		}
		c.state = StatePlaying
	}
	c.emit("track_changed", map[string]any{"queue_position": c.q.Current(), "track": describeTrack(track)})
	return map[string]any{"queue_position": c.q.Current()}, nil
}

func cmdPrev(c *Controller, args map[string]any) (any, error) {
	if err := c.q.Previous(); err != nil {
		return map[string]any{"error": err.Error()}, nil
	}

	track := c.q.CurrentTrack()
	if c.state != StateStopped {
		if err := c.eng.Load(track); err != nil {
			return nil, err
		}
		if err := c.eng.Play(0); err != nil {
			return nil, err
		}
		c.state = StatePlaying
	}
	c.emit("track_changed", map[string]any{"queue_position": c.q.Current(), "track": describeTrack(track)})
	return map[string]any{"queue_position": c.q.Current()}, nil
}

func cmdSeek(c *Controller, args map[string]any) (any, error) {
	pos, ok := args["pos"]
	if !ok {
		return nil, atkerr.Invalid("seek: missing pos")
	}

	target, err := parseSeek(pos, c.eng.CurrentPosition())
	if err != nil {
		return nil, err
	}

	if err := c.eng.Seek(target); err != nil {
		return nil, err
	}
	return map[string]any{"position": target}, nil
}

func cmdVolume(c *Controller, args map[string]any) (any, error) {
	level, ok := intArg(args, "level")
	if !ok {
		return nil, atkerr.Invalid("volume: missing level")
	}
	c.eng.SetVolume(level)
	return map[string]any{"volume": c.eng.Volume()}, nil
}

func cmdRate(c *Controller, args map[string]any) (any, error) {
	speed, ok := floatArg(args, "speed")
	if !ok {
		return nil, atkerr.Invalid("rate: missing speed")
	}

	rateMode := rateModeFromArg(args)
	c.eng.SetRate(speed, rateMode)
	return map[string]any{"rate": c.eng.Rate()}, nil
}

func cmdAdd(c *Controller, args map[string]any) (any, error) {
	uri, ok := stringArg(args, "uri")
	if !ok {
		return nil, atkerr.Invalid("add: missing uri")
	}
	if !decode.Recognised(uri) {
		return nil, atkerr.Unsupported(uri)
	}
	if _, err := os.Stat(uri); err != nil {
		if os.IsNotExist(err) {
			return nil, atkerr.NotFound(uri)
		}
		return nil, atkerr.Internally(err)
	}
	c.q.Add(uri)
	c.emit("queue_updated", map[string]any{"queue_length": c.q.Len()})
	return map[string]any{"queue_length": c.q.Len()}, nil
}

func cmdRemove(c *Controller, args map[string]any) (any, error) {
	index, ok := intArg(args, "index")
	if !ok {
		return nil, atkerr.Invalid("remove: missing index")
	}

	removed, wasCurrent, err := c.q.Remove(index)
	if err != nil {
		return nil, err
	}

	if wasCurrent {
		if c.q.Len() == 0 {
			if err := c.eng.Stop(); err != nil {
				return nil, err
			}
			c.state = StateStopped
			c.emit("playback_stopped", map[string]any{})
		} else {
			wasPlaying := c.state == StatePlaying
			track := c.q.CurrentTrack()
			if err := c.eng.Load(track); err != nil {
				return nil, err
			}
			if wasPlaying {
				if err := c.eng.Play(0); err != nil {
					return nil, err
				}
			}
			c.emit("track_changed", map[string]any{"queue_position": c.q.Current(), "track": describeTrack(track)})
		}
	}

	c.emit("queue_updated", map[string]any{"queue_length": c.q.Len()})
	return map[string]any{"removed": removed}, nil
}

func cmdMove(c *Controller, args map[string]any) (any, error) {
	from, ok := intArg(args, "from")
	if !ok {
		return nil, atkerr.Invalid("move: missing from")
	}
	to, ok := intArg(args, "to")
	if !ok {
		return nil, atkerr.Invalid("move: missing to")
	}

	if err := c.q.Move(from, to); err != nil {
		return nil, err
	}
	c.emit("queue_updated", map[string]any{"queue_length": c.q.Len()})
	return map[string]any{"queue_position": c.q.Current()}, nil
}

func cmdClear(c *Controller, args map[string]any) (any, error) {
	c.q.Clear()
	if err := c.eng.Stop(); err != nil {
		return nil, err
	}
	c.state = StateStopped
	c.emit("playback_stopped", map[string]any{})
	c.emit("queue_updated", map[string]any{"queue_length": 0})
	return map[string]any{"cleared": true}, nil
}

func cmdQueue(c *Controller, args map[string]any) (any, error) {
	tracks := make([]TrackInfo, 0, c.q.Len())
	for _, uri := range c.q.Tracks() {
		tracks = append(tracks, describeTrack(uri))
	}
	return map[string]any{"tracks": tracks, "current_index": c.q.Current()}, nil
}

func cmdJump(c *Controller, args map[string]any) (any, error) {
	index, ok := intArg(args, "index")
	if !ok {
		return nil, atkerr.Invalid("jump: missing index")
	}
	if err := c.q.Jump(index); err != nil {
		return nil, err
	}

	track := c.q.CurrentTrack()
	if err := c.eng.Load(track); err != nil {
		return nil, err
	}
	if err := c.eng.Play(0); err != nil {
		return nil, err
	}
	c.state = StatePlaying
	c.emit("track_changed", map[string]any{"queue_position": c.q.Current(), "track": describeTrack(track)})
	return map[string]any{"queue_position": c.q.Current()}, nil
}

func cmdShuffle(c *Controller, args map[string]any) (any, error) {
	enabled, ok := boolArg(args, "enabled")
	if !ok {
		return nil, atkerr.Invalid("shuffle: missing enabled")
	}
	c.q.SetShuffle(enabled)
	c.emit("queue_updated", map[string]any{"queue_length": c.q.Len()})
	return map[string]any{"shuffle": c.q.Shuffle()}, nil
}

func cmdRepeat(c *Controller, args map[string]any) (any, error) {
	mode, ok := stringArg(args, "mode")
	if !ok {
		return nil, atkerr.Invalid("repeat: missing mode")
	}

	switch queue.RepeatMode(mode) {
	case queue.RepeatNone, queue.RepeatQueue, queue.RepeatTrack:
		c.q.SetRepeat(queue.RepeatMode(mode))
	default:
		return nil, atkerr.Invalid("repeat: invalid mode %q", mode)
	}
	return map[string]any{"repeat": c.q.Repeat()}, nil
}

func cmdInfo(c *Controller, args map[string]any) (any, error) {
	index := c.q.Current()
	if i, ok := intArg(args, "index"); ok {
		index = i
	}
	if index < 0 || index >= c.q.Len() {
		return nil, atkerr.IndexRange(index, c.q.Len())
	}

	info := describeTrack(c.q.Tracks()[index])
	if index == c.q.Current() && c.state != StateStopped {
		dur := c.eng.Duration()
		info.Duration = &dur
	}
	return info, nil
}

func cmdDevices(c *Controller, args map[string]any) (any, error) {
	devices, err := engine.ListDevices()
	if err != nil {
		return nil, atkerr.Internally(err)
	}

	out := make([]map[string]any, 0, len(devices))
	for _, d := range devices {
		out = append(out, map[string]any{
			"device_id":           fmt.Sprintf("%x", d.Index),
			"name":                d.Name,
			"max_output_channels": d.MaxOutputChannels,
			"default_sample_rate": d.DefaultSampleRate,
		})
	}
	return map[string]any{"devices": out}, nil
}

func cmdSetDevice(c *Controller, args map[string]any) (any, error) {
	idStr, ok := stringArg(args, "device_id")
	if !ok || idStr == "" {
		return map[string]any{"device_id": fmt.Sprintf("%x", c.eng.DeviceIndex())}, nil
	}

	idx, err := strconv.ParseInt(idStr, 16, 64)
	if err != nil {
		return nil, atkerr.Invalid("set-device: invalid device_id %q", idStr)
	}

	if err := c.eng.SetDeviceIndex(int(idx)); err != nil {
		return nil, err
	}
	return map[string]any{"device_id": fmt.Sprintf("%x", idx)}, nil
}

func cmdSubscribe(c *Controller, args map[string]any) (any, error) {
	c.subscribed = true
	return map[string]any{"subscribed": true}, nil
}

func cmdShutdown(c *Controller, args map[string]any) (any, error) {
	return map[string]any{"shutting_down": true}, nil
}

func stringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func intArg(args map[string]any, key string) (int, bool) {
	v, ok := args[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}

func floatArg(args map[string]any, key string) (float64, bool) {
	v, ok := args[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func boolArg(args map[string]any, key string) (bool, bool) {
	v, ok := args[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

func rateModeFromArg(args map[string]any) engine.RateMode {
	mode, _ := stringArg(args, "mode")
	if mode == "tape" {
		return engine.RateModeTape
	}
	return engine.RateModePitchPreserving
}
