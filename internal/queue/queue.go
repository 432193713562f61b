// Package queue implements the ordered track list, shuffle order, and
// repeat policy described in spec section 4.4. It holds no audio state —
// only track paths, the current index, and the bookkeeping needed to
// advance through them. Grounded on the teacher's preference for small,
// single-purpose state structs (pkg/types.PlaybackStatus) guarded by their
// owner's lock rather than their own.
package queue

import (
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/mellowtone/atkd/internal/atkerr"
)

// RepeatMode selects how Advance behaves at the end of the queue and how a
// natural track-end is handled by the session controller.
type RepeatMode string

const (
	RepeatNone  RepeatMode = "none"
	RepeatQueue RepeatMode = "queue"
	RepeatTrack RepeatMode = "track"
)

// Queue is the ordered track list plus shuffle/repeat bookkeeping. Not
// safe for concurrent use — callers serialize access the way the session
// controller's single control task does.
type Queue struct {
	tracks       []string
	current      int
	shuffle      bool
	shuffleOrder []int
	repeat       RepeatMode
}

// New returns an empty queue with repeat=none.
func New() *Queue {
	return &Queue{repeat: RepeatNone}
}

// Tracks returns the queue's track list. Callers must not mutate it.
func (q *Queue) Tracks() []string { return q.tracks }

// Len returns the number of tracks.
func (q *Queue) Len() int { return len(q.tracks) }

// Current returns the current index. Meaningless (by convention 0) when
// the queue is empty.
func (q *Queue) Current() int { return q.current }

// CurrentTrack returns the track at the current index, or "" if empty.
func (q *Queue) CurrentTrack() string {
	if len(q.tracks) == 0 {
		return ""
	}
	return q.tracks[q.current]
}

// Shuffle reports whether shuffle is enabled.
func (q *Queue) Shuffle() bool { return q.shuffle }

// Repeat reports the current repeat mode.
func (q *Queue) Repeat() RepeatMode { return q.repeat }

// ShuffleOrder returns the shuffle permutation. Callers must not mutate it.
func (q *Queue) ShuffleOrder() []int { return q.shuffleOrder }

// Add appends uri to the end of the queue. With shuffle on, the new track's
// index is inserted into shuffle_order at a random position strictly after
// the current track's shuffle position (or at the end, if current isn't in
// shuffle_order).
func (q *Queue) Add(uri string) {
	q.tracks = append(q.tracks, uri)
	newIdx := len(q.tracks) - 1

	if !q.shuffle {
		return
	}

	pos := indexOf(q.shuffleOrder, q.current)
	insertAt := len(q.shuffleOrder)
	if pos >= 0 && pos+1 < len(q.shuffleOrder) {
		insertAt = pos + 1 + rand.IntN(len(q.shuffleOrder)-pos)
	} else if pos >= 0 {
		insertAt = len(q.shuffleOrder)
	}

	q.shuffleOrder = insertAtIndex(q.shuffleOrder, insertAt, newIdx)
}

// Remove pops the track at i and reports its uri. Adjusts current per
// spec: decrements if i precedes current; if i is current and playback was
// underway, the caller (session controller) is responsible for loading the
// new current track or stopping — Remove only returns whether the removed
// track was the one playing.
func (q *Queue) Remove(i int) (removedURI string, wasCurrent bool, err error) {
	if i < 0 || i >= len(q.tracks) {
		return "", false, atkerr.IndexRange(i, len(q.tracks))
	}

	removedURI = q.tracks[i]
	wasCurrent = i == q.current

	q.tracks = append(q.tracks[:i], q.tracks[i+1:]...)

	switch {
	case i < q.current:
		q.current--
	case i == q.current:
		if q.current >= len(q.tracks) && len(q.tracks) > 0 {
			q.current = len(q.tracks) - 1
		}
	}
	if len(q.tracks) == 0 {
		q.current = 0
	}

	q.shuffleOrder = removeAndRenumber(q.shuffleOrder, i)

	return removedURI, wasCurrent, nil
}

// Move pops the track at i and reinserts it at j, adjusting current per the
// three-case rule in spec 4.4.
func (q *Queue) Move(i, j int) error {
	n := len(q.tracks)
	if i < 0 || i >= n {
		return atkerr.IndexRange(i, n)
	}
	if j < 0 || j >= n {
		return atkerr.IndexRange(j, n)
	}
	if i == j {
		return nil
	}

	track := q.tracks[i]
	q.tracks = append(q.tracks[:i], q.tracks[i+1:]...)
	q.tracks = insertAtIndex(q.tracks, j, track)

	switch {
	case i == q.current:
		q.current = j
	case i < q.current && q.current <= j:
		q.current--
	case j <= q.current && q.current < i:
		q.current++
	}

	return nil
}

// Clear resets the queue to empty, repeat/shuffle flags preserved per the
// teacher's convention of not silently discarding user preferences on a
// structural operation — only the track list, index, and shuffle order
// reset.
func (q *Queue) Clear() {
	q.tracks = nil
	q.current = 0
	q.shuffleOrder = nil
}

// Jump sets current to i. Requires 0 <= i < len.
func (q *Queue) Jump(i int) error {
	if i < 0 || i >= len(q.tracks) {
		return atkerr.IndexRange(i, len(q.tracks))
	}
	q.current = i
	return nil
}

// ErrEndOfQueue and ErrStartOfQueue are returned by Advance/Previous when
// repeat=none and the boundary is reached, matching the literal response
// strings from spec section 8.
var (
	ErrEndOfQueue   = fmt.Errorf("End of queue")
	ErrStartOfQueue = fmt.Errorf("Start of queue")
)

// Advance moves current to the next track per the linear or shuffle
// policy. reshuffled reports whether repeat=queue caused a fresh shuffle
// permutation; the session controller does not emit an event for it.
func (q *Queue) Advance() (reshuffled bool, err error) {
	if len(q.tracks) == 0 {
		return false, ErrEndOfQueue
	}

	if !q.shuffle {
		next := q.current + 1
		if next >= len(q.tracks) {
			if q.repeat == RepeatQueue {
				q.current = 0
				return false, nil
			}
			return false, ErrEndOfQueue
		}
		q.current = next
		return false, nil
	}

	pos := indexOf(q.shuffleOrder, q.current)
	if pos < 0 {
		slog.Warn("shuffle order drift: current index not found, falling back to linear advance", "current_index", q.current)
		return q.fallbackLinearAdvance()
	}

	nextPos := pos + 1
	if nextPos >= len(q.shuffleOrder) {
		if q.repeat == RepeatQueue {
			q.regenerateShuffle()
			q.current = q.shuffleOrder[0]
			return true, nil
		}
		return false, ErrEndOfQueue
	}
	q.current = q.shuffleOrder[nextPos]
	return false, nil
}

func (q *Queue) fallbackLinearAdvance() (bool, error) {
	next := q.current + 1
	if next >= len(q.tracks) {
		if q.repeat == RepeatQueue {
			q.current = 0
			return false, nil
		}
		return false, ErrEndOfQueue
	}
	q.current = next
	return false, nil
}

// Previous is symmetric to Advance with idx-1: at the start of the queue
// (or of shuffle_order) it wraps to the last track when repeat=queue, and
// otherwise returns ErrStartOfQueue. The shuffle order is kept as is.
func (q *Queue) Previous() error {
	if len(q.tracks) == 0 {
		return ErrStartOfQueue
	}

	if !q.shuffle {
		if q.current == 0 {
			if q.repeat == RepeatQueue {
				q.current = len(q.tracks) - 1
				return nil
			}
			return ErrStartOfQueue
		}
		q.current--
		return nil
	}

	pos := indexOf(q.shuffleOrder, q.current)
	if pos < 0 {
		slog.Warn("shuffle order drift: current index not found, falling back to linear previous", "current_index", q.current)
		if q.current == 0 {
			if q.repeat == RepeatQueue {
				q.current = len(q.tracks) - 1
				return nil
			}
			return ErrStartOfQueue
		}
		q.current--
		return nil
	}
	if pos == 0 {
		if q.repeat == RepeatQueue {
			q.current = q.shuffleOrder[len(q.shuffleOrder)-1]
			return nil
		}
		return ErrStartOfQueue
	}
	q.current = q.shuffleOrder[pos-1]
	return nil
}

// SetShuffle enables or disables shuffle. Enabling generates a fresh random
// permutation with current moved to the front (it has "just been played").
// Disabling empties shuffle_order.
func (q *Queue) SetShuffle(enabled bool) {
	q.shuffle = enabled
	if !enabled {
		q.shuffleOrder = nil
		return
	}
	q.reshuffle()
}

// reshuffle generates a new random permutation of [0, len) with current
// at the front, for the enable-shuffle path where the currently playing
// track should stay put until the next Advance.
func (q *Queue) reshuffle() {
	n := len(q.tracks)
	if n == 0 {
		q.shuffleOrder = nil
		return
	}

	order := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if i != q.current {
			order = append(order, i)
		}
	}
	rand.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	q.shuffleOrder = append([]int{q.current}, order...)
}

// regenerateShuffle replaces shuffle_order with a fresh, unconstrained
// random permutation of every track index — used when repeat=queue wraps
// the shuffle order during Advance, where the just-finished track must not
// be pinned to the front (otherwise the next track picked is the one that
// just played). Grounded on the original daemon's _regenerate_shuffle,
// which performs a plain random.shuffle with no special placement.
func (q *Queue) regenerateShuffle() {
	n := len(q.tracks)
	if n == 0 {
		q.shuffleOrder = nil
		return
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	rand.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })
	q.shuffleOrder = order
}

// SetRepeat sets the repeat mode.
func (q *Queue) SetRepeat(mode RepeatMode) {
	q.repeat = mode
}

func indexOf(s []int, v int) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}

func insertAtIndex[T any](s []T, idx int, v T) []T {
	if idx < 0 {
		idx = 0
	}
	if idx > len(s) {
		idx = len(s)
	}
	s = append(s, v)
	copy(s[idx+1:], s[idx:])
	s[idx] = v
	return s
}

// removeAndRenumber removes i from s if present, then subtracts 1 from
// every remaining entry greater than i.
func removeAndRenumber(s []int, i int) []int {
	out := make([]int, 0, len(s))
	for _, v := range s {
		switch {
		case v == i:
			continue
		case v > i:
			out = append(out, v-1)
		default:
			out = append(out, v)
		}
	}
	return out
}
