// Package directory tracks which connections are live in which room.
//
// All roster mutation for a room happens inside Directory.Update (or
// UpdateByConn), which holds that room's lock for the whole callback, so join,
// leave and host changes in one room are applied one at a time. Different rooms
// never share a lock. Lock order is roster before directory.
package directory

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/skillsphere/meetings/internal/domain"
)

var ErrNotMember = errors.New("connection is not in a room")

// Conn is the outbound side of one signaling connection. Send must not block.
type Conn interface {
	ID() string
	Send(msg domain.SignalMessage) bool
}

// Member is a participant together with its connection and the bookkeeping the
// coordinator needs for screen-share arbitration.
type Member struct {
	domain.Participant
	Conn Conn

	ShareApproved bool
	shareToken    uint64
	shareTimer    *time.Timer
}

// SetPendingShare records a screen-share request identified by token whose
// expiry is driven by t. Any earlier pending request is cancelled.
func (m *Member) SetPendingShare(token uint64, t *time.Timer) {
	m.ClearPendingShare()
	m.shareToken = token
	m.shareTimer = t
}

// PendingShare returns the token of the outstanding request, if any.
func (m *Member) PendingShare() (uint64, bool) {
	return m.shareToken, m.shareTimer != nil
}

// ClearPendingShare stops the pending timer and reports whether one was set.
func (m *Member) ClearPendingShare() bool {
	if m.shareTimer == nil {
		return false
	}
	m.shareTimer.Stop()
	m.shareTimer = nil
	m.shareToken = 0
	return true
}

// Roster is the live membership of one room. Its methods are only safe inside
// the Update/View callbacks that hand it out.
type Roster struct {
	code    string
	dir     *Directory
	mu      sync.RWMutex
	room    *domain.Room
	members map[string]*Member
	seq     uint64
	closed  bool
}

func (r *Roster) Code() string { return r.code }

// Room is the registry configuration the roster was last synced with.
func (r *Roster) Room() *domain.Room { return r.room }

func (r *Roster) SetRoom(room *domain.Room) { r.room = room }

func (r *Roster) Len() int { return len(r.members) }

func (r *Roster) Get(connID string) (*Member, bool) {
	m, ok := r.members[connID]
	return m, ok
}

// Host returns the member currently holding host authority.
func (r *Roster) Host() (*Member, bool) {
	for _, m := range r.members {
		if m.IsHost {
			return m, true
		}
	}
	return nil, false
}

// Members returns all members in join order.
func (r *Roster) Members() []*Member {
	out := make([]*Member, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// Snapshot copies the participants in join order.
func (r *Roster) Snapshot() []domain.Participant {
	members := r.Members()
	out := make([]domain.Participant, 0, len(members))
	for _, m := range members {
		out = append(out, m.Participant)
	}
	return out
}

// Add registers a participant under its connection id. An existing entry for
// the same connection is returned unchanged.
func (r *Roster) Add(p domain.Participant, conn Conn) (*Member, bool) {
	if existing, ok := r.members[p.ID]; ok {
		return existing, false
	}
	r.seq++
	p.Seq = r.seq
	m := &Member{Participant: p, Conn: conn}
	r.members[p.ID] = m

	r.dir.mu.Lock()
	r.dir.conns[p.ID] = r.code
	r.dir.mu.Unlock()

	return m, true
}

// Remove deletes a member and cancels any pending screen-share request.
func (r *Roster) Remove(connID string) (*Member, bool) {
	m, ok := r.members[connID]
	if !ok {
		return nil, false
	}
	delete(r.members, connID)
	m.ClearPendingShare()

	r.dir.mu.Lock()
	if r.dir.conns[connID] == r.code {
		delete(r.dir.conns, connID)
	}
	r.dir.mu.Unlock()

	return m, true
}

// Clear removes every member and returns them in join order.
func (r *Roster) Clear() []*Member {
	members := r.Members()
	for _, m := range members {
		r.Remove(m.ID)
	}
	return members
}

// Send delivers msg to one connection.
func (r *Roster) Send(connID string, msg domain.SignalMessage) bool {
	m, ok := r.members[connID]
	if !ok {
		return false
	}
	msg.Room = r.code
	return m.Conn.Send(msg)
}

// Broadcast delivers msg to every member except the excluded connections and
// returns the ids whose queue refused the message. A refusal never stops
// delivery to the rest.
func (r *Roster) Broadcast(msg domain.SignalMessage, exclude ...string) []string {
	msg.Room = r.code
	var failed []string
	for id, m := range r.members {
		if contains(exclude, id) {
			continue
		}
		if !m.Conn.Send(msg) {
			failed = append(failed, id)
		}
	}
	return failed
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// Directory is the process-wide set of live rosters. It is rebuilt from
// nothing on start and never persisted.
type Directory struct {
	mu    sync.Mutex
	rooms map[string]*Roster
	conns map[string]string
}

func New() *Directory {
	return &Directory{
		rooms: make(map[string]*Roster),
		conns: make(map[string]string),
	}
}

func (d *Directory) roster(code string, create bool) *Roster {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, ok := d.rooms[code]
	if !ok && create {
		r = &Roster{code: code, dir: d, members: make(map[string]*Member)}
		d.rooms[code] = r
	}
	return r
}

// Update runs fn with exclusive access to the room's roster, creating it if
// needed. A roster left empty after fn is dropped.
func (d *Directory) Update(code string, fn func(r *Roster) error) error {
	for {
		r := d.roster(code, true)
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			continue
		}
		err := fn(r)
		if len(r.members) == 0 {
			r.closed = true
			d.mu.Lock()
			if d.rooms[code] == r {
				delete(d.rooms, code)
			}
			d.mu.Unlock()
		}
		r.mu.Unlock()
		return err
	}
}

// View runs fn with shared access to the room's roster. It reports false when
// the room has no live participants.
func (d *Directory) View(code string, fn func(r *Roster)) bool {
	r := d.roster(code, false)
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return false
	}
	fn(r)
	return true
}

// RoomOf returns the room code a connection is registered in.
func (d *Directory) RoomOf(connID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	code, ok := d.conns[connID]
	return code, ok
}

// UpdateByConn runs fn with exclusive access to the roster holding connID.
func (d *Directory) UpdateByConn(connID string, fn func(r *Roster, m *Member) error) error {
	code, ok := d.RoomOf(connID)
	if !ok {
		return ErrNotMember
	}
	return d.Update(code, func(r *Roster) error {
		m, ok := r.Get(connID)
		if !ok {
			return ErrNotMember
		}
		return fn(r, m)
	})
}

// ViewByConn runs fn with shared access to the roster holding connID.
func (d *Directory) ViewByConn(connID string, fn func(r *Roster, m *Member)) bool {
	code, ok := d.RoomOf(connID)
	if !ok {
		return false
	}
	found := false
	d.View(code, func(r *Roster) {
		if m, ok := r.Get(connID); ok {
			found = true
			fn(r, m)
		}
	})
	return found
}

// Participants returns the live roster of a room in join order.
func (d *Directory) Participants(code string) []domain.Participant {
	var out []domain.Participant
	d.View(code, func(r *Roster) {
		out = r.Snapshot()
	})
	if out == nil {
		out = []domain.Participant{}
	}
	return out
}

// Count returns the number of live participants in a room.
func (d *Directory) Count(code string) int {
	n := 0
	d.View(code, func(r *Roster) { n = r.Len() })
	return n
}

// Rooms returns the number of rooms with live participants.
func (d *Directory) Rooms() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.rooms)
}
