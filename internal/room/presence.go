package room

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"unicode/utf8"
)

// MaxNameLength bounds display names, counted in runes
const MaxNameLength = 20

// Hues closer than this to the previous assignment are redrawn
const minHueGap = 30

var (
	ErrEmptyName = errors.New("room: display name is empty")
	ErrNotMember = errors.New("room: connection is not in this room")
)

// A connection's identity within a room. Name is nil until the client
// picks one.
type Participant struct {
	ID    string  `json:"id"`
	Name  *string `json:"name"`
	Color string  `json:"color"`
	Room  string  `json:"room"`
}

// Presence is the live participant set of one room
type Presence struct {
	room    string
	members map[string]*Participant
	order   []string
	lastHue int
	hue     func() int
}

func newPresence(code string, hue func() int) *Presence {
	if hue == nil {
		hue = func() int { return rand.Intn(360) }
	}
	return &Presence{
		room:    code,
		members: make(map[string]*Participant),
		lastHue: -1,
		hue:     hue,
	}
}

// Join adds connID without a display name and with a freshly drawn color.
// A connection that is already present keeps its place in the join order
// but loses its name and gets a new color.
func (p *Presence) Join(connID string) Participant {
	part, ok := p.members[connID]
	if !ok {
		part = &Participant{ID: connID, Room: p.room}
		p.members[connID] = part
		p.order = append(p.order, connID)
	}
	part.Name = nil
	part.Color = p.pickColor()
	return *part
}

// SetName trims and truncates raw, then appends " (n)" with the smallest n
// that makes it unique among the other participants of the room.
func (p *Presence) SetName(connID, raw string) (Participant, error) {
	part, ok := p.members[connID]
	if !ok {
		return Participant{}, ErrNotMember
	}

	base := truncate(strings.TrimSpace(raw), MaxNameLength)
	if base == "" {
		return Participant{}, ErrEmptyName
	}

	name := base
	for n := 1; p.nameTaken(connID, name); n++ {
		name = fmt.Sprintf("%s (%d)", base, n)
	}

	part.Name = &name
	return *part, nil
}

func (p *Presence) nameTaken(self, name string) bool {
	for id, other := range p.members {
		if id == self || other.Name == nil {
			continue
		}
		if *other.Name == name {
			return true
		}
	}
	return false
}

// Leave reports whether connID was present
func (p *Presence) Leave(connID string) bool {
	if _, ok := p.members[connID]; !ok {
		return false
	}
	delete(p.members, connID)
	for i, id := range p.order {
		if id == connID {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	return true
}

func (p *Presence) Get(connID string) (Participant, bool) {
	part, ok := p.members[connID]
	if !ok {
		return Participant{}, false
	}
	return *part, true
}

// List returns the full mapping from connection id to participant
func (p *Presence) List() map[string]Participant {
	out := make(map[string]Participant, len(p.members))
	for id, part := range p.members {
		out[id] = *part
	}
	return out
}

// Members returns connection ids in join order
func (p *Presence) Members() []string {
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}

func (p *Presence) Len() int { return len(p.members) }

func (p *Presence) pickColor() string {
	h := p.hue()
	for i := 0; i < 8 && p.lastHue >= 0 && hueDistance(h, p.lastHue) < minHueGap; i++ {
		h = p.hue()
	}
	p.lastHue = h
	return fmt.Sprintf("hsl(%d, 90%%, 60%%)", h)
}

func hueDistance(a, b int) int {
	d := a - b
	if d < 0 {
		d = -d
	}
	if d > 180 {
		d = 360 - d
	}
	return d
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
