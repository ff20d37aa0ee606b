// Package plugin exposes a placement.State through the positional audio
// host contract: fixed descriptive names, link locking and polling
package plugin

import (
	"github.com/teslashibe/go-manual/internal/placement"
)

// Fixed texts shown in the host's plugin list
const (
	ShortName       = "Manual placement"
	Description     = "Manual placement plugin"
	LongDescription = "This is the manual placement plugin. It allows you to place yourself manually."
)

// Info describes the plugin to the host
type Info struct {
	ShortName       string `json:"short_name"`
	Description     string `json:"description"`
	LongDescription string `json:"long_description"`
}

// Plugin adapts a State to the host contract.
// The host may link only one positional plugin at a time and may release
// the link at any moment through Unlock.
type Plugin struct {
	state *placement.State
}

// New creates a plugin backed by state
func New(state *placement.State) *Plugin {
	return &Plugin{state: state}
}

// Info returns the plugin's names
func (p *Plugin) Info() Info {
	return Info{
		ShortName:       ShortName,
		Description:     Description,
		LongDescription: LongDescription,
	}
}

// TryLock reports whether the user allows the host to link
func (p *Plugin) TryLock() bool {
	return p.state.TryLock()
}

// Unlock releases the host link
func (p *Plugin) Unlock() {
	p.state.Unlock()
}

// Fetch fills out with the current positional data. It returns false and
// leaves out untouched when the user has not allowed linking.
func (p *Plugin) Fetch(out *placement.Snapshot) bool {
	snap, ok := p.state.Fetch()
	if !ok {
		return false
	}
	*out = snap
	return true
}

// State returns the backing store
func (p *Plugin) State() *placement.State {
	return p.state
}
