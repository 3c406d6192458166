package automation

import (
	"context"
	"sync"
	"time"

	"github.com/rakunlabs/splot/internal/reslink"
	"github.com/rakunlabs/splot/internal/splotval"
)

// PairingState is the Pairing state machine position from spec §4.9.
type PairingState string

const (
	PairingIdle   PairingState = "idle"
	PairingArmed  PairingState = "armed"
	PairingFiring PairingState = "firing"
)

// syncDebounce is the sync-mode loop-avoidance window from spec §4.9.
const syncDebounce = 50 * time.Millisecond

// Pairing implements the idle -> armed -> firing -> armed loop linking two
// Resource Links, with optional per-direction transforms.
type Pairing struct {
	resolver LinkResolver
	now      func() time.Time

	sourcePath, destPath string
	push, pull           bool
	toDest, toSrc        Expression // nil means identity passthrough

	mu              sync.Mutex
	state           PairingState
	count           int64
	last            splotval.Value
	trap            string
	unregSrc        reslink.Unregister
	unregDest       reslink.Unregister
	debounceSrcTil  time.Time
	debounceDestTil time.Time
}

// NewPairing builds a disabled Pairing. toDest/toSrc may be nil for a
// value-passthrough direction.
func NewPairing(resolver LinkResolver, sourcePath, destPath string, push, pull bool, toDest, toSrc Expression, now func() time.Time) *Pairing {
	if now == nil {
		now = time.Now
	}
	return &Pairing{
		resolver:   resolver,
		now:        now,
		sourcePath: sourcePath,
		destPath:   destPath,
		push:       push,
		pull:       pull,
		toDest:     toDest,
		toSrc:      toSrc,
		state:      PairingIdle,
	}
}

// State reports the current machine state.
func (p *Pairing) State() PairingState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Count and Trap report the bookkeeping STATE properties a Pairing Thing
// exposes.
func (p *Pairing) Count() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

func (p *Pairing) Trap() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.trap
}

// Enable arms the pairing: if push, it observes the source; if pull, the
// destination.
func (p *Pairing) Enable() error {
	p.mu.Lock()
	if p.state != PairingIdle {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	if p.push {
		link, err := p.resolver.Resolve(p.sourcePath)
		if err != nil {
			return err
		}
		p.mu.Lock()
		p.unregSrc = link.Register(func(v splotval.Value) { p.onObserved(sideSource, v) })
		p.mu.Unlock()
	}
	if p.pull {
		link, err := p.resolver.Resolve(p.destPath)
		if err != nil {
			return err
		}
		p.mu.Lock()
		p.unregDest = link.Register(func(v splotval.Value) { p.onObserved(sideDest, v) })
		p.mu.Unlock()
	}

	p.mu.Lock()
	p.state = PairingArmed
	p.mu.Unlock()
	return nil
}

// Disable tears down observation and returns the pairing to idle.
func (p *Pairing) Disable() {
	p.mu.Lock()
	unregSrc, unregDest := p.unregSrc, p.unregDest
	p.unregSrc, p.unregDest = nil, nil
	p.state = PairingIdle
	p.mu.Unlock()
	if unregSrc != nil {
		unregSrc()
	}
	if unregDest != nil {
		unregDest()
	}
}

type side int

const (
	sideSource side = iota
	sideDest
)

func (p *Pairing) onObserved(changed side, value splotval.Value) {
	p.mu.Lock()
	if p.state == PairingIdle {
		p.mu.Unlock()
		return
	}
	now := p.now()
	if changed == sideSource && now.Before(p.debounceSrcTil) {
		p.mu.Unlock()
		return
	}
	if changed == sideDest && now.Before(p.debounceDestTil) {
		p.mu.Unlock()
		return
	}
	p.state = PairingFiring
	p.mu.Unlock()

	transform := p.toDest
	writeToSide := sideDest
	if changed == sideDest {
		transform = p.toSrc
		writeToSide = sideSource
	}

	result := value
	if transform != nil {
		out, suppressed, err := transform.Eval(EvalContext{
			Vars:  map[string]splotval.Value{"v": value},
			Stack: []splotval.Value{value},
			Now:   now,
		})
		if err != nil {
			p.fail(changed, false)
			return
		}
		if suppressed {
			p.rearm()
			return
		}
		result = out
	}

	destLink, err := p.resolver.Resolve(p.pathFor(writeToSide))
	if err != nil {
		p.fail(changed, true)
		return
	}

	if p.push && p.pull {
		p.mu.Lock()
		until := now.Add(syncDebounce)
		if writeToSide == sideDest {
			p.debounceDestTil = until
		} else {
			p.debounceSrcTil = until
		}
		p.mu.Unlock()
	}

	if _, err := destLink.Apply(result, splotval.ModifierSet{}).Wait(context.Background()); err != nil {
		p.fail(changed, true)
		return
	}

	p.mu.Lock()
	p.count++
	p.last = result
	p.trap = ""
	p.state = PairingArmed
	p.mu.Unlock()
}

func (p *Pairing) pathFor(s side) string {
	if s == sideSource {
		return p.sourcePath
	}
	return p.destPath
}

func (p *Pairing) rearm() {
	p.mu.Lock()
	if p.state == PairingFiring {
		p.state = PairingArmed
	}
	p.mu.Unlock()
}

func (p *Pairing) fail(changed side, writeFailed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case changed == sideSource && writeFailed:
		p.trap = "dest-write-fail"
	case changed == sideDest && writeFailed:
		p.trap = "src-write-fail"
	case changed == sideSource && !writeFailed:
		p.trap = "src-read-fail"
	default:
		p.trap = "dest-read-fail"
	}
	if p.state == PairingFiring {
		p.state = PairingArmed
	}
}
