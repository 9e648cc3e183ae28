package regler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
)

// ReloadSupervisor re-reads the trend sources on an interval
type ReloadSupervisor struct {
	View     *View
	Interval time.Duration
	Ticker   *time.Ticker
	StopChan chan struct{}
	WG       sync.WaitGroup
}

// NewReloadSupervisor is a wrapper around the View that manages the reload goroutine.
// They are strongly coupled, one knows about the other
func (v *View) NewReloadSupervisor(interval time.Duration) *ReloadSupervisor {
	rs := &ReloadSupervisor{
		View:     v,
		Interval: interval,
	}
	v.Supervisor = rs
	return rs
}

// Start the ReloadSupervisor
func (p *ReloadSupervisor) Start() {
	p.StopChan = make(chan struct{})
	p.Ticker = time.NewTicker(p.Interval)
	stop := p.StopChan
	ticker := p.Ticker

	p.WG.Add(1)
	go func() {
		defer p.WG.Done()
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := p.View.Reload(context.Background()); err != nil {
					slog.Warn("Scheduled reload failed", slog.Any("Error", err))
				}
				if p.View.Screen != nil {
					p.View.Screen.PostEvent(tcell.NewEventInterrupt(nil))
				}
			case <-stop:
				return
			}
		}
	}()
}

// Stop the ReloadSupervisor, safe to call more than once
func (p *ReloadSupervisor) Stop() {
	if p.StopChan != nil {
		close(p.StopChan)
		p.StopChan = nil
		p.WG.Wait()
	}
}

// Restart the ReloadSupervisor
func (p *ReloadSupervisor) Restart() {
	p.Stop()
	p.Start()
}
