package regler_test

import (
	"testing"
	"time"
)

func TestReloadSupervisor(t *testing.T) {
	view := makeTestView(t, nil)
	rs := view.NewReloadSupervisor(10 * time.Millisecond)

	if view.Supervisor != rs {
		t.Fatalf("view does not know its supervisor")
	}

	t.Run("Reloads on the interval", func(t *testing.T) {
		rs.Start()
		time.Sleep(60 * time.Millisecond)
		rs.Stop()

		assertStringContains(t, scrape(t, view.Stats), "regler_load_seconds_count")
		view.MU.Lock()
		status := view.Status
		view.MU.Unlock()
		assertString(t, status, "reloaded 2 trends")
	})

	t.Run("Stop twice is safe", func(t *testing.T) {
		rs.Stop()
		rs.Stop()
	})

	t.Run("Restart", func(t *testing.T) {
		rs.Start()
		rs.Restart()
		if rs.StopChan == nil {
			t.Errorf("supervisor not running after restart")
		}
		rs.Stop()
		if rs.StopChan != nil {
			t.Errorf("supervisor still running after stop")
		}
	})
}
