package services

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// watchdogTimeout is the silence window after which the appliance is declared
// offline. An appliance that holds the socket open but stops emitting traffic
// for longer than this is indistinguishable from a disconnect.
const watchdogTimeout = 120 * time.Second

// WatchdogService tracks appliance liveness. Every inbound envelope rearms a
// fixed countdown; if the countdown elapses without traffic the watchdog
// declares the appliance offline. The connection manager can also force
// offline immediately when the socket drops.
type WatchdogService struct {
	logger   *zap.Logger
	onChange func(online bool)
	timeout  time.Duration

	mu     sync.Mutex
	timer  *time.Timer
	online bool
}

// NewWatchdogService creates the watchdog. onChange is invoked once per
// online/offline transition, never for repeated observations of the same
// state.
func NewWatchdogService(logger *zap.Logger, onChange func(online bool)) *WatchdogService {
	return &WatchdogService{
		logger:   logger,
		onChange: onChange,
		timeout:  watchdogTimeout,
	}
}

// Touch rearms the silence countdown. Called for every inbound frame. The
// previous countdown is always cancelled first so no two coexist.
func (w *WatchdogService) Touch() {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.timeout, w.expire)
	wasOffline := !w.online
	w.online = true
	w.mu.Unlock()

	if wasOffline {
		w.logger.Info("Appliance online")
		if w.onChange != nil {
			w.onChange(true)
		}
	}
}

// ForceOffline declares the appliance offline immediately. Used when the
// socket closes: without a socket, waiting out the countdown is pointless.
func (w *WatchdogService) ForceOffline() {
	w.declareOffline("connection closed")
}

func (w *WatchdogService) expire() {
	w.declareOffline("silence window elapsed")
}

func (w *WatchdogService) declareOffline(reason string) {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	wasOnline := w.online
	w.online = false
	w.mu.Unlock()

	if wasOnline {
		w.logger.Warn("Appliance offline", zap.String("reason", reason))
		if w.onChange != nil {
			w.onChange(false)
		}
	}
}

// Online reports the current liveness observation.
func (w *WatchdogService) Online() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.online
}

// Stop cancels the countdown without emitting a transition. Teardown only.
func (w *WatchdogService) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}
