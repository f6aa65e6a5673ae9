package planner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nextlevelbuilder/helperd/internal/queue"
)

// DefaultRetention is how long terminal job records are kept before GC.
const DefaultRetention = 24 * time.Hour

// Service runs the periodic window expansion and consumes re-plan
// requests. Re-plans are serialised through a single consumer so two
// mutations for the same user never plan concurrently.
type Service struct {
	planner   *Planner
	span      time.Duration
	retention time.Duration
	replanCh  chan string
	running   bool
	stopChan  chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
}

// NewService creates the expansion service. Zero span or retention fall
// back to the 10 min / 24 h defaults.
func NewService(p *Planner, span, retention time.Duration) *Service {
	if span <= 0 {
		span = DefaultExpandSpan
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Service{
		planner:   p,
		span:      span,
		retention: retention,
		replanCh:  make(chan string, 64),
	}
}

// Start begins the expansion loop and the re-plan consumer.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.stopChan = make(chan struct{})
	s.running = true

	s.wg.Add(2)
	go s.expandLoop(s.stopChan)
	go s.replanLoop(s.stopChan)

	slog.Info("planner service started", "span", s.span, "retention", s.retention)
}

// Stop halts both loops and waits for in-flight work to finish.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
	slog.Info("planner service stopped")
}

// RequestReplan queues a re-plan of userID. Non-blocking; when the buffer
// is full the request is dropped and the next expansion pass catches up.
func (s *Service) RequestReplan(userID string) {
	select {
	case s.replanCh <- userID:
	default:
		slog.Warn("planner: replan queue full, dropping request", "user", userID)
	}
}

func (s *Service) expandLoop(stop <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.span)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.span)
			now := time.Now()
			if err := s.planner.ExpandWindow(ctx, now, s.span); err != nil {
				slog.Error("planner: window expansion failed", "error", err)
			}
			if err := s.planner.queue.GC(ctx, now, s.retention); err != nil {
				slog.Error("planner: gc failed", "error", err)
			}
			cancel()
		}
	}
}

func (s *Service) replanLoop(stop <-chan struct{}) {
	defer s.wg.Done()

	for {
		select {
		case <-stop:
			return
		case userID := <-s.replanCh:
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			if err := s.planner.ReplanUser(ctx, userID, time.Now()); err != nil {
				slog.Error("planner: replan failed", "user", userID, "error", err)
			}
			cancel()
		}
	}
}

// Queue exposes the planner's queue for boot-time GC and introspection.
func (s *Service) Queue() *queue.ExecutionQueue { return s.planner.queue }
