package alerts

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"

	"github.com/schemaguard/schemaguard/internal/metrics"
	"github.com/schemaguard/schemaguard/pkg/logger"
)

// Config configures the alert system.
type Config struct {
	ThrottleWindowMinutes int
	SweepIntervalMinutes  int
	HistoryLimit          int
	DefaultSeverity       Severity
	EscalationRules       []EscalationRule
}

func (c *Config) applyDefaults() {
	if c.ThrottleWindowMinutes <= 0 {
		c.ThrottleWindowMinutes = 5
	}
	if c.SweepIntervalMinutes <= 0 {
		c.SweepIntervalMinutes = 10
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 1000
	}
	if c.DefaultSeverity == "" {
		c.DefaultSeverity = SeverityWarning
	}
}

// escalationState is the per-key occurrence counter. The counter is
// monotonically non-decreasing within its window and resets only when
// a rule fires or the window lapses. tier is the index of the rule the
// key is currently working toward; when a rule fires the counter resets
// and the tier advances, producing a ratchet instead of a flood of
// maximal-severity alerts.
type escalationState struct {
	count     int
	firstSeen time.Time
	lastSeen  time.Time
	tier      int
}

// System is the alert engine.
type System struct {
	cfg      Config
	logger   *logger.Logger
	counters *metrics.Set

	mu         sync.Mutex
	channels   []Channel
	history    []Alert
	throttle   map[string]time.Time
	escalation map[string]*escalationState

	scheduler *gocron.Scheduler
	now       func() time.Time
}

// NewSystem creates an alert system with the given channels.
func NewSystem(cfg Config, channels []Channel, counters *metrics.Set, log *logger.Logger) *System {
	cfg.applyDefaults()
	if counters == nil {
		counters = metrics.NewNop()
	}
	return &System{
		cfg:        cfg,
		logger:     log,
		counters:   counters,
		channels:   channels,
		throttle:   make(map[string]time.Time),
		escalation: make(map[string]*escalationState),
		now:        time.Now,
	}
}

// SetClock overrides the time source.
func (s *System) SetClock(now func() time.Time) {
	s.now = now
}

// AddChannel registers an additional delivery channel.
func (s *System) AddChannel(ch Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels = append(s.channels, ch)
}

// Start launches the periodic throttle-map sweep.
func (s *System) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scheduler != nil {
		return fmt.Errorf("alert system already started")
	}
	s.scheduler = gocron.NewScheduler(time.UTC)
	interval := time.Duration(s.cfg.SweepIntervalMinutes) * time.Minute
	if _, err := s.scheduler.Every(interval).Do(s.SweepThrottle); err != nil {
		return fmt.Errorf("failed to schedule throttle sweep: %w", err)
	}
	s.scheduler.StartAsync()
	return nil
}

// Stop halts the sweep task.
func (s *System) Stop() {
	s.mu.Lock()
	scheduler := s.scheduler
	s.scheduler = nil
	s.mu.Unlock()
	if scheduler != nil {
		scheduler.Stop()
	}
}

// TriggerDeprecatedElementAccess raises an alert for an access to a
// deprecated element.
func (s *System) TriggerDeprecatedElementAccess(elementType, elementName, sourceType, queryType string) {
	key := fmt.Sprintf("deprecated_access_%s_%s", elementType, elementName)
	s.fire(key, Alert{
		Severity: s.cfg.DefaultSeverity,
		Type:     TypeDeprecatedElementAccess,
		Title:    fmt.Sprintf("Deprecated %s accessed: %s", elementType, elementName),
		Message:  fmt.Sprintf("%s query from %s touched deprecated %s %s", queryType, sourceType, elementType, elementName),
		Metadata: map[string]string{
			"element_type": elementType,
			"element_name": elementName,
			"source_type":  sourceType,
			"query_type":   queryType,
		},
	})
}

// TriggerThresholdAlert raises an alert when an access-count threshold
// is exceeded.
func (s *System) TriggerThresholdAlert(elementName string, count, threshold int, window string) {
	key := fmt.Sprintf("threshold_%s", elementName)
	s.fire(key, Alert{
		Severity: SeverityError,
		Type:     TypeThresholdExceeded,
		Title:    fmt.Sprintf("Access threshold exceeded: %s", elementName),
		Message:  fmt.Sprintf("%d accesses in %s (threshold %d)", count, window, threshold),
		Metadata: map[string]string{
			"element_name": elementName,
			"count":        fmt.Sprintf("%d", count),
			"threshold":    fmt.Sprintf("%d", threshold),
		},
	})
}

// TriggerUsageSpike raises an alert when usage jumps above its baseline.
func (s *System) TriggerUsageSpike(elementName string, current, baseline float64) {
	key := fmt.Sprintf("spike_%s", elementName)
	s.fire(key, Alert{
		Severity: SeverityWarning,
		Type:     TypeUsageSpike,
		Title:    fmt.Sprintf("Usage spike: %s", elementName),
		Message:  fmt.Sprintf("current rate %.1f/day against baseline %.1f/day", current, baseline),
		Metadata: map[string]string{"element_name": elementName},
	})
}

// TriggerSystemError reports an unexpected failure inside a periodic
// task or component. Always critical, never throttled away silently.
func (s *System) TriggerSystemError(component string, err error) {
	key := fmt.Sprintf("system_error_%s", component)
	s.fire(key, Alert{
		Severity: SeverityCritical,
		Type:     TypeSystemError,
		Title:    fmt.Sprintf("System error in %s", component),
		Message:  err.Error(),
		Metadata: map[string]string{"component": component},
	})
}

// fire applies escalation and throttling, then dispatches. An alert
// promoted by an escalation rule bypasses the throttle so that the
// raised severity is always delivered.
func (s *System) fire(key string, alert Alert) {
	now := s.now()
	alert.ID = uuid.NewString()
	alert.Timestamp = now

	s.mu.Lock()
	escalated := s.applyEscalation(key, &alert, now)

	if !escalated {
		if last, ok := s.throttle[key]; ok {
			window := time.Duration(s.cfg.ThrottleWindowMinutes) * time.Minute
			if now.Sub(last) < window {
				s.mu.Unlock()
				s.counters.AlertsThrottled.Inc()
				return
			}
		}
	}
	s.throttle[key] = now

	s.history = append(s.history, alert)
	if len(s.history) > s.cfg.HistoryLimit {
		s.history = append(s.history[:0:0], s.history[len(s.history)-s.cfg.HistoryLimit:]...)
	}
	channels := make([]Channel, len(s.channels))
	copy(channels, s.channels)
	s.mu.Unlock()

	s.counters.AlertsDispatched.WithLabelValues(string(alert.Severity)).Inc()
	s.dispatch(channels, alert)
}

// applyEscalation ticks the per-key counter and evaluates the rules in
// order. When a rule's window and count are satisfied the severity is
// raised to the rule's target and the counter resets for the next tier.
// Caller holds the lock.
func (s *System) applyEscalation(key string, alert *Alert, now time.Time) bool {
	if len(s.cfg.EscalationRules) == 0 {
		return false
	}

	st, ok := s.escalation[key]
	if !ok {
		st = &escalationState{}
		s.escalation[key] = st
	}
	if st.tier >= len(s.cfg.EscalationRules) {
		st.tier = 0
	}

	rule := s.cfg.EscalationRules[st.tier]
	window := time.Duration(rule.TimeWindowMinutes) * time.Minute

	if st.count == 0 {
		st.firstSeen = now
	} else if now.Sub(st.firstSeen) > window {
		// The window lapsed without the rule firing; start over.
		st.count = 0
		st.firstSeen = now
		st.tier = 0
		rule = s.cfg.EscalationRules[0]
		window = time.Duration(rule.TimeWindowMinutes) * time.Minute
	}
	st.count++
	st.lastSeen = now

	if st.count >= rule.TriggerCount && now.Sub(st.firstSeen) <= window {
		if rule.EscalateTo.AtLeast(alert.Severity) {
			alert.Severity = rule.EscalateTo
		}
		alert.Type = TypeEscalation
		if alert.Metadata == nil {
			alert.Metadata = make(map[string]string)
		}
		alert.Metadata["escalated"] = "true"
		alert.Metadata["occurrences"] = fmt.Sprintf("%d", st.count)

		// Reset the baseline and advance to the next tier.
		st.count = 0
		st.firstSeen = time.Time{}
		st.tier++
		if st.tier >= len(s.cfg.EscalationRules) {
			st.tier = 0
		}
		return true
	}
	return false
}

// dispatch fans the alert out to every channel whose severity filter
// admits it. Failures are logged per channel and never propagate.
func (s *System) dispatch(channels []Channel, alert Alert) {
	for _, ch := range channels {
		if !ch.Accepts(alert.Severity) {
			continue
		}
		if err := ch.Send(alert); err != nil {
			s.counters.ChannelErrors.WithLabelValues(ch.Name()).Inc()
			s.logger.Errorf("channel %s failed to deliver alert %s: %v", ch.Name(), alert.ID, err)
		}
	}
}

// SweepThrottle evicts throttle entries older than the throttle window
// and escalation state for keys idle beyond the widest rule window, so
// both maps stay bounded by the set of recently active keys. Evicting
// an escalation entry also forgets its tier; a key that goes quiet
// restarts the ratchet from the first rule.
func (s *System) SweepThrottle() {
	window := time.Duration(s.cfg.ThrottleWindowMinutes) * time.Minute
	now := s.now()

	widest := window
	for _, rule := range s.cfg.EscalationRules {
		if w := time.Duration(rule.TimeWindowMinutes) * time.Minute; w > widest {
			widest = w
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, last := range s.throttle {
		if now.Sub(last) >= window {
			delete(s.throttle, key)
		}
	}
	for key, st := range s.escalation {
		if now.Sub(st.lastSeen) >= widest {
			delete(s.escalation, key)
		}
	}
}

// AcknowledgeAlert marks an alert acknowledged. Idempotent; throttling
// and escalation state are unaffected.
func (s *System) AcknowledgeAlert(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.history {
		if s.history[i].ID == id {
			s.history[i].Acknowledged = true
			return true
		}
	}
	return false
}

// ResolveAlert marks an alert resolved. Idempotent.
func (s *System) ResolveAlert(id string) bool {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.history {
		if s.history[i].ID == id {
			if s.history[i].ResolvedAt == nil {
				s.history[i].ResolvedAt = &now
			}
			return true
		}
	}
	return false
}

// History returns a copy of retained alerts, oldest first.
func (s *System) History() []Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Alert, len(s.history))
	copy(out, s.history)
	return out
}
