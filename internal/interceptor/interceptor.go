// Package interceptor inspects SQL text for references to deprecated
// elements. It is an advisory tap, not a proxy: callers hand it
// statements before execution and it records matches through the
// monitor, optionally blocking in strict mode.
package interceptor

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/schemaguard/schemaguard/internal/deprecation"
	"github.com/schemaguard/schemaguard/internal/telemetry"
	"github.com/schemaguard/schemaguard/pkg/logger"
)

// Recorder is the monitor surface the interceptor reports into.
type Recorder interface {
	MonitoredElements() []deprecation.DeprecatedElement
	RecordAccess(elementName, elementType string, source telemetry.AccessSource, queryType telemetry.QueryType, metadata map[string]string)
}

// BlockedStatementError is returned in strict mode when a statement
// touches a deprecated element.
type BlockedStatementError struct {
	Elements []string
}

func (e *BlockedStatementError) Error() string {
	return fmt.Sprintf("statement blocked: references deprecated elements %s", strings.Join(e.Elements, ", "))
}

// Config configures the interceptor.
type Config struct {
	// StrictMode makes Inspect return a BlockedStatementError on any
	// match instead of just recording it.
	StrictMode bool
}

// Interceptor scans statements against the set of monitored elements.
type Interceptor struct {
	cfg      Config
	recorder Recorder
	logger   *logger.Logger

	mu       sync.RWMutex
	pattern  *regexp.Regexp
	elements map[string]deprecation.DeprecatedElement
}

// New creates an interceptor and builds the initial match pattern from
// the recorder's current element set.
func New(cfg Config, recorder Recorder, log *logger.Logger) *Interceptor {
	i := &Interceptor{
		cfg:      cfg,
		recorder: recorder,
		logger:   log,
	}
	i.Refresh()
	return i
}

// Refresh rebuilds the match pattern from the monitor's current
// element set. Call it after elements are added or removed.
func (i *Interceptor) Refresh() {
	elements := i.recorder.MonitoredElements()
	byName := make(map[string]deprecation.DeprecatedElement, len(elements))
	names := make([]string, 0, len(elements))
	for _, el := range elements {
		lower := strings.ToLower(el.DeprecatedName)
		if _, ok := byName[lower]; ok {
			continue
		}
		byName[lower] = el
		names = append(names, regexp.QuoteMeta(lower))
	}

	var pattern *regexp.Regexp
	if len(names) > 0 {
		pattern = regexp.MustCompile(`(?i)\b(` + strings.Join(names, "|") + `)\b`)
	}

	i.mu.Lock()
	i.pattern = pattern
	i.elements = byName
	i.mu.Unlock()
}

// Inspect scans one statement. Every distinct deprecated element the
// statement references is recorded as an access. In strict mode a match
// also returns a BlockedStatementError; the caller must not execute the
// statement.
func (i *Interceptor) Inspect(sql string, source telemetry.AccessSource) error {
	i.mu.RLock()
	pattern := i.pattern
	elements := i.elements
	i.mu.RUnlock()

	if pattern == nil {
		return nil
	}

	matches := pattern.FindAllString(sql, -1)
	if len(matches) == 0 {
		return nil
	}

	queryType := classifyStatement(sql)
	seen := make(map[string]bool, len(matches))
	var hit []string
	for _, match := range matches {
		lower := strings.ToLower(match)
		if seen[lower] {
			continue
		}
		seen[lower] = true
		el, ok := elements[lower]
		if !ok {
			continue
		}
		hit = append(hit, el.DeprecatedName)
		i.recorder.RecordAccess(el.DeprecatedName, string(el.Type), source, queryType, map[string]string{
			"statement": truncate(sql, 500),
		})
	}

	if len(hit) == 0 {
		return nil
	}
	if i.cfg.StrictMode {
		i.logger.Warnf("blocked %s statement referencing %s", queryType, strings.Join(hit, ", "))
		return &BlockedStatementError{Elements: hit}
	}
	i.logger.Debugf("recorded %s statement referencing %s", queryType, strings.Join(hit, ", "))
	return nil
}

// classifyStatement derives the query type from the first keyword.
func classifyStatement(sql string) telemetry.QueryType {
	trimmed := strings.TrimSpace(sql)
	for strings.HasPrefix(trimmed, "--") {
		idx := strings.IndexByte(trimmed, '\n')
		if idx < 0 {
			return telemetry.QueryOther
		}
		trimmed = strings.TrimSpace(trimmed[idx+1:])
	}
	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return telemetry.QueryOther
	}
	switch strings.ToUpper(fields[0]) {
	case "SELECT", "WITH":
		return telemetry.QuerySelect
	case "INSERT":
		return telemetry.QueryInsert
	case "UPDATE":
		return telemetry.QueryUpdate
	case "DELETE":
		return telemetry.QueryDelete
	case "ALTER":
		return telemetry.QueryAlter
	case "CREATE":
		return telemetry.QueryCreate
	case "DROP":
		return telemetry.QueryDrop
	default:
		return telemetry.QueryOther
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
