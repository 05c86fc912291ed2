package normalize

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"abm-playbook-workers/internal/common/config"
	"abm-playbook-workers/internal/common/logger"
	"abm-playbook-workers/internal/common/metrics"
	"abm-playbook-workers/internal/models"

	"github.com/tidwall/gjson"
)

var (
	ErrAgentReportedFailure  = errors.New("AGENT_REPORTED_FAILURE")
	ErrPlaybookParseFailed   = errors.New("PLAYBOOK_PARSE_FAILED")
	ErrPlaybookProseResponse = errors.New("PLAYBOOK_PROSE_RESPONSE")
)

// Strategy names, in the order they are tried.
const (
	StrategyDirectResultPath = "direct_result_path"
	StrategyRecursiveLocate  = "recursive_locate"
	StrategyResponseMessage  = "response_message"
	StrategyRawResponse      = "raw_response"
	StrategySelfOrAlternate  = "self_or_alternate"
	StrategyNestedText       = "nested_text"
	StrategyDoubleWrapped    = "double_wrapped"
	StrategyLongestTextBlob  = "longest_text_blob"
)

type Options struct {
	Schema        Schema
	MaxDepth      int
	MinTextBlob   int
	PreviewLength int
	ExcerptLength int
}

func DefaultOptions() Options {
	return Options{
		Schema:        SchemaMultiReport,
		MaxDepth:      DefaultMaxDepth,
		MinTextBlob:   50,
		PreviewLength: 500,
		ExcerptLength: 300,
	}
}

// OptionsFromConfig overlays the playbook section on DefaultOptions.
func OptionsFromConfig(cfg config.PlaybookConfig) (Options, error) {
	opts := DefaultOptions()
	if cfg.Schema != "" {
		schema, err := ParseSchema(cfg.Schema)
		if err != nil {
			return Options{}, err
		}
		opts.Schema = schema
	}
	if cfg.MaxDepth > 0 {
		opts.MaxDepth = cfg.MaxDepth
	}
	if cfg.MinTextBlob > 0 {
		opts.MinTextBlob = cfg.MinTextBlob
	}
	if cfg.PreviewLength > 0 {
		opts.PreviewLength = cfg.PreviewLength
	}
	if cfg.ExcerptLength > 0 {
		opts.ExcerptLength = cfg.ExcerptLength
	}
	return opts, nil
}

// Outcome is a normalized playbook and the strategy that found it.
type Outcome struct {
	Playbook *models.Playbook
	Strategy string
}

// NormalizationError is returned when no strategy finds a payload. It never
// accompanies a partial playbook.
type NormalizationError struct {
	Tried        []string
	Preview      string
	ProseOnly    bool
	ProseExcerpt string
}

func (e *NormalizationError) Error() string {
	if e.ProseOnly {
		return fmt.Sprintf("agent answered in prose instead of playbook data: %q", e.ProseExcerpt)
	}
	return fmt.Sprintf("no playbook payload found (tried %s)", strings.Join(e.Tried, ", "))
}

func (e *NormalizationError) Unwrap() error {
	if e.ProseOnly {
		return ErrPlaybookProseResponse
	}
	return ErrPlaybookParseFailed
}

type strategy struct {
	name string
	run  func(root gjson.Result, text string) (gjson.Result, bool)
}

type Normalizer struct {
	opts       Options
	logger     logger.Logger
	now        func() time.Time
	strategies []strategy
}

func NewNormalizer(opts Options, log logger.Logger) *Normalizer {
	def := DefaultOptions()
	if opts.Schema == "" {
		opts.Schema = def.Schema
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = def.MaxDepth
	}
	if opts.MinTextBlob <= 0 {
		opts.MinTextBlob = def.MinTextBlob
	}
	if opts.PreviewLength <= 0 {
		opts.PreviewLength = def.PreviewLength
	}
	if opts.ExcerptLength <= 0 {
		opts.ExcerptLength = def.ExcerptLength
	}

	n := &Normalizer{
		opts:   opts,
		logger: log.WithFields(map[string]interface{}{"component": "normalizer", "schema": string(opts.Schema)}),
		now:    time.Now,
	}
	n.strategies = []strategy{
		{StrategyDirectResultPath, n.directResultPath},
		{StrategyRecursiveLocate, n.recursiveLocate},
		{StrategyResponseMessage, n.responseMessage},
		{StrategyRawResponse, n.rawResponse},
		{StrategySelfOrAlternate, n.selfOrAlternate},
		{StrategyNestedText, n.nestedText},
		{StrategyDoubleWrapped, n.doubleWrapped},
		{StrategyLongestTextBlob, n.longestTextBlob},
	}
	return n
}

// Normalize runs the extraction strategies against a raw agent response and
// coerces the first payload found. A response that reports its own failure
// is rejected with ErrAgentReportedFailure before any strategy runs. An
// error alongside success:true is only a warning unless no payload is found.
func (n *Normalizer) Normalize(raw []byte) (*Outcome, error) {
	text := string(raw)
	root := n.parseRoot(text)

	agentErr := transportFailure(root)
	if agentErr != nil {
		if root.Get("success").Type != gjson.True {
			metrics.PlaybookNormalizeFailures.WithLabelValues("agent_reported_failure").Inc()
			n.logger.Warn("agent reported failure", map[string]interface{}{"error": agentErr.Error()})
			return nil, agentErr
		}
		n.logger.Warn("agent reported an error alongside success", map[string]interface{}{"error": agentErr.Error()})
	}

	tried := make([]string, 0, len(n.strategies))
	for _, s := range n.strategies {
		tried = append(tried, s.name)
		found, ok := n.attempt(s, root, text)
		if !ok {
			n.logger.Debug("strategy found no payload", map[string]interface{}{"strategy": s.name})
			continue
		}

		metrics.PlaybookNormalizeStrategy.WithLabelValues(s.name).Inc()
		n.logger.Info("playbook payload located", map[string]interface{}{"strategy": s.name})
		return &Outcome{Playbook: n.coerce(found, root), Strategy: s.name}, nil
	}

	if agentErr != nil {
		metrics.PlaybookNormalizeFailures.WithLabelValues("agent_reported_failure").Inc()
		n.logger.Warn("agent reported failure", map[string]interface{}{"error": agentErr.Error(), "tried": tried})
		return nil, agentErr
	}

	nerr := &NormalizationError{
		Tried:   tried,
		Preview: truncate(text, n.opts.PreviewLength),
	}
	if blob := longestString(root, text); utf8.RuneCountInString(blob) >= n.opts.MinTextBlob && isProse(blob) {
		nerr.ProseOnly = true
		nerr.ProseExcerpt = truncate(strings.TrimSpace(blob), n.opts.ExcerptLength)
	}

	reason := "parse_failed"
	if nerr.ProseOnly {
		reason = "prose_response"
	}
	metrics.PlaybookNormalizeFailures.WithLabelValues(reason).Inc()
	n.logger.Warn("no playbook payload found", map[string]interface{}{
		"tried":     tried,
		"proseOnly": nerr.ProseOnly,
		"preview":   nerr.Preview,
	})
	return nil, nerr
}

// attempt isolates a strategy so that a panic inside one hypothesis is
// treated like any other miss.
func (n *Normalizer) attempt(s strategy, root gjson.Result, text string) (found gjson.Result, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Warn("strategy panicked", map[string]interface{}{"strategy": s.name, "panic": fmt.Sprint(r)})
			found, ok = gjson.Result{}, false
		}
	}()
	return s.run(root, text)
}

func (n *Normalizer) parseRoot(text string) gjson.Result {
	if gjson.Valid(text) {
		return gjson.Parse(text)
	}
	if r, ok := ParseLoosely(text); ok {
		return r
	}
	return gjson.Result{}
}

func transportFailure(root gjson.Result) error {
	if !root.IsObject() {
		return nil
	}
	msg := ""
	if e := root.Get("error"); e.Exists() {
		switch {
		case e.Type == gjson.String:
			msg = strings.TrimSpace(e.Str)
		case e.IsObject():
			msg = str(e.Get("message"))
			if msg == "" {
				msg = e.Raw
			}
		}
	}
	if root.Get("success").Type == gjson.False {
		if msg == "" {
			msg = "agent call reported success=false"
		}
		return fmt.Errorf("%w: %s", ErrAgentReportedFailure, msg)
	}
	if msg != "" {
		return fmt.Errorf("%w: %s", ErrAgentReportedFailure, msg)
	}
	return nil
}

func (n *Normalizer) locate(node gjson.Result) (gjson.Result, bool) {
	return Locate(node, n.opts.Schema, 0, n.opts.MaxDepth)
}

func (n *Normalizer) locateString(v gjson.Result) (gjson.Result, bool) {
	if v.Type != gjson.String {
		return gjson.Result{}, false
	}
	parsed, ok := ParseLoosely(v.Str)
	if !ok {
		return gjson.Result{}, false
	}
	return n.locate(parsed)
}

func (n *Normalizer) directResultPath(root gjson.Result, _ string) (gjson.Result, bool) {
	result := root.Get("response.result")
	if n.opts.Schema.Matches(result) {
		return result, true
	}
	return gjson.Result{}, false
}

func (n *Normalizer) recursiveLocate(root gjson.Result, _ string) (gjson.Result, bool) {
	return n.locate(root)
}

func (n *Normalizer) responseMessage(root gjson.Result, _ string) (gjson.Result, bool) {
	return n.locateString(root.Get("response.message"))
}

func (n *Normalizer) rawResponse(root gjson.Result, _ string) (gjson.Result, bool) {
	return n.locateString(root.Get("raw_response"))
}

func (n *Normalizer) selfOrAlternate(root gjson.Result, _ string) (gjson.Result, bool) {
	for _, candidate := range []gjson.Result{root, root.Get("data"), root.Get("response.data")} {
		if n.opts.Schema.Matches(candidate) {
			return candidate, true
		}
	}
	return gjson.Result{}, false
}

func (n *Normalizer) nestedText(root gjson.Result, _ string) (gjson.Result, bool) {
	for _, path := range []string{"response.result.text", "response.text"} {
		if found, ok := n.locateString(root.Get(path)); ok {
			return found, true
		}
	}
	return gjson.Result{}, false
}

func (n *Normalizer) doubleWrapped(root gjson.Result, _ string) (gjson.Result, bool) {
	inner := root.Get("response.response")
	if inner.IsObject() {
		return n.locate(inner)
	}
	return n.locateString(inner)
}

func (n *Normalizer) longestTextBlob(root gjson.Result, text string) (gjson.Result, bool) {
	// a JSON-encoded string at the top level is parsed whatever its length
	if root.Type == gjson.String {
		parsed, ok := ParseLoosely(root.Str)
		if !ok {
			return gjson.Result{}, false
		}
		return n.locate(parsed)
	}

	blob := longestString(root, text)
	if utf8.RuneCountInString(blob) < n.opts.MinTextBlob {
		return gjson.Result{}, false
	}
	parsed, ok := ParseLoosely(blob)
	if !ok {
		return gjson.Result{}, false
	}
	return n.locate(parsed)
}

// longestString returns the longest string value anywhere under root, or the
// raw text itself when the response was not JSON at all.
func longestString(root gjson.Result, text string) string {
	if !root.Exists() {
		return text
	}
	longest := ""
	var walk func(v gjson.Result)
	walk = func(v gjson.Result) {
		switch {
		case v.Type == gjson.String:
			if len(v.Str) > len(longest) {
				longest = v.Str
			}
		case v.IsObject() || v.IsArray():
			v.ForEach(func(_, child gjson.Result) bool {
				walk(child)
				return true
			})
		}
	}
	walk(root)
	return longest
}

// isProse reports whether text reads as a conversational answer rather than
// a broken JSON document.
func isProse(text string) bool {
	t := strings.TrimSpace(text)
	return !strings.HasPrefix(t, "{") && !strings.HasPrefix(t, "[") && !strings.HasPrefix(t, "```")
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + "..."
}
