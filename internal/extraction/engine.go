package extraction

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/fbik/avito-monitor-app/internal/config"
	"github.com/fbik/avito-monitor-app/internal/logger"
	"github.com/fbik/avito-monitor-app/internal/page"
	"github.com/fbik/avito-monitor-app/pkg/cel"
	"github.com/fbik/avito-monitor-app/pkg/metrics"
	"github.com/fbik/avito-monitor-app/pkg/models"
)

const defaultPrefixLength = 50

// Engine turns a raw page snapshot into candidate messages from allowed senders.
type Engine struct {
	targets   []string
	filter    *cel.Filter
	hasher    *Hasher
	prefixLen int
	logger    logger.Logger
}

func NewEngine(cfg config.ExtractionConfig, log logger.Logger) (*Engine, error) {
	targets := make([]string, 0, len(cfg.TargetSenders))
	for _, t := range cfg.TargetSenders {
		if t = strings.TrimSpace(t); t != "" {
			targets = append(targets, strings.ToLower(t))
		}
	}

	e := &Engine{
		targets:   targets,
		hasher:    NewHasher(cfg.HashAlgorithm),
		prefixLen: cfg.IDPrefixLength,
		logger:    log,
	}
	if e.prefixLen <= 0 {
		e.prefixLen = defaultPrefixLength
	}

	if cfg.FilterExpression != "" {
		evaluator, err := cel.NewEvaluator()
		if err != nil {
			return nil, err
		}
		filter, err := evaluator.CompileFilter(cfg.FilterExpression)
		if err != nil {
			return nil, fmt.Errorf("extraction.filter_expression: %w", err)
		}
		e.filter = filter
	}

	return e, nil
}

// Targets returns the normalized allow-list.
func (e *Engine) Targets() []string {
	out := make([]string, len(e.targets))
	copy(out, e.targets)
	return out
}

// Extract never fails: a nil snapshot or unusable items yield fewer candidates.
func (e *Engine) Extract(ctx context.Context, snapshot *page.Snapshot) []models.Candidate {
	if snapshot.Len() == 0 {
		return []models.Candidate{}
	}

	var senderFiltered, empty, exprFiltered, exprErrors int
	candidates := make([]models.Candidate, 0, len(snapshot.Items))

	for position, item := range snapshot.Items {
		sender := strings.TrimSpace(item.Sender)
		text := strings.TrimSpace(item.Text)

		if !e.senderAllowed(sender) {
			senderFiltered++
			continue
		}
		if text == "" {
			empty++
			continue
		}

		c := models.Candidate{
			ID:          e.candidateID(sender, text, position),
			Sender:      sender,
			Text:        text,
			DisplayTime: strings.TrimSpace(item.Time),
			IsNew:       item.Unread,
			Position:    position,
		}

		if e.filter != nil {
			ok, err := e.filter.Match(ctx, c)
			if err != nil {
				exprErrors++
				e.logger.WarnwCtx(ctx, "Filter expression failed, dropping candidate",
					"error", err,
					"position", position,
				)
				continue
			}
			if !ok {
				exprFiltered++
				continue
			}
		}

		candidates = append(candidates, c)
	}

	metrics.AddCandidates("kept", len(candidates))
	metrics.AddCandidates("sender_filtered", senderFiltered)
	metrics.AddCandidates("empty", empty)
	metrics.AddCandidates("expression_filtered", exprFiltered)
	metrics.AddCandidates("expression_error", exprErrors)

	e.logger.DebugwCtx(ctx, "Extraction finished",
		"raw_items", snapshot.Len(),
		"candidates", len(candidates),
		"sender_filtered", senderFiltered,
		"empty", empty,
	)

	return candidates
}

func (e *Engine) senderAllowed(sender string) bool {
	if sender == "" {
		return false
	}
	lower := strings.ToLower(sender)
	for _, t := range e.targets {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}

func (e *Engine) candidateID(sender, text string, position int) string {
	prefix := text
	if runes := []rune(text); len(runes) > e.prefixLen {
		prefix = string(runes[:e.prefixLen])
	}
	return e.hasher.ComputeID(sender, prefix, strconv.Itoa(position))
}
