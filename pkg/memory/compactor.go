package memory

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dotsetgreg/studiogm/pkg/logger"
)

const (
	compositeSummaryPrefix = "[Composite summary] "
	compositeSummaryRunes  = 200
	minSummaryLineRunes    = 10
)

const summarySystemPrompt = "You are a memory summarization assistant. You condense several event memories into long-term memory summaries."

const summaryUserTemplate = `You are the memory summarization assistant of a game studio management simulator.
Condense the event memories below into 1-2 concise long-term memories.

Requirements:
1. Keep key decisions and their outcomes
2. Keep important names of people, companies and games
3. Keep key figures (changes in funds, sales, and so on)
4. Each summary is 100-150 characters long
5. Start each summary with the time range in brackets, e.g. [2024-1-1 to 2024-3-15]
6. Output the summaries directly, one per line, without numbering

Memories to summarize:
%s`

// Summarize condenses batch into one or two long-term memories. It never
// fails: without a summary endpoint, or when the call errors or returns
// nothing usable, it degrades to a truncated composite of the batch. A call
// that overlaps a running summarization returns nil immediately.
func (x *Index) Summarize(ctx context.Context, batch []string) []string {
	if len(batch) == 0 {
		return nil
	}
	if !x.summarizing.CompareAndSwap(false, true) {
		logger.WarnC("vector", "Summarization already running, skipping")
		return nil
	}
	defer x.summarizing.Store(false)

	if x.summarize == nil {
		logger.WarnC("vector", "No summary endpoint configured, using composite summary")
		return []string{compositeSummary(batch)}
	}

	numbered := make([]string, len(batch))
	for i, m := range batch {
		numbered[i] = fmt.Sprintf("%d. %s", i+1, m)
	}
	out, err := x.summarize(ctx, summarySystemPrompt, fmt.Sprintf(summaryUserTemplate, strings.Join(numbered, "\n")))
	if err != nil {
		logger.WarnCF("vector", "Summarization failed, using composite summary", map[string]interface{}{
			"error": err,
			"batch": len(batch),
		})
		return []string{compositeSummary(batch)}
	}

	var summaries []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if utf8.RuneCountInString(line) > minSummaryLineRunes {
			summaries = append(summaries, line)
		}
	}
	if len(summaries) == 0 {
		logger.WarnC("vector", "Summarization returned no usable lines, using composite summary")
		return []string{compositeSummary(batch)}
	}
	logger.InfoCF("vector", "Memories summarized", map[string]interface{}{
		"input":  len(batch),
		"output": len(summaries),
	})
	return summaries
}

func compositeSummary(batch []string) string {
	joined := strings.Join(batch, "; ")
	if utf8.RuneCountInString(joined) > compositeSummaryRunes {
		joined = string([]rune(joined)[:compositeSummaryRunes])
	}
	return compositeSummaryPrefix + joined
}

// CheckAndSummarize summarizes the oldest BatchSize mid-term items once
// mid-term reaches MidTermThreshold, and indexes the summaries. When the
// summarizer is busy nothing is consumed, so the next eligible turn retries
// the same items.
func (x *Index) CheckAndSummarize(ctx context.Context, midTerm []string) SummaryResult {
	if !x.policy.AutoSummarize || len(midTerm) < x.policy.MidTermThreshold {
		return SummaryResult{}
	}
	batch := midTerm[:min(x.policy.BatchSize, len(midTerm))]
	summaries := x.Summarize(ctx, batch)
	if len(summaries) == 0 {
		return SummaryResult{}
	}

	if x.Enabled() {
		for _, s := range summaries {
			if _, err := x.AddMemory(ctx, s, ImportanceSummary); err != nil {
				logger.WarnCF("vector", "Failed to index summary", map[string]interface{}{"error": err})
			}
		}
	}
	return SummaryResult{
		Triggered:     true,
		Summaries:     summaries,
		ConsumedCount: len(batch),
	}
}
