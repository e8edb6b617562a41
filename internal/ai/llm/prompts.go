package llm

import (
	"fmt"
	"strings"

	"market-advisor-bot/internal/advisor"
	"market-advisor-bot/internal/factors"
)

// System prompts for the two interaction surfaces
const (
	// SystemPromptNarrative turns a synthesized recommendation into subscriber-facing prose
	SystemPromptNarrative = `You are a market advisory writer for a private Bitcoin briefing service.

You will receive a computed recommendation together with the market factors behind it. Your job is to present it, not to second-guess it: the signal and confidence are fixed inputs.

Your response must be in valid JSON format with the following structure:
{
  "signal": "the signal exactly as given",
  "confidence": the confidence exactly as given,
  "headline": "one punchy line, under 80 characters",
  "commentary": "2-4 sentences explaining the factor picture in plain language",
  "caution": "one sentence on the main risk to this read"
}

Never invent price levels or factors that were not provided.
Keep the tone measured - no hype, no guarantees.`

	// SystemPromptAnswer handles free-form subscriber questions
	SystemPromptAnswer = `You are a market advisory assistant for a private Bitcoin briefing service.

Answer the subscriber's question using the current recommendation and market factors provided as context. If the question cannot be answered from that context, say so plainly rather than speculating.

Respond in plain text suitable for a chat message. Keep it under 150 words.
Never give guarantees about future prices and never present the advisory as financial advice.`
)

// BuildNarrativePrompt assembles the user prompt for recommendation prose
func BuildNarrativePrompt(rec advisor.Recommendation, fs factors.FeatureSet) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Recommendation: %s (confidence %d/10)\n", rec.Signal, rec.Confidence)
	fmt.Fprintf(&sb, "Factor tally: %d bullish, %d bearish, %d of %d available\n\n",
		rec.BullishCount, rec.BearishCount, rec.PopulatedCount, factors.NumKinds)

	sb.WriteString(formatFactors(fs))

	if rec.Levels != nil {
		fmt.Fprintf(&sb, "\nSuggested levels: entry %.2f, stop %.2f, targets %.2f / %.2f\n",
			rec.Levels.Entry, rec.Levels.StopLoss, rec.Levels.Target1, rec.Levels.Target2)
	}

	return sb.String()
}

// BuildAnswerPrompt assembles the user prompt for a free-form question
func BuildAnswerPrompt(question string, rec *advisor.Recommendation, fs factors.FeatureSet, hasFeatures bool) string {
	var sb strings.Builder

	sb.WriteString("Current advisory context:\n")
	if rec != nil {
		fmt.Fprintf(&sb, "Recommendation: %s (confidence %d/10), issued %s\n",
			rec.Signal, rec.Confidence, rec.Timestamp.Format("2006-01-02 15:04 MST"))
	} else {
		sb.WriteString("No recommendation has been computed yet.\n")
	}
	if hasFeatures {
		sb.WriteString("\n")
		sb.WriteString(formatFactors(fs))
	}

	fmt.Fprintf(&sb, "\nSubscriber question: %s\n", question)

	return sb.String()
}

func formatFactors(fs factors.FeatureSet) string {
	var sb strings.Builder
	sb.WriteString("Market factors:\n")
	for k := factors.Kind(0); k < factors.NumKinds; k++ {
		f := fs.Factor(k)
		if !f.Available {
			fmt.Fprintf(&sb, "- %s: unavailable (%s)\n", k, f.Evidence)
			continue
		}
		fmt.Fprintf(&sb, "- %s (%s): %s\n", f.Name, f.Direction, f.Evidence)
	}
	return sb.String()
}
