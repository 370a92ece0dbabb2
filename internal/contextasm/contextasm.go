// Package contextasm implements the context assembler (spec §4.F): turning
// a nucleus chunk into a single, token-budgeted context string with a
// protected metadata block, an intent-aware prelude and marked nucleus.
package contextasm

import (
	"fmt"
	"strconv"
	"strings"

	"legal-ai-cuda/internal/apperr"
	"legal-ai-cuda/internal/corpusstore"
	"legal-ai-cuda/internal/domain"
)

// Sentinel markers wrapping the nucleus passage and the whole document body,
// matching the generator contract's document-begin/document-end tags
// (spec §6).
const (
	NucleusBeginTag = "<<<NUCLEUS>>>"
	NucleusEndTag   = "<<<END_NUCLEUS>>>"
	DocumentBeginTag = "<<<DOCUMENT>>>"
	DocumentEndTag   = "<<<END_DOCUMENT>>>"
)

// safetyBuffer is reserved for the model's own output, never spent on context.
const safetyBuffer = 256

// charsPerToken is a conservative estimate used to translate the token
// budget into a character truncation point without a tokenizer dependency.
const charsPerToken = 3

// Intent is the tagged variant of query intent detection (spec.md §9
// "dynamic dispatch on intent" resolved as a Go interface method per
// variant rather than a switch sprinkled through the assembler).
type Intent interface {
	Prelude(doc domain.Document) string
}

type feeIntent struct{}
type timeIntent struct{}
type agencyIntent struct{}
type defaultIntent struct{}

// DetectIntent classifies a query into one of the recognized intents by
// keyword presence, falling back to defaultIntent.
func DetectIntent(query string) Intent {
	lower := strings.ToLower(query)
	switch {
	case containsAny(lower, "phí", "lệ phí", "giá", "tiền"):
		return feeIntent{}
	case containsAny(lower, "bao lâu", "thời gian", "khi nào", "mất bao lâu"):
		return timeIntent{}
	case containsAny(lower, "cơ quan", "nơi nào", "ở đâu"):
		return agencyIntent{}
	default:
		return defaultIntent{}
	}
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

const miễnKeyword = "miễn"

func (feeIntent) Prelude(doc domain.Document) string {
	m := doc.Metadata
	if m.FeeVND == 0 && strings.Contains(strings.ToLower(m.FeeText), miễnKeyword) {
		return fmt.Sprintf("Phí: miễn phí cho thủ tục chính (%s); chỉ thu phí khi cấp bản sao.", m.FeeText)
	}
	return fmt.Sprintf("Phí: %s", m.FeeText)
}

func (timeIntent) Prelude(doc domain.Document) string {
	return fmt.Sprintf("Thời gian xử lý: %s", doc.Metadata.ProcessingTime)
}

func (agencyIntent) Prelude(doc domain.Document) string {
	return fmt.Sprintf("Cơ quan thực hiện: %s", doc.Metadata.ExecutingAgency)
}

func (defaultIntent) Prelude(domain.Document) string { return "" }

// Assembler produces context strings from a nucleus chunk plus query intent.
type Assembler struct {
	store corpusstore.Store
	nCtx  int
}

// New builds an Assembler over the corpus store, using nCtx as the model's
// configured context window for budget math.
func New(store corpusstore.Store, nCtx int) *Assembler {
	return &Assembler{store: store, nCtx: nCtx}
}

// Assemble implements the five-step protocol in spec §4.F.
func (a *Assembler) Assemble(nucleus domain.Chunk, query string, estimatedPromptTokens int) (string, error) {
	budget := a.nCtx - estimatedPromptTokens - safetyBuffer
	if budget <= 0 {
		return "", apperr.ErrPromptTooLarge
	}
	budgetChars := budget * charsPerToken

	doc, err := a.store.LoadDocument(nucleus.CollectionID, nucleus.DocID)
	if err != nil {
		return "", fmt.Errorf("loading nucleus document: %w", err)
	}

	metadataBlock := buildMetadataBlock(doc.Metadata)
	marked := markNucleus(doc.FullText(), nucleus.Content)
	intent := DetectIntent(query)
	prelude := intent.Prelude(doc)

	var b strings.Builder
	if prelude != "" {
		b.WriteString(prelude)
		b.WriteString("\n\n")
	}
	b.WriteString(metadataBlock)
	b.WriteString("\n\n")
	b.WriteString(DocumentBeginTag)
	b.WriteString("\n")
	b.WriteString(marked)
	b.WriteString("\n")
	b.WriteString(DocumentEndTag)

	return truncateBody(b.String(), budgetChars), nil
}

func buildMetadataBlock(m domain.DocumentMetadata) string {
	lines := []string{
		"agency: " + m.IssuingAgency,
		"executing_agency: " + m.ExecutingAgency,
		"fee_text: " + m.FeeText,
		"fee_vnd: " + strconv.FormatFloat(m.FeeVND, 'f', -1, 64),
		"processing_time: " + m.ProcessingTime,
		"has_form: " + strconv.FormatBool(m.HasForm),
	}
	return strings.Join(lines, "\n")
}

// markNucleus wraps the nucleus passage in sentinel tags within the full
// document text. If the nucleus isn't found verbatim (can happen after
// normalization drift between index time and serve time), a marked copy is
// prepended instead of failing the turn.
func markNucleus(fullText, nucleusText string) string {
	marked := NucleusBeginTag + "\n" + nucleusText + "\n" + NucleusEndTag
	if idx := strings.Index(fullText, nucleusText); idx >= 0 {
		return fullText[:idx] + marked + fullText[idx+len(nucleusText):]
	}
	return marked + "\n\n" + fullText
}

// truncateBody trims the trailing document body when the assembled string
// exceeds budgetChars, never touching the protected prelude+metadata prefix
// nor the nucleus sentinel block.
func truncateBody(full string, budgetChars int) string {
	if len(full) <= budgetChars {
		return full
	}
	nucleusEnd := strings.Index(full, NucleusEndTag)
	if nucleusEnd < 0 {
		if budgetChars < len(full) {
			return full[:budgetChars]
		}
		return full
	}
	keepUpTo := nucleusEnd + len(NucleusEndTag)
	if keepUpTo >= budgetChars {
		return full[:keepUpTo]
	}
	return full[:budgetChars]
}
