package investigator

import (
	"encoding/json"
	"fmt"

	"github.com/reconcilia-matching-engine/internal/domain/escalation"
)

const promptTemplate = `You are a financial reconciliation analyst. A matching engine could not
confidently pair the anchor item below with any open candidate. Review the
case and deliver a verdict.

Case file (anchor, scored candidates, optional vendor pattern and recent
confirmed history for the same counterparty):

%s

Rules:
- Judge only from the case file. Do not invent amounts, dates or items.
- "matched_item_ids" may ONLY contain ids that appear in the candidates
  list. An empty list means no candidate convinces you.
- "status" must be exactly one of: "matched", "unmatched", "uncertain".
- "confidence" is an integer from 0 to 100.
- "suggested_action" is a short imperative for the operator, for example
  "confirm the match with invoice INV-2041" or "request the missing
  remittance advice".
- Keep "explanation" to a few sentences naming the evidence you used.

Return ONLY valid raw JSON in exactly this shape:
{
  "status": "matched",
  "confidence": 80,
  "explanation": "...",
  "suggested_action": "...",
  "matched_item_ids": ["..."]
}

Do NOT wrap the response in code fences.`

// buildPrompt renders the case file into the analyst prompt. The request is
// embedded as indented JSON so the model sees the same structure the engine
// stored.
func buildPrompt(req *escalation.InvestigationRequest) (string, error) {
	caseFile, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling case file: %w", err)
	}
	return fmt.Sprintf(promptTemplate, string(caseFile)), nil
}
