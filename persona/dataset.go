package persona

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// datasetEntry is one row of a persona dataset export.
type datasetEntry struct {
	Persona     string `json:"input persona"`
	Synthesized string `json:"synthesized text"`
}

// ReadDataset parses a JSON array of persona descriptions for indexing.
// Entries are either plain strings or dataset rows with "input persona" and
// "synthesized text" fields, which are joined into one description. Blank
// entries are skipped. A positive limit keeps only the first limit entries.
func ReadDataset(r io.Reader, limit int) ([]string, error) {
	var raw []json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode persona dataset: %w", err)
	}
	if limit > 0 && len(raw) > limit {
		raw = raw[:limit]
	}

	texts := make([]string, 0, len(raw))
	for i, msg := range raw {
		text, err := entryText(msg)
		if err != nil {
			return nil, fmt.Errorf("persona dataset entry %d: %w", i, err)
		}
		if text != "" {
			texts = append(texts, text)
		}
	}
	return texts, nil
}

func entryText(msg json.RawMessage) (string, error) {
	if bytes.HasPrefix(bytes.TrimSpace(msg), []byte(`"`)) {
		var s string
		if err := json.Unmarshal(msg, &s); err != nil {
			return "", err
		}
		return strings.TrimSpace(s), nil
	}

	var e datasetEntry
	if err := json.Unmarshal(msg, &e); err != nil {
		return "", err
	}
	e.Persona, e.Synthesized = strings.TrimSpace(e.Persona), strings.TrimSpace(e.Synthesized)
	switch {
	case e.Persona == "" && e.Synthesized == "":
		return "", nil
	case e.Synthesized == "":
		return "Persona: " + e.Persona, nil
	default:
		return fmt.Sprintf("Persona: %s\nSynthesized Text: %s", e.Persona, e.Synthesized), nil
	}
}
