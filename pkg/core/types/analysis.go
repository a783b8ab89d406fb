package types

// AnalysisRequest is what the analysis gateway receives for one exchange.
type AnalysisRequest struct {
	ImageDataURI string
	Speech       string
	Mode         Mode
	History      []HistoryEntry
}

// AnalysisResult is the gateway's answer. Analysis is the durable record,
// Speech is the utterance for synthesis only.
type AnalysisResult struct {
	Analysis string               `json:"analysis"`
	Speech   string               `json:"speech"`
	Overlay  []OverlayInstruction `json:"overlay,omitempty"`
}

// Labels returns the non-empty overlay labels in order, without duplicates.
func (r *AnalysisResult) Labels() []string {
	if r == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(r.Overlay))
	var out []string
	for _, o := range r.Overlay {
		if o.Label == "" {
			continue
		}
		if _, ok := seen[o.Label]; ok {
			continue
		}
		seen[o.Label] = struct{}{}
		out = append(out, o.Label)
	}
	return out
}
