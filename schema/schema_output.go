package schema

// EnrichedComponent adds presentation data to one score component.
type EnrichedComponent struct {
	Index int     `json:"index"`
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Label string  `json:"label"`
}

// EnrichedSection adds presentation data to a Section.
type EnrichedSection struct {
	Rank int `json:"rank"`
	Section
}

// EnrichComponents pairs each component value with its name and label.
// labelFn decides the label so callers can choose plain or colored output.
func EnrichComponents(report ScoreReport, labelFn func(float64) string) []EnrichedComponent {
	output := make([]EnrichedComponent, len(report.Components))
	for i, v := range report.Components {
		name := ""
		if i < len(ComponentNames) {
			name = ComponentNames[i]
		}
		output[i] = EnrichedComponent{
			Index: i,
			Name:  name,
			Value: v,
			Label: labelFn(v),
		}
	}
	return output
}

// EnrichSections adds a rank to a list of sections in their current order.
func EnrichSections(sections []Section) []EnrichedSection {
	output := make([]EnrichedSection, len(sections))
	for i, s := range sections {
		output[i] = EnrichedSection{Rank: i + 1, Section: s}
	}
	return output
}
