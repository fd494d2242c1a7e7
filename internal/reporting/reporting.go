package reporting

import (
	"encoding/json"
	"sort"
	"strings"
)

// Choice is one selectable value of a reporting configuration field. It
// serializes as a [value, label] pair.
type Choice struct {
	Value string
	Label string
}

// MarshalJSON implements json.Marshaler
func (c Choice) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{c.Value, c.Label})
}

const progressPrefix = "progress"

// Reporting configuration field choices
var (
	DataTypes = []Choice{
		{"progress", "progress"},
		{"progress_v2", "progress_v2"},
		{"progress_v3", "progress_v3"},
		{"catalog", "catalog"},
		{"engagement", "engagement"},
		{"grade", "grade"},
		{"completion", "completion"},
		{"course_structure", "course_structure"},
	}
	DeliveryMethods = []Choice{
		{"email", "email"},
		{"sftp", "sftp"},
	}
	Frequencies = []Choice{
		{"daily", "daily"},
		{"monthly", "monthly"},
		{"weekly", "weekly"},
	}
	ReportTypes = []Choice{
		{"csv", "csv"},
		{"json", "json"},
	}
	DaysOfWeek = []Choice{
		{"0", "Monday"},
		{"1", "Tuesday"},
		{"2", "Wednesday"},
		{"3", "Thursday"},
		{"4", "Friday"},
		{"5", "Saturday"},
		{"6", "Sunday"},
	}
)

// manualReports are produced by hand for a single customer family
var manualReports = map[string]bool{
	"grade":            true,
	"completion":       true,
	"course_structure": true,
}

// ChoicesFor returns the reporting configuration choices shown to the
// customer with the given slug.
func ChoicesFor(slug string) map[string][]Choice {
	dataTypes := latestProgressOnly(DataTypes)
	if !strings.Contains(slug, "pearson") {
		dataTypes = withoutManualReports(dataTypes)
	}
	return map[string][]Choice{
		"data_type":       dataTypes,
		"delivery_method": DeliveryMethods,
		"frequency":       Frequencies,
		"report_type":     ReportTypes,
		"day_of_week":     DaysOfWeek,
	}
}

// latestProgressOnly drops every progress version but the newest, which is
// appended last under the plain "progress" label.
func latestProgressOnly(choices []Choice) []Choice {
	var progress []string
	out := make([]Choice, 0, len(choices))
	for _, c := range choices {
		if strings.HasPrefix(c.Value, progressPrefix) {
			progress = append(progress, c.Value)
			continue
		}
		out = append(out, c)
	}
	if len(progress) == 0 {
		return out
	}
	sort.Strings(progress)
	return append(out, Choice{Value: progress[len(progress)-1], Label: progressPrefix})
}

func withoutManualReports(choices []Choice) []Choice {
	out := make([]Choice, 0, len(choices))
	for _, c := range choices {
		if !manualReports[c.Value] {
			out = append(out, c)
		}
	}
	return out
}
