package diff

import (
	"encoding/json"
	"fmt"
	"strings"

	"hyperdiff/actions"
)

// Summary provides aggregate statistics of a Result.
type Summary struct {
	SrcNodes int            `json:"src_nodes"`
	DstNodes int            `json:"dst_nodes"`
	Mapped   int            `json:"mapped"`
	Actions  actions.Counts `json:"actions"`
}

// Summary computes the summary of r.
func (r *Result) Summary() Summary {
	return Summary{
		SrcNodes: r.Src.Len(),
		DstNodes: r.Dst.Len(),
		Mapped:   r.MappingCount,
		Actions:  actions.Count(r.Actions),
	}
}

// Report is the JSON form of a Result.
type Report struct {
	Name    string           `json:"name,omitempty"`
	Summary Summary          `json:"summary"`
	Stats   Stats            `json:"stats"`
	Timings Timings          `json:"timings_ns"`
	Actions []actions.Record `json:"actions"`
	Error   string           `json:"error,omitempty"`
}

// Report builds the serializable form of r.
func (r *Result) Report() Report {
	rep := Report{
		Summary: r.Summary(),
		Stats:   r.Stats,
		Timings: r.Timings,
		Actions: actions.Records(r.View, r.Actions),
	}
	if r.ScriptErr != nil {
		rep.Error = r.ScriptErr.Error()
	}
	return rep
}

// JSON renders r as indented JSON.
func (r *Result) JSON() ([]byte, error) {
	return json.MarshalIndent(r.Report(), "", "  ")
}

// FormatText renders the edit script followed by a summary.
func (r *Result) FormatText() string {
	var sb strings.Builder
	for _, a := range r.Actions {
		sb.WriteString(actions.Format(r.View, a))
		sb.WriteByte('\n')
	}
	if r.ScriptErr != nil {
		sb.WriteString(fmt.Sprintf("error: %v\n", r.ScriptErr))
	}

	s := r.Summary()
	if len(r.Actions) > 0 {
		sb.WriteByte('\n')
	}
	sb.WriteString(fmt.Sprintf("Summary: %d/%d nodes mapped (%d src, %d dst)\n",
		s.Mapped, max(s.SrcNodes, s.DstNodes), s.SrcNodes, s.DstNodes))
	sb.WriteString(fmt.Sprintf("         %d actions (%d inserted, %d deleted, %d updated, %d moved)\n",
		s.Actions.Total(), s.Actions.Inserts, s.Actions.Deletes, s.Actions.Updates, s.Actions.Moves))
	sb.WriteString(fmt.Sprintf("         %s total\n", r.Timings.Total()))
	return sb.String()
}
