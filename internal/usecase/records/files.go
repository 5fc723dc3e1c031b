package records

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"adjutant/internal/domain"
)

const (
	requestsFile = "requests.json"
	plansFile    = "plans.json"
	insightsFile = "insights.json"
	profilesFile = "agents.json"
)

func (s *Store) pathFor(kind domain.RecordKind) string {
	switch kind {
	case domain.KindCustomerRequest:
		return filepath.Join(s.dir, requestsFile)
	case domain.KindDayPlan:
		return filepath.Join(s.dir, plansFile)
	case domain.KindInsight:
		return filepath.Join(s.dir, insightsFile)
	case domain.KindAgentProfile:
		return filepath.Join(s.dir, profilesFile)
	default:
		return filepath.Join(s.dir, string(kind)+".json")
	}
}

// writeJSON atomically writes v as indented JSON to path. The write goes to a
// temp file in the same directory followed by a rename, so readers never see
// a partial file and a failed write leaves the previous file untouched.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return domain.WrapOp("marshal", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return domain.WrapOp("write", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return domain.WrapOp("rename", err)
	}
	return nil
}

// readJSON reads a JSON array file into out. A missing file is not an error:
// out is left empty for first boot.
func readJSON(path string, out any) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return domain.WrapOp("read", err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}
