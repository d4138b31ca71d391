package verify

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/nmelo/sentinel/internal/fraud"
)

// ExportRecord is one verified decision flattened for offline analysis.
type ExportRecord struct {
	FraudLogID      string    `json:"fraudLogId"`
	CreatedAt       time.Time `json:"createdAt"`
	UserID          string    `json:"userId"`
	Type            string    `json:"type"`
	Amount          float64   `json:"amount"`
	RulesScore      int       `json:"rulesScore"`
	FinalScore      int       `json:"finalScore"`
	RiskLevel       string    `json:"riskLevel"`
	Action          string    `json:"action"`
	TriggeredRules  string    `json:"triggeredRules"` // comma-joined rule IDs
	AdvisorScore    int       `json:"advisorScore"`
	AdvisorStatus   string    `json:"advisorStatus"`
	Status          string    `json:"status"`
	ReleaseSource   string    `json:"releaseSource"`
	AppealStatus    string    `json:"appealStatus"`
	GroundTruth     string    `json:"groundTruth"`
	CorrectlyCalled bool      `json:"correctlyCalled"`
}

// Export returns every verified log as a flat record.
func (s *Service) Export(ctx context.Context) ([]ExportRecord, error) {
	logs, err := s.store.ListVerified(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]ExportRecord, 0, len(logs))
	for _, log := range logs {
		ruleIDs := make([]string, 0, len(log.Triggered))
		for _, t := range log.Triggered {
			ruleIDs = append(ruleIDs, t.RuleID)
		}
		rec := ExportRecord{
			FraudLogID:     log.ID,
			CreatedAt:      log.CreatedAt,
			UserID:         log.UserID,
			Type:           log.Type,
			Amount:         log.Amount,
			RulesScore:     log.Assessment.RulesScore,
			FinalScore:     log.Assessment.FinalScore,
			RiskLevel:      string(log.Assessment.RiskLevel),
			Action:         string(log.Assessment.Action),
			TriggeredRules: strings.Join(ruleIDs, ","),
			AdvisorStatus:  "disabled",
			Status:         string(log.Status),
			ReleaseSource:  log.ReleaseSource,
			AppealStatus:   string(log.AppealStatus),
			GroundTruth:    string(log.GroundTruth),
		}
		if log.Advisor != nil {
			rec.AdvisorScore = log.Advisor.RiskScore
			rec.AdvisorStatus = string(log.Advisor.Status)
		}
		flagged := log.Assessment.Action.Holds()
		rec.CorrectlyCalled = flagged == (log.GroundTruth == fraud.TruthFraud)
		records = append(records, rec)
	}
	return records, nil
}

// CSVHeader is the column order used by CSVRow.
var CSVHeader = []string{
	"fraud_log_id", "created_at", "user_id", "type", "amount",
	"rules_score", "final_score", "risk_level", "action", "triggered_rules",
	"advisor_score", "advisor_status", "status", "release_source",
	"appeal_status", "ground_truth", "correctly_called",
}

// CSVRow renders the record in CSVHeader order.
func (r ExportRecord) CSVRow() []string {
	return []string{
		r.FraudLogID,
		r.CreatedAt.UTC().Format(time.RFC3339),
		r.UserID,
		r.Type,
		strconv.FormatFloat(r.Amount, 'f', -1, 64),
		strconv.Itoa(r.RulesScore),
		strconv.Itoa(r.FinalScore),
		r.RiskLevel,
		r.Action,
		r.TriggeredRules,
		strconv.Itoa(r.AdvisorScore),
		r.AdvisorStatus,
		r.Status,
		r.ReleaseSource,
		r.AppealStatus,
		r.GroundTruth,
		strconv.FormatBool(r.CorrectlyCalled),
	}
}
