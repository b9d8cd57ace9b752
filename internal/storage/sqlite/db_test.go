package sqlite

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"topiclens/internal/domain"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := InitDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestClassificationRoundTrip(t *testing.T) {
	db := testDB(t)

	started := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	passID, err := BeginPass(db, started, started.AddDate(0, 0, -7), started)
	if err != nil {
		t.Fatalf("BeginPass: %v", err)
	}

	results := []domain.Result{
		{
			ConversationID: "c1",
			Tier1:          "Billing",
			Confidence:     0.95,
			Method:         domain.MethodInferenceCorrectingHint,
			SubLabels:      []domain.SubLabel{{Tier2: "Payment Method", Confidence: 0.8}},
			ClassifiedAt:   started,
		},
		{
			ConversationID: "c2",
			Tier1:          domain.Unclassifiable,
			Confidence:     0.2,
			Method:         domain.MethodInference,
			ClassifiedAt:   started,
		},
	}
	if err := InsertClassifications(db, passID, results); err != nil {
		t.Fatalf("InsertClassifications: %v", err)
	}

	got, err := GetClassifications(db, passID)
	if err != nil {
		t.Fatalf("GetClassifications: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	if got[0].ConversationID != "c1" || got[0].Tier1 != "Billing" {
		t.Fatalf("unexpected first row: %+v", got[0])
	}
	if got[0].Method != domain.MethodInferenceCorrectingHint {
		t.Fatalf("method not preserved: %s", got[0].Method)
	}
	if len(got[0].SubLabels) != 1 || got[0].SubLabels[0].Tier2 != "Payment Method" {
		t.Fatalf("sub labels not preserved: %+v", got[0].SubLabels)
	}
	if got[1].SubLabels != nil {
		t.Fatalf("empty sub labels should stay nil, got %+v", got[1].SubLabels)
	}

	if err := FinishPass(db, passID, started.Add(time.Minute), 2, 1, 1, 3, 1200, 40); err != nil {
		t.Fatalf("FinishPass: %v", err)
	}
}

func TestInsertClassificationsEmptyIsNoop(t *testing.T) {
	db := testDB(t)
	if err := InsertClassifications(db, 1, nil); err != nil {
		t.Fatalf("empty insert: %v", err)
	}
}

func TestConfidenceStatsBuckets(t *testing.T) {
	db := testDB(t)
	passID, err := BeginPass(db, time.Now(), time.Now().AddDate(0, 0, -7), time.Now())
	if err != nil {
		t.Fatalf("BeginPass: %v", err)
	}

	confidences := []float64{0.2, 0.45, 0.5, 0.65, 0.75, 0.85, 0.9, 0.95}
	var results []domain.Result
	for i, c := range confidences {
		results = append(results, domain.Result{
			ConversationID: "c" + string(rune('a'+i)),
			Tier1:          "Billing",
			Confidence:     c,
			Method:         domain.MethodInference,
			ClassifiedAt:   time.Now(),
		})
	}
	if err := InsertClassifications(db, passID, results); err != nil {
		t.Fatalf("InsertClassifications: %v", err)
	}

	stats, err := GetConfidenceStats(db, passID)
	if err != nil {
		t.Fatalf("GetConfidenceStats: %v", err)
	}
	if stats.Total != 8 {
		t.Fatalf("total = %d", stats.Total)
	}
	if stats.BucketBelow50 != 2 || stats.Bucket50to70 != 2 || stats.Bucket70to90 != 2 || stats.Bucket90Plus != 2 {
		t.Fatalf("buckets = %+v", stats)
	}
}

func TestConfidenceStatsEmptyPass(t *testing.T) {
	db := testDB(t)
	stats, err := GetConfidenceStats(db, 99)
	if err != nil {
		t.Fatalf("GetConfidenceStats: %v", err)
	}
	if stats.Total != 0 || stats.AvgConfidence != 0 {
		t.Fatalf("empty pass stats = %+v", stats)
	}
}

func TestCountByMethod(t *testing.T) {
	db := testDB(t)
	passID, err := BeginPass(db, time.Now(), time.Now().AddDate(0, 0, -7), time.Now())
	if err != nil {
		t.Fatalf("BeginPass: %v", err)
	}

	results := []domain.Result{
		{ConversationID: "a", Tier1: "Billing", Confidence: 0.95, Method: domain.MethodInference, ClassifiedAt: time.Now()},
		{ConversationID: "b", Tier1: "Billing", Confidence: 0.95, Method: domain.MethodInference, ClassifiedAt: time.Now()},
		{ConversationID: "c", Tier1: "Bug", Confidence: 0.7, Method: domain.MethodKeywordFallback, ClassifiedAt: time.Now()},
	}
	if err := InsertClassifications(db, passID, results); err != nil {
		t.Fatalf("InsertClassifications: %v", err)
	}

	counts, err := CountByMethod(db, passID)
	if err != nil {
		t.Fatalf("CountByMethod: %v", err)
	}
	if counts[domain.MethodInference] != 2 || counts[domain.MethodKeywordFallback] != 1 {
		t.Fatalf("counts = %v", counts)
	}

	// Results from other passes must not bleed in.
	other, err := BeginPass(db, time.Now(), time.Now(), time.Now())
	if err != nil {
		t.Fatalf("BeginPass: %v", err)
	}
	if counts, err = CountByMethod(db, other); err != nil || len(counts) != 0 {
		t.Fatalf("fresh pass counts = %v, err = %v", counts, err)
	}
}
