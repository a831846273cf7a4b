package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"call-insights-go/internal/logger"
	"call-insights-go/internal/types"
)

func strPtr(s string) *string { return &s }

func bucketRecord(agent string, total float64, at time.Time) *types.CallRecord {
	return &types.CallRecord{
		AgentName:        agent,
		PatientName:      "ramesh",
		AgentPhoneNumber: "9876543210",
		Bucket:           "x",
		Provider:         "deepgram",
		Transcript:       "Speaker 0: namaste\n\nSpeaker 1: haan ji",
		Turns: []types.Turn{
			{Speaker: "Speaker 0", Start: 0, End: 1.5, Text: "namaste"},
			{Speaker: "Speaker 1", Start: 1.6, End: 2.4, Text: "haan ji"},
		},
		Analysis: types.Analysis{
			Rubric:  "x_bucket",
			Version: "1.2.0",
			Kind:    types.KindBucket,
			Bucket: &types.BucketReport{
				CallSummary:             "reminder",
				CallPurpose:             "collection",
				SentimentOverall:        "neutral",
				SentimentBySpeaker:      types.SpeakerSentiment{AgentSentiment: "positive", CustomerSentiment: "neutral"},
				PaymentDiscussed:        true,
				PaymentAmount:           strPtr("4500"),
				PaymentOptionsDiscussed: []string{"upi"},
				AgentPerformance:        "good",
				UnresolvedIssues:        []string{},
				Summary:                 "will pay friday",
				TotalScore:              total,
				IndividualScores:        types.BucketScores{GreetingOpening: 8, ObjectionHandling: 7},
				Positives:               []string{"clear"},
				Improvements:            []string{"urgency"},
				MarkedTranscript:        "[AGENT] namaste",
			},
		},
		CreatedAt: at,
	}
}

func genericRecord(agent string, at time.Time) *types.CallRecord {
	return &types.CallRecord{
		AgentName:        agent,
		PatientName:      "sita",
		AgentPhoneNumber: "9000000000",
		Provider:         "openai",
		Transcript:       "hello",
		Analysis: types.Analysis{
			Rubric:  "generic",
			Version: "1.0.0",
			Kind:    types.KindGeneric,
			Generic: &types.GenericReport{
				CallDisposition: "resolved",
				CallSummary:     "asked for number",
				Purpose:         "enquiry",
				Scores:          types.GenericScores{Closing: 9},
				Remark:          strPtr("fine"),
				Positives:       []string{},
				Improvements:    []string{"closing"},
			},
		},
		CreatedAt: at,
	}
}

// runStoreSuite checks the behavior every binding must share.
func runStoreSuite(t *testing.T, s Store) {
	ctx := context.Background()
	base := time.Date(2025, 12, 1, 10, 0, 0, 123456789, time.FixedZone("IST", 19800))

	t.Run("round trip", func(t *testing.T) {
		in := bucketRecord("amit", 7.8, base)
		id, err := s.InsertCall(ctx, in)
		if err != nil {
			t.Fatal(err)
		}
		if id == "" || in.ID != id {
			t.Fatalf("InsertCall id = %q, rec.ID = %q", id, in.ID)
		}
		if !in.CreatedAt.Equal(base.Truncate(time.Millisecond)) || in.CreatedAt.Location() != time.UTC {
			t.Errorf("CreatedAt = %v", in.CreatedAt)
		}

		got, err := s.GetCall(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if !got.CreatedAt.Equal(in.CreatedAt) {
			t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, in.CreatedAt)
		}
		got.CreatedAt = in.CreatedAt
		if !reflect.DeepEqual(got, in) {
			t.Errorf("round trip mismatch\n got: %+v\nwant: %+v", got, in)
		}

		gin := genericRecord("amit", base.Add(time.Second))
		gid, err := s.InsertCall(ctx, gin)
		if err != nil {
			t.Fatal(err)
		}
		gout, err := s.GetCall(ctx, gid)
		if err != nil {
			t.Fatal(err)
		}
		if gout.Analysis.Kind != types.KindGeneric || gout.Analysis.Generic == nil || gout.Analysis.Bucket != nil {
			t.Fatalf("generic analysis = %+v", gout.Analysis)
		}
		if gout.Analysis.Generic.Scores.Closing != 9 || *gout.Analysis.Generic.Remark != "fine" || gout.Analysis.Generic.AreaOfImprovement != nil {
			t.Errorf("generic report = %+v", gout.Analysis.Generic)
		}
	})

	t.Run("not found", func(t *testing.T) {
		for _, id := range []string{"", "nope", "000000000000000000000000", "5f1b0c0e-0000-4000-8000-000000000000"} {
			if _, err := s.GetCall(ctx, id); !errors.Is(err, ErrNotFound) {
				t.Errorf("GetCall(%q) err = %v, want ErrNotFound", id, err)
			}
		}
	})

	t.Run("list newest first", func(t *testing.T) {
		later := base.Add(time.Hour)
		if _, err := s.InsertCall(ctx, genericRecord("neha", later)); err != nil {
			t.Fatal(err)
		}
		if _, err := s.InsertCall(ctx, bucketRecord("neha", 9.1, later.Add(time.Minute))); err != nil {
			t.Fatal(err)
		}

		list, err := s.ListCalls(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(list) < 4 {
			t.Fatalf("ListCalls returned %d summaries", len(list))
		}
		for i := 1; i < len(list); i++ {
			if list[i].CreatedAt.After(list[i-1].CreatedAt) {
				t.Fatalf("summaries not sorted desc at %d: %v after %v", i, list[i].CreatedAt, list[i-1].CreatedAt)
			}
		}
		top := list[0]
		if top.AgentName != "neha" || top.TotalScore == nil || *top.TotalScore != 9.1 || top.Bucket != "x" {
			t.Errorf("newest summary = %+v", top)
		}
		if list[1].TotalScore != nil {
			t.Errorf("generic summary should have no total: %+v", list[1])
		}
	})

	t.Run("agents", func(t *testing.T) {
		a1, err := s.UpsertAgent(ctx, "priya")
		if err != nil {
			t.Fatal(err)
		}
		a2, err := s.UpsertAgent(ctx, "priya")
		if err != nil {
			t.Fatal(err)
		}
		if a1.ID == "" || a1.ID != a2.ID || !a1.CreatedAt.Equal(a2.CreatedAt) {
			t.Errorf("upsert not idempotent: %+v vs %+v", a1, a2)
		}
		if _, err := s.UpsertAgent(ctx, "anil"); err != nil {
			t.Fatal(err)
		}
		agents, err := s.ListAgents(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(agents) != 2 || agents[0].Name != "anil" || agents[1].Name != "priya" {
			t.Errorf("ListAgents = %+v", agents)
		}
	})

	if err := s.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "data", "calls.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close(ctx)
	runStoreSuite(t, s)
}

func TestSQLiteTieBreakByInsertOrder(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "calls.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close(ctx)

	at := time.Now()
	first, _ := s.InsertCall(ctx, genericRecord("a", at))
	second, _ := s.InsertCall(ctx, genericRecord("b", at))
	list, err := s.ListCalls(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != second || list[1].ID != first {
		t.Errorf("equal timestamps should list the later insert first: %+v", list)
	}
}

func TestOpenByDSN(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	for _, dsn := range []string{
		"sqlite://" + filepath.Join(dir, "a.db"),
		"file:" + filepath.Join(dir, "b.db") + "?cache=shared",
	} {
		s, err := Open(ctx, dsn, Options{}, logger.Discard())
		if err != nil {
			t.Fatalf("Open(%s): %v", dsn, err)
		}
		if _, ok := s.(*SQLiteStore); !ok {
			t.Errorf("Open(%s) returned %T", dsn, s)
		}
		s.Close(ctx)
	}
}

func TestOpenUnsupportedDSNFailsFast(t *testing.T) {
	start := time.Now()
	_, err := Open(context.Background(), "postgres://user:secret@db/calls", Options{ConnectTimeout: time.Minute}, logger.Discard())
	if !errors.Is(err, ErrUnsupportedDSN) {
		t.Fatalf("expected ErrUnsupportedDSN, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("unsupported dsn should not be retried")
	}
	if got := err.Error(); strings.Contains(got, "secret") {
		t.Errorf("credentials leaked in error: %s", got)
	}
}

func TestMongoStore(t *testing.T) {
	uri := os.Getenv("MONGODB_TEST_URI")
	if uri == "" {
		t.Skip("MONGODB_TEST_URI not set")
	}
	ctx := context.Background()
	db := "call_insights_test_" + time.Now().Format("20060102150405")
	s, err := OpenMongo(ctx, uri, Options{Database: db})
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		_ = s.client.Database(db).Drop(ctx)
		_ = s.Close(ctx)
	}()
	runStoreSuite(t, s)
}
