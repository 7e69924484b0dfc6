package sink

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/David-Botos/nhs-ingress/pkg/config"
	"github.com/David-Botos/nhs-ingress/pkg/connector"
	"github.com/David-Botos/nhs-ingress/pkg/model"
)

func testKey(org string) model.PeriodKey {
	return model.PeriodKey{
		OrganisationCode: org,
		Period:           time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
		Granularity:      model.GranularityMonthly,
	}
}

func openSQLite(t *testing.T, mode Mode) (*SQLSink, connector.DatabaseConnector) {
	t.Helper()
	ctx := context.Background()

	conn, err := connector.NewSQLiteConnector(ctx, &config.SQLiteConfig{
		Path:        filepath.Join(t.TempDir(), "metrics.db"),
		BusyTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.EnsureMetricsTable(ctx, "trust_metrics"); err != nil {
		t.Fatalf("failed to create table: %v", err)
	}
	s := NewSQLSink(conn, "trust_metrics", mode, 5*time.Second, zaptest.NewLogger(t))
	t.Cleanup(func() { s.Close() })
	return s, conn
}

func countRows(t *testing.T, conn connector.DatabaseConnector) int {
	t.Helper()
	var n int
	if err := conn.DB().QueryRow("SELECT COUNT(*) FROM trust_metrics").Scan(&n); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	return n
}

func TestMemorySinkUpsertKeepsOneRowPerKey(t *testing.T) {
	s := NewMemorySink(ModeUpsert)
	ctx := context.Background()
	key := testKey("RXX")

	for _, body := range []string{`{"v":1}`, `{"v":2}`} {
		ok, err := s.Store(ctx, key, model.FieldCommunityHealth, []byte(body))
		if err != nil || !ok {
			t.Fatalf("Store = %v, %v", ok, err)
		}
	}
	if _, err := s.Store(ctx, key, model.FieldCancer, []byte(`{"c":1}`)); err != nil {
		t.Fatalf("Store cancer failed: %v", err)
	}

	if s.Len() != 1 {
		t.Fatalf("expected 1 row, got %d", s.Len())
	}

	docs, err := s.Documents(ctx, model.FieldCommunityHealth, nil)
	if err != nil {
		t.Fatalf("Documents failed: %v", err)
	}
	if len(docs) != 1 || string(docs[0].Body) != `{"v":2}` || docs[0].Period != "2025-03-01" {
		t.Errorf("documents = %+v", docs)
	}

	// Same org and period at another granularity is a different row
	quarterly := key
	quarterly.Granularity = model.GranularityQuarterly
	if _, err := s.Store(ctx, quarterly, model.FieldCancer, []byte(`{}`)); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if s.Len() != 2 {
		t.Errorf("expected 2 rows, got %d", s.Len())
	}
}

func TestMemorySinkUpdateOnly(t *testing.T) {
	s := NewMemorySink(ModeUpdateOnly)
	ctx := context.Background()

	ok, err := s.Store(ctx, testKey("RXX"), model.FieldCancer, []byte(`{}`))
	if err != nil || ok {
		t.Fatalf("update-only without a row = %v, %v; want false, nil", ok, err)
	}

	s.Seed(testKey("RXX"))
	ok, err = s.Store(ctx, testKey("RXX"), model.FieldCancer, []byte(`{}`))
	if err != nil || !ok {
		t.Fatalf("update-only with a row = %v, %v; want true, nil", ok, err)
	}
}

func TestSinkRejectsUnknownField(t *testing.T) {
	s := NewMemorySink(ModeUpsert)
	_, err := s.Store(context.Background(), testKey("RXX"), "password_hash", []byte(`{}`))
	if !errors.Is(err, ErrUnknownField) {
		t.Errorf("expected ErrUnknownField, got %v", err)
	}
}

func TestMemorySinkConcurrentWrites(t *testing.T) {
	s := NewMemorySink(ModeUpsert)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			org := "RXX"
			if i%2 == 0 {
				org = "RYY"
			}
			if _, err := s.Store(ctx, testKey(org), model.FieldCancer, []byte(`{}`)); err != nil {
				t.Errorf("Store failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if s.Len() != 2 {
		t.Errorf("expected 2 rows, got %d", s.Len())
	}
	if s.locks.Len() != 0 {
		t.Errorf("expected key locks to be released, %d remain", s.locks.Len())
	}
}

func TestSQLiteSinkUpsertKeepsOneRowPerKey(t *testing.T) {
	s, conn := openSQLite(t, ModeUpsert)
	ctx := context.Background()
	key := testKey("RXX")

	for _, body := range []string{`{"v":1}`, `{"v":2}`} {
		ok, err := s.Store(ctx, key, model.FieldCommunityHealth, []byte(body))
		if err != nil || !ok {
			t.Fatalf("Store = %v, %v", ok, err)
		}
	}
	if _, err := s.Store(ctx, key, model.FieldCancer, []byte(`{"c":1}`)); err != nil {
		t.Fatalf("Store cancer failed: %v", err)
	}
	if _, err := s.Store(ctx, testKey("RYY"), model.FieldCancer, []byte(`{"c":2}`)); err != nil {
		t.Fatalf("Store RYY failed: %v", err)
	}

	if n := countRows(t, conn); n != 2 {
		t.Fatalf("expected 2 rows, got %d", n)
	}

	docs, err := s.Documents(ctx, model.FieldCommunityHealth, nil)
	if err != nil {
		t.Fatalf("Documents failed: %v", err)
	}
	if len(docs) != 1 || string(docs[0].Body) != `{"v":2}` {
		t.Errorf("community documents = %+v", docs)
	}

	cancer, err := s.Documents(ctx, model.FieldCancer, []string{"RYY"})
	if err != nil {
		t.Fatalf("Documents failed: %v", err)
	}
	if len(cancer) != 1 || cancer[0].OrganisationCode != "RYY" || cancer[0].Granularity != "monthly" {
		t.Errorf("filtered cancer documents = %+v", cancer)
	}
}

func TestSQLiteSinkUpdateOnly(t *testing.T) {
	s, conn := openSQLite(t, ModeUpdateOnly)
	ctx := context.Background()

	ok, err := s.Store(ctx, testKey("RXX"), model.FieldCancer, []byte(`{}`))
	if err != nil || ok {
		t.Fatalf("update-only without a row = %v, %v; want false, nil", ok, err)
	}
	if n := countRows(t, conn); n != 0 {
		t.Errorf("update-only must not insert, got %d rows", n)
	}
}

func TestKeyedMutexSerialises(t *testing.T) {
	k := NewKeyedMutex()
	unlock := k.Lock("a")

	done := make(chan struct{})
	go func() {
		u := k.Lock("a")
		u()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second Lock on the same key must block")
	case <-time.After(20 * time.Millisecond):
	}

	// A different key is independent
	k.Lock("b")()

	unlock()
	<-done
	if k.Len() != 0 {
		t.Errorf("expected no keys, got %d", k.Len())
	}
}
