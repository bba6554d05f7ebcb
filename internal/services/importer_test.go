package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/GregMSThompson/finance-workers/internal/csvimport"
	"github.com/GregMSThompson/finance-workers/internal/dto"
	"github.com/GregMSThompson/finance-workers/internal/errs"
	"github.com/GregMSThompson/finance-workers/internal/queue"
	"github.com/GregMSThompson/finance-workers/pkg/helpers"
)

type fakeStorage struct {
	files  map[string]string
	err    error
	opened []string
	closed int
}

func (f *fakeStorage) Open(_ context.Context, path string) (io.ReadCloser, error) {
	f.opened = append(f.opened, path)
	if f.err != nil {
		return nil, f.err
	}
	body, ok := f.files[path]
	if !ok {
		return nil, errs.NewFatalError("object not found", nil)
	}
	return &countingCloser{Reader: strings.NewReader(body), n: &f.closed}, nil
}

func (f *fakeStorage) Upload(_ context.Context, key, _ string, _ []byte) (string, error) {
	return key, nil
}

type countingCloser struct {
	io.Reader
	n *int
}

func (c *countingCloser) Close() error {
	*c.n++
	return nil
}

type fakeClock struct{ now time.Time }

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advanceBy(d time.Duration) func() {
	return func() { c.now = c.now.Add(d) }
}

// scriptedTransformer yields the given actions, advancing the clock before
// each row.
type scriptedTransformer struct {
	actions []csvimport.Action
	tick    func()
	err     error
	gotOpts csvimport.Options
	gotUID  string
}

func (s *scriptedTransformer) Transform(_ context.Context, uid string, _ []byte, yield func(csvimport.Result) error) error {
	s.gotUID = uid
	for i, a := range s.actions {
		if s.tick != nil {
			s.tick()
		}
		r := csvimport.Result{Line: i + 2, Action: a}
		if a == csvimport.ActionInvalid {
			r.Err = errors.New("invalid amount")
		}
		if err := yield(r); err != nil {
			return err
		}
	}
	return s.err
}

func newImportFixture(content string, tr *scriptedTransformer, clock *fakeClock) (*importService, *fakeStorage) {
	storage := &fakeStorage{files: map[string]string{"u1/import.csv": content}}
	svc := NewImportService(ImportDeps{
		Storage: storage,
		NewTransformer: func(opts csvimport.Options) RowTransformer {
			tr.gotOpts = opts
			return tr
		},
	})
	svc.clockNow = clock.Now
	return svc, storage
}

func csvWithRows(n int) string {
	var b strings.Builder
	b.WriteString("date,name,amount,type,account\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "2024-01-%02d,Row %d,-1.00,regular,Checking\n", i+1, i)
	}
	return b.String()
}

func payload() dto.ImportTransactionsPayload {
	return dto.ImportTransactionsPayload{UserID: "u1", FileName: "import.csv", CSVFilePath: "u1/import.csv"}
}

func TestImportCountsEveryRowAndFinishesAt100(t *testing.T) {
	actions := make([]csvimport.Action, 10)
	for i := range actions {
		actions[i] = csvimport.ActionCreated
	}
	actions[4] = csvimport.ActionInvalid

	clock := newFakeClock()
	tr := &scriptedTransformer{actions: actions, tick: clock.advanceBy(2 * time.Second)}
	svc, storage := newImportFixture(csvWithRows(10), tr, clock)
	progress := &fakeProgress{}

	res, err := svc.Import(helpers.TestCtx(), "job-1", payload(), progress)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	st := res.Stats
	if !res.Success || st.Total != 10 || st.Invalid != 1 || st.Created != 9 || st.Progress != 100 {
		t.Fatalf("unexpected stats %+v", st)
	}
	if len(st.Errors) != 1 || !strings.Contains(st.Errors[0], "line 6") {
		t.Fatalf("expected one row error for line 6, got %v", st.Errors)
	}
	if st.ProcessingTime != (20 * time.Second).Milliseconds() {
		t.Fatalf("processing time = %d", st.ProcessingTime)
	}
	if got := progress.values[len(progress.values)-1]; got != 100 {
		t.Fatalf("last progress = %d, want 100", got)
	}
	if storage.closed != 1 {
		t.Fatalf("download reader closed %d times", storage.closed)
	}
	if tr.gotUID != "u1" {
		t.Fatalf("transformer got uid %q", tr.gotUID)
	}
}

func TestImportProgressIsCappedAndMonotonic(t *testing.T) {
	// Two data lines but forty results: the estimate is far too low.
	actions := make([]csvimport.Action, 40)
	for i := range actions {
		actions[i] = csvimport.ActionSkipped
	}
	clock := newFakeClock()
	tr := &scriptedTransformer{actions: actions, tick: clock.advanceBy(1500 * time.Millisecond)}
	svc, _ := newImportFixture(csvWithRows(2), tr, clock)
	progress := &fakeProgress{}

	var maxMidStream int
	svcProgress := &recordingProgress{fn: func(p int) {
		if p != 100 && p > maxMidStream {
			maxMidStream = p
		}
		progress.values = append(progress.values, p)
	}}

	if _, err := svc.Import(helpers.TestCtx(), "job-1", payload(), svcProgress); err != nil {
		t.Fatalf("Import: %v", err)
	}
	if maxMidStream > 99 {
		t.Fatalf("mid-stream progress reached %d", maxMidStream)
	}
	for i := 1; i < len(progress.values); i++ {
		if progress.values[i] < progress.values[i-1] {
			t.Fatalf("progress went backwards: %v", progress.values)
		}
	}
	for i, p := range progress.values[:len(progress.values)-1] {
		if p == 100 {
			t.Fatalf("progress hit 100 before completion at push %d: %v", i, progress.values)
		}
	}
}

type recordingProgress struct{ fn func(int) }

func (r *recordingProgress) UpdateProgress(_ context.Context, p int) error {
	r.fn(p)
	return nil
}

func TestImportThrottlesProgressPushes(t *testing.T) {
	actions := make([]csvimport.Action, 10)
	for i := range actions {
		actions[i] = csvimport.ActionCreated
	}
	clock := newFakeClock()
	tr := &scriptedTransformer{actions: actions, tick: clock.advanceBy(100 * time.Millisecond)}
	svc, _ := newImportFixture(csvWithRows(10), tr, clock)
	progress := &fakeProgress{}

	if _, err := svc.Import(helpers.TestCtx(), "job-1", payload(), progress); err != nil {
		t.Fatalf("Import: %v", err)
	}
	// 10 rows in one second against an estimate of 11: only row 10 lands on
	// the interval.
	want := []int{0, 91, 100}
	if fmt.Sprint(progress.values) != fmt.Sprint(want) {
		t.Fatalf("progress pushes = %v, want %v", progress.values, want)
	}
}

func TestImportPassesJobOptions(t *testing.T) {
	clock := newFakeClock()
	tr := &scriptedTransformer{}
	svc, _ := newImportFixture(csvWithRows(1), tr, clock)

	p := payload()
	threshold, size, delay := 80, 25, 0
	p.DeduplicateThreshold, p.BatchSize, p.BatchDelay = &threshold, &size, &delay
	if _, err := svc.Import(helpers.TestCtx(), "job-1", p, &fakeProgress{}); err != nil {
		t.Fatal(err)
	}
	if tr.gotOpts.DeduplicateThreshold != 80 || tr.gotOpts.BatchSize != 25 || tr.gotOpts.BatchDelay != 0 {
		t.Fatalf("unexpected options %+v", tr.gotOpts)
	}
	if tr.gotOpts.MaxRetries != 3 {
		t.Fatalf("default retries not kept: %+v", tr.gotOpts)
	}
}

func TestImportFailures(t *testing.T) {
	boom := errors.New("storage down")

	t.Run("missing path is fatal", func(t *testing.T) {
		svc, storage := newImportFixture("x", &scriptedTransformer{}, newFakeClock())
		p := payload()
		p.CSVFilePath = ""
		_, err := svc.Import(helpers.TestCtx(), "job-1", p, &fakeProgress{})
		if !errs.IsFatal(err) || len(storage.opened) != 0 {
			t.Fatalf("err = %v, opened = %v", err, storage.opened)
		}
	})

	t.Run("empty file is fatal", func(t *testing.T) {
		svc, _ := newImportFixture("", &scriptedTransformer{}, newFakeClock())
		_, err := svc.Import(helpers.TestCtx(), "job-1", payload(), &fakeProgress{})
		if !errs.IsFatal(err) {
			t.Fatalf("expected fatal error, got %v", err)
		}
	})

	t.Run("download error is returned", func(t *testing.T) {
		svc, storage := newImportFixture("x", &scriptedTransformer{}, newFakeClock())
		storage.err = boom
		_, err := svc.Import(helpers.TestCtx(), "job-1", payload(), &fakeProgress{})
		if !errors.Is(err, boom) {
			t.Fatalf("expected storage error, got %v", err)
		}
	})

	t.Run("pipeline error keeps partial stats", func(t *testing.T) {
		tr := &scriptedTransformer{
			actions: []csvimport.Action{csvimport.ActionCreated, csvimport.ActionCreated},
			err:     boom,
		}
		svc, _ := newImportFixture(csvWithRows(2), tr, newFakeClock())
		res, err := svc.Import(helpers.TestCtx(), "job-1", payload(), &fakeProgress{})
		if !errors.Is(err, boom) {
			t.Fatalf("expected pipeline error, got %v", err)
		}
		if res.Success || res.Stats.Total != 2 || res.Stats.Progress == 100 {
			t.Fatalf("unexpected result %+v", res)
		}
	})
}

func TestImportProcessDecodesPayload(t *testing.T) {
	clock := newFakeClock()
	tr := &scriptedTransformer{actions: []csvimport.Action{csvimport.ActionCreated}}
	svc, _ := newImportFixture(csvWithRows(1), tr, clock)

	job, err := queue.NewJob("job-9", payload(), nil)
	if err != nil {
		t.Fatal(err)
	}
	out, err := svc.Process(helpers.TestCtx(), job)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	res, ok := out.(dto.ImportResult)
	if !ok || res.Stats.Created != 1 || job.Progress() != 100 {
		t.Fatalf("unexpected result %#v, progress %d", out, job.Progress())
	}
}

func TestEstimateRows(t *testing.T) {
	cases := map[string]int{
		"":                  1,
		"header":            1,
		"header\n":          1,
		"header\na\nb":      2,
		"header\na\nb\n":    3,
		"header\na\nb\nc\n": 4,
	}
	for in, want := range cases {
		if got := estimateRows([]byte(in)); got != want {
			t.Fatalf("estimateRows(%q) = %d, want %d", in, got, want)
		}
	}
}
