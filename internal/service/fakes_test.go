package service

import (
	"context"
	"strings"
	"sync"

	"ikap-analysis/internal/backend"
	"ikap-analysis/internal/classifier"
	"ikap-analysis/internal/filestore"
	"ikap-analysis/internal/models"
	"ikap-analysis/internal/repository"
	"ikap-analysis/internal/worker"
)

type fakeReports struct {
	mu      sync.Mutex
	reports map[string]*models.Report
	updates []models.ReportUpdate
	getErr  error
}

func newFakeReports() *fakeReports {
	return &fakeReports{reports: make(map[string]*models.Report)}
}

func (f *fakeReports) Get(ctx context.Context, sessionID string) (*models.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	r, ok := f.reports[sessionID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeReports) Upsert(ctx context.Context, sessionID string, u models.ReportUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, u)

	r, ok := f.reports[sessionID]
	if !ok {
		r = &models.Report{SessionID: sessionID}
		f.reports[sessionID] = r
	}
	if st := r.State(u.Category); st != nil {
		if u.State.Status != nil {
			st.Status = *u.State.Status
		}
		if u.State.Text != nil {
			st.Text = u.State.Text
		}
		if u.State.Structured != nil {
			st.Structured = u.State.Structured
		}
		if u.State.MissingPeriods != nil {
			st.MissingPeriods = *u.State.MissingPeriods
		}
	}
	if u.Applicant != nil {
		r.Applicant = *u.Applicant
	}
	if u.FilesCount != nil {
		r.FilesCount = *u.FilesCount
	}
	if u.FilesData != nil {
		r.FilesData = u.FilesData
	}
	return nil
}

func (f *fakeReports) List(ctx context.Context, limit, offset int) ([]*models.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Report
	for _, r := range f.reports {
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeReports) Delete(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.reports, sessionID)
	return nil
}

func (f *fakeReports) state(sessionID string, c models.Category) models.CategoryState {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reports[sessionID]
	if !ok {
		return models.CategoryState{}
	}
	return *r.State(c)
}

// terminalWrites counts updates that set a completed or error status.
func (f *fakeReports) terminalWrites(c models.Category) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, u := range f.updates {
		if u.Category == c && u.State.Status != nil && *u.State.Status != models.StatusGenerating {
			n++
		}
	}
	return n
}

type fakeFiles struct {
	files  []models.File
	data   map[string][]byte
	listFn func() error
}

func (f *fakeFiles) List(ctx context.Context, sessionID string, category models.Category) ([]models.File, error) {
	if f.listFn != nil {
		if err := f.listFn(); err != nil {
			return nil, err
		}
	}
	var out []models.File
	for _, file := range f.files {
		if file.SessionID == sessionID && (category == "" || file.Category == category) {
			out = append(out, file)
		}
	}
	return out, nil
}

func (f *fakeFiles) Load(ctx context.Context, sessionID string, files []models.File) *filestore.Resolved {
	res := &filestore.Resolved{}
	for _, file := range files {
		if d, ok := f.data[file.ID]; ok {
			res.Files = append(res.Files, filestore.File{File: file, Data: d})
			continue
		}
		res.Failed = append(res.Failed, filestore.FileFailure{File: file, Err: filestore.ErrNoContent})
	}
	return res
}

func (f *fakeFiles) add(id string, category models.Category, name string, data []byte) {
	if f.data == nil {
		f.data = make(map[string][]byte)
	}
	mime := "application/pdf"
	if strings.HasSuffix(name, ".json") {
		mime = "application/json"
	}
	f.files = append(f.files, models.File{ID: id, SessionID: "s1", Category: category, OriginalName: name, MimeType: mime})
	if data != nil {
		f.data[id] = data
	}
}

type fakeRunner struct {
	category models.Category
	fn       func(ctx context.Context, job Job) (Result, error)
}

func (r *fakeRunner) Category() models.Category { return r.category }

func (r *fakeRunner) Run(ctx context.Context, job Job) (Result, error) { return r.fn(ctx, job) }

type fakeMessages struct {
	history []models.Message
}

func (f *fakeMessages) ListBySession(ctx context.Context, sessionID string) ([]models.Message, error) {
	return f.history, nil
}

type fakeSubmitter struct {
	mu    sync.Mutex
	tasks []worker.Task
	err   error
}

func (f *fakeSubmitter) Submit(task worker.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.tasks = append(f.tasks, task)
	return nil
}

type fakeTax struct {
	fn func(files []backend.File) (*backend.TaxResponse, error)
}

func (f *fakeTax) Process(ctx context.Context, files []backend.File, comment string) (*backend.TaxResponse, error) {
	return f.fn(files)
}

type fakeFS struct {
	fn func(files []backend.File) (*backend.FSAnalysis, error)
}

func (f *fakeFS) Analyze(ctx context.Context, files []backend.File) (*backend.FSAnalysis, error) {
	return f.fn(files)
}

type fakeSecondary struct {
	fn func(batch []classifier.Descriptor) ([]classifier.Decision, error)
}

func (f *fakeSecondary) ClassifyBatch(ctx context.Context, batch []classifier.Descriptor) ([]classifier.Decision, error) {
	return f.fn(batch)
}
