package wizard

import (
	"context"
	"fmt"
	"io"
	"sync"

	"ethics-review/internal/common/validation"
	"ethics-review/internal/models"

	"golang.org/x/sync/errgroup"
)

const defaultUploadConcurrency = 4

// Document is one file selected for a checklist category.
type Document struct {
	Key      string
	Name     string
	Filename string
	Open     func() (io.ReadCloser, error)
}

// DocumentsStep (10) uploads the selected documents and records their
// handles on the checklist.
type DocumentsStep struct {
	Documents   []Document
	Concurrency int

	Checklist models.Checklist
}

func (s *DocumentsStep) Number() int   { return 10 }
func (s *DocumentsStep) Title() string { return "Checklist documents" }

func (s *DocumentsStep) Select(doc Document) {
	s.Documents = append(s.Documents, doc)
}

func (s *DocumentsStep) Load(ctx context.Context, c EntityClient, app *ActiveApplication) (bool, error) {
	if err := requireApp(app); err != nil {
		return false, err
	}
	agg, err := c.GetApplication(ctx, app.ID())
	if err != nil {
		return false, err
	}
	if len(agg.Checklists) == 0 {
		return false, nil
	}
	s.Checklist = agg.Checklists[0]
	return len(s.Checklist.MissingDocuments()) == 0 && len(s.Documents) == 0, nil
}

func knownCategory(key string) bool {
	for _, d := range models.ChecklistDocuments {
		if d.Key == key {
			return true
		}
	}
	return false
}

func (s *DocumentsStep) Validate(app *ActiveApplication) error {
	if err := requireApp(app); err != nil {
		return err
	}
	fields := make(map[string]string)
	if s.Checklist.ID == "" {
		fields["checklist"] = "Save the declaration step before uploading documents"
	}
	seen := make(map[string]bool, len(s.Documents))
	for i, d := range s.Documents {
		path := fmt.Sprintf("documents[%d]", i)
		switch {
		case !knownCategory(d.Key):
			fields[path+".key"] = "Unknown document category"
		case seen[d.Key]:
			fields[path+".key"] = "Category selected twice"
		case d.Open == nil:
			fields[path+".file"] = "Required"
		}
		seen[d.Key] = true
	}

	s.Checklist.ApplicationID = app.ID()
	if err := validateForm(validation.KindChecklist, &s.Checklist, "checklist", fields); err != nil {
		return err
	}
	return fieldErrors(fields)
}

// Save uploads every selected document with at most Concurrency uploads in
// flight. A failed upload does not stop the others. The handles of the
// successful uploads are written to the checklist before the failures are
// reported, and only the failed documents stay selected.
func (s *DocumentsStep) Save(ctx context.Context, c EntityClient, app *ActiveApplication) error {
	if err := requireApp(app); err != nil {
		return err
	}

	limit := s.Concurrency
	if limit <= 0 {
		limit = defaultUploadConcurrency
	}

	var (
		mu       sync.Mutex
		uploaded = make(map[string]string)
		failed   = make(map[string]error)
	)

	g := new(errgroup.Group)
	g.SetLimit(limit)
	for _, d := range s.Documents {
		d := d
		g.Go(func() error {
			fileID, err := upload(ctx, c, app.ID(), d)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed[d.Key] = err
				return nil
			}
			uploaded[d.Key] = fileID
			return nil
		})
	}
	g.Wait()

	if len(uploaded) > 0 || len(s.Documents) == 0 {
		checklist := s.Checklist
		for key, fileID := range uploaded {
			checklist.SetDocument(key, fileID)
		}
		checklist.ApplicationID = app.ID()

		var saved models.Checklist
		if err := c.SaveSection(ctx, "checklist", &checklist, &saved); err != nil {
			return err
		}
		s.Checklist = saved
	}

	remaining := s.Documents[:0]
	for _, d := range s.Documents {
		if _, ok := failed[d.Key]; ok {
			remaining = append(remaining, d)
		}
	}
	s.Documents = remaining

	if len(failed) > 0 {
		return &UploadErrors{Failed: failed}
	}
	return nil
}

func upload(ctx context.Context, c EntityClient, applicationID string, d Document) (string, error) {
	body, err := d.Open()
	if err != nil {
		return "", err
	}
	defer body.Close()

	filename := d.Filename
	if filename == "" {
		filename = d.Key
	}
	name := d.Name
	if name == "" {
		name = filename
	}
	return c.UploadFile(ctx, applicationID, name, filename, body)
}
