package risk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
	"github.com/viant/adminflow/model"
)

// Exporter writes assessments as JSON objects under
// <baseURL>/<yyyy>/<mm>/<dd>/<id>.json for the model-training pipeline.
type Exporter struct {
	fs      afs.Service
	baseURL string
}

// NewExporter creates an exporter; fs defaults to afs.New().
func NewExporter(fs afs.Service, baseURL string) *Exporter {
	if fs == nil {
		fs = afs.New()
	}
	return &Exporter{fs: fs, baseURL: baseURL}
}

// URL returns the location of assessment.
func (e *Exporter) URL(assessment *model.RiskAssessment) string {
	at := assessment.AssessedAt.UTC()
	return url.Join(e.baseURL, at.Format("2006/01/02")+"/"+assessment.ID+".json")
}

// Export uploads assessment.
func (e *Exporter) Export(ctx context.Context, assessment *model.RiskAssessment) error {
	data, err := json.Marshal(assessment)
	if err != nil {
		return fmt.Errorf("failed to marshal assessment %s: %w", assessment.ID, err)
	}
	URL := e.URL(assessment)
	if err = e.fs.Upload(ctx, URL, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to export assessment to %s: %w", URL, err)
	}
	return nil
}
