package services

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/coursebridge-io/equivalency-engine/pkg/jsonutil"
	"github.com/coursebridge-io/equivalency-engine/pkg/models"
	"github.com/coursebridge-io/equivalency-engine/pkg/repositories"
)

// Fact keys the extraction pipeline uses for course fields.
const (
	FactCredits             = "credits"
	FactContactHoursLecture = "contact_hours_lecture"
	FactContactHoursLab     = "contact_hours_lab"
	FactLabComponent        = "lab_component"
	FactTopics              = "topics"
	FactOutcomes            = "outcomes"
	FactAssessments         = "assessments"
)

// DecisionPacketBuilder assembles the input snapshot handed to the decision
// engine: the source course's grounded evidence from the latest completed
// extraction run, the target-course profile and the policy from the catalog.
// The engine must be a pure function over the packet, so everything it will
// see is pinned here and persisted on the decision run.
type DecisionPacketBuilder struct {
	extractionRepo repositories.ExtractionRunRepository
	evidenceRepo   repositories.EvidenceRepository
	chunkRepo      repositories.ChunkRepository
	catalog        *CourseCatalog
	logger         *zap.Logger
}

// NewDecisionPacketBuilder creates a new DecisionPacketBuilder.
func NewDecisionPacketBuilder(
	extractionRepo repositories.ExtractionRunRepository,
	evidenceRepo repositories.EvidenceRepository,
	chunkRepo repositories.ChunkRepository,
	catalog *CourseCatalog,
	logger *zap.Logger,
) *DecisionPacketBuilder {
	return &DecisionPacketBuilder{
		extractionRepo: extractionRepo,
		evidenceRepo:   evidenceRepo,
		chunkRepo:      chunkRepo,
		catalog:        catalog,
		logger:         logger.Named("packet-builder"),
	}
}

// Build assembles the packet for one case.
func (b *DecisionPacketBuilder) Build(ctx context.Context, c *models.Case) (*models.DecisionInputsPacket, error) {
	if c.CourseRequested == nil || *c.CourseRequested == "" {
		return nil, fmt.Errorf("case %s has no requested course", c.ID)
	}
	target, err := b.catalog.TargetFor(*c.CourseRequested)
	if err != nil {
		return nil, err
	}

	runs, err := b.extractionRepo.ListByCase(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	var latest *models.ExtractionRun
	for _, run := range runs {
		if run.Status == models.RunStatusCompleted {
			latest = run
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("case %s has no completed extraction run", c.ID)
	}

	evidence, err := b.evidenceRepo.ListByCaseAndRun(ctx, c.ID, latest.ID)
	if err != nil {
		return nil, err
	}

	source := models.CourseEvidence{}
	fields := map[string]*models.EvidenceField{
		FactCredits:             &source.Credits,
		FactContactHoursLecture: &source.ContactHoursLecture,
		FactContactHoursLab:     &source.ContactHoursLab,
		FactLabComponent:        &source.LabComponent,
		FactTopics:              &source.Topics,
		FactOutcomes:            &source.Outcomes,
		FactAssessments:         &source.Assessments,
	}
	// Fields the run never reported count as unknown.
	for _, field := range fields {
		field.Unknown = true
		field.Citations = []models.CitationRef{}
	}

	for _, ev := range evidence {
		if ev.FactKey == nil {
			continue
		}
		field, ok := fields[*ev.FactKey]
		if !ok {
			continue
		}
		if err := b.fillField(ctx, field, ev); err != nil {
			return nil, err
		}
	}

	return &models.DecisionInputsPacket{
		CaseID:       c.ID,
		SourceCourse: source,
		TargetCourse: *target,
		Policy:       b.catalog.Policy,
	}, nil
}

// isScalarFact reports whether the fact key holds a single value rather than
// a list.
func isScalarFact(key *string) bool {
	if key == nil {
		return false
	}
	switch *key {
	case FactCredits, FactContactHoursLecture, FactContactHoursLab, FactLabComponent:
		return true
	}
	return false
}

func (b *DecisionPacketBuilder) fillField(ctx context.Context, field *models.EvidenceField, ev *models.Evidence) error {
	field.Unknown = ev.Unknown
	if ev.Unknown {
		return nil
	}

	switch {
	case len(ev.FactJSON) > 0 && isScalarFact(ev.FactKey):
		// Extractors report scalar facts inconsistently: "4", 4, 4.0 or true.
		field.Value = jsonutil.FlexibleStringValue(ev.FactJSON)
	case len(ev.FactJSON) > 0:
		var value any
		if err := json.Unmarshal(ev.FactJSON, &value); err != nil {
			return fmt.Errorf("failed to decode fact %s: %w", ev.ID, err)
		}
		field.Value = value
	case ev.FactValue != nil:
		field.Value = *ev.FactValue
	}

	chunks, err := b.chunkRepo.GetByEvidence(ctx, ev.ID)
	if err != nil {
		return err
	}
	for _, chunk := range chunks {
		chunkID := chunk.ID
		page := chunk.PageNum
		span := fmt.Sprintf("%d-%d", chunk.SpanStart, chunk.SpanEnd)
		snippet := chunk.Snippet
		field.Citations = append(field.Citations, models.CitationRef{
			DocID:   chunk.DocID,
			ChunkID: &chunkID,
			Page:    &page,
			Span:    &span,
			Snippet: &snippet,
		})
	}
	return nil
}
