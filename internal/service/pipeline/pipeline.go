// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package pipeline turns a meeting transcript into a stored summary through a
// fixed sequence of checkpointed steps.
package pipeline

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/logging"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/metrics"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/pkg/concurrent"
)

// SummaryPromptPrefix precedes the JSON encoded transcript in the summarizer prompt.
const SummaryPromptPrefix = "Summarize the following transcript: "

// TranscriptPipeline runs the transcript processing steps for one job at a time.
// It is safe for concurrent use by multiple workers.
type TranscriptPipeline struct {
	checkpoints domain.CheckpointStore
	meetings    domain.MeetingRepository
	agents      domain.AgentRepository
	persons     domain.PersonRepository
	fetcher     domain.TranscriptFetcher
	summarizer  domain.Summarizer
	metrics     *metrics.Metrics
}

// NewTranscriptPipeline creates a new TranscriptPipeline. m may be nil.
func NewTranscriptPipeline(
	checkpoints domain.CheckpointStore,
	meetings domain.MeetingRepository,
	agents domain.AgentRepository,
	persons domain.PersonRepository,
	fetcher domain.TranscriptFetcher,
	summarizer domain.Summarizer,
	m *metrics.Metrics,
) *TranscriptPipeline {
	return &TranscriptPipeline{
		checkpoints: checkpoints,
		meetings:    meetings,
		agents:      agents,
		persons:     persons,
		fetcher:     fetcher,
		summarizer:  summarizer,
		metrics:     m,
	}
}

// ServiceReady checks if the pipeline has everything it needs to run jobs
func (p *TranscriptPipeline) ServiceReady() bool {
	return p.checkpoints != nil &&
		p.meetings != nil &&
		p.agents != nil &&
		p.persons != nil &&
		p.fetcher != nil &&
		p.summarizer != nil
}

// Run executes every step of job in order, resuming after the last recorded step.
func (p *TranscriptPipeline) Run(ctx context.Context, job models.ProcessingJob) error {
	if job.ID == "" {
		return domain.NewValidationError("job id is required")
	}
	if job.Data.MeetingID == "" || job.Data.TranscriptURL == "" {
		return domain.NewValidationError("job requires a meeting id and a transcript url")
	}

	ctx = logging.AppendCtx(ctx, slog.String(logging.JobIDKey, job.ID))
	ctx = logging.AppendCtx(ctx, slog.String(logging.MeetingIDKey, job.Data.MeetingID))

	fetched, err := runStep(ctx, p, job.ID, StepFetchTranscript,
		FetchTranscriptInput{URL: job.Data.TranscriptURL}, p.fetchTranscript)
	if err != nil {
		return err
	}

	parsed, err := runStep(ctx, p, job.ID, StepParseTranscript,
		ParseTranscriptInput(fetched), p.parseTranscript)
	if err != nil {
		return err
	}

	enriched, err := runStep(ctx, p, job.ID, StepAddSpeakers,
		AddSpeakersInput(parsed), p.addSpeakers)
	if err != nil {
		return err
	}

	summarized, err := runStep(ctx, p, job.ID, StepSummarizeTranscript,
		SummarizeTranscriptInput(enriched), p.summarizeTranscript)
	if err != nil {
		return err
	}

	saved, err := runStep(ctx, p, job.ID, StepSaveSummary,
		SaveSummaryInput{MeetingID: job.Data.MeetingID, Summary: summarized.Summary}, p.saveSummary)
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "transcript processing finished",
		"applied", saved.Applied,
		"status", saved.Status)
	return nil
}

func (p *TranscriptPipeline) fetchTranscript(ctx context.Context, in FetchTranscriptInput) (FetchTranscriptOutput, error) {
	body, err := p.fetcher.Fetch(ctx, in.URL)
	if err != nil {
		return FetchTranscriptOutput{}, err
	}
	return FetchTranscriptOutput{Body: body}, nil
}

func (p *TranscriptPipeline) parseTranscript(ctx context.Context, in ParseTranscriptInput) (ParseTranscriptOutput, error) {
	items, err := ParseTranscript(in.Body)
	if err != nil {
		return ParseTranscriptOutput{}, err
	}
	slog.DebugContext(ctx, "parsed transcript", "items", len(items))
	return ParseTranscriptOutput{Items: items}, nil
}

// ParseTranscript decodes a JSONL transcript. Blank lines are skipped; any
// other line that is not a JSON object fails the whole transcript.
func ParseTranscript(body string) ([]models.TranscriptItem, error) {
	items := []models.TranscriptItem{}

	scanner := bufio.NewScanner(strings.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		// A JSON null decodes into a struct without error, so decode through a
		// pointer and require an object.
		var item *models.TranscriptItem
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			return nil, domain.NewValidationError(fmt.Sprintf("malformed transcript line %d", line), err)
		}
		if item == nil {
			return nil, domain.NewValidationError(fmt.Sprintf("malformed transcript line %d: not an object", line))
		}
		items = append(items, *item)
	}
	if err := scanner.Err(); err != nil {
		return nil, domain.NewValidationError(fmt.Sprintf("malformed transcript after line %d", line), err)
	}
	return items, nil
}

func (p *TranscriptPipeline) addSpeakers(ctx context.Context, in AddSpeakersInput) (AddSpeakersOutput, error) {
	ids := speakerIDs(in.Items)

	var persons []*models.Person
	var agents []*models.Agent
	if len(ids) > 0 {
		err := concurrent.NewWorkerPool(2).Run(ctx,
			func() error {
				var err error
				persons, err = p.persons.GetPersons(ctx, ids)
				return err
			},
			func() error {
				var err error
				agents, err = p.agents.GetAgents(ctx, ids)
				return err
			},
		)
		if err != nil {
			slog.ErrorContext(ctx, "error resolving speakers", logging.ErrKey, err)
			return AddSpeakersOutput{}, err
		}
	}

	names := make(map[string]string, len(persons)+len(agents))
	for _, agent := range agents {
		names[agent.ID] = agent.Name
	}
	for _, person := range persons {
		if agentName, ok := names[person.ID]; ok {
			slog.WarnContext(ctx, "speaker id belongs to both a person and an agent, using the person",
				"speaker_id", person.ID,
				"person_name", person.Name,
				"agent_name", agentName)
		}
		names[person.ID] = person.Name
	}

	out := AddSpeakersOutput{Items: make([]models.EnrichedTranscriptItem, 0, len(in.Items))}
	for _, item := range in.Items {
		name, ok := names[item.SpeakerID]
		if !ok || item.SpeakerID == "" {
			name = models.UnknownSpeakerName
		}
		out.Items = append(out.Items, models.EnrichedTranscriptItem{
			TranscriptItem: item,
			User:           models.TranscriptSpeaker{Name: name},
		})
	}
	return out, nil
}

// speakerIDs returns the distinct non-empty speaker ids in first-seen order.
func speakerIDs(items []models.TranscriptItem) []string {
	seen := make(map[string]struct{}, len(items))
	ids := make([]string, 0)
	for _, item := range items {
		if item.SpeakerID == "" {
			continue
		}
		if _, ok := seen[item.SpeakerID]; ok {
			continue
		}
		seen[item.SpeakerID] = struct{}{}
		ids = append(ids, item.SpeakerID)
	}
	return ids
}

func (p *TranscriptPipeline) summarizeTranscript(ctx context.Context, in SummarizeTranscriptInput) (SummarizeTranscriptOutput, error) {
	prompt, err := SummaryPrompt(in.Items)
	if err != nil {
		return SummarizeTranscriptOutput{}, err
	}

	messages, err := p.summarizer.Run(ctx, prompt)
	if err != nil {
		return SummarizeTranscriptOutput{}, err
	}
	if len(messages) == 0 || strings.TrimSpace(messages[0].Content) == "" {
		return SummarizeTranscriptOutput{}, domain.NewExternalServiceError("summarizer returned an empty summary", domain.ErrEmptySummary)
	}

	return SummarizeTranscriptOutput{Summary: messages[0].Content}, nil
}

// SummaryPrompt builds the summarizer prompt for an enriched transcript.
func SummaryPrompt(items []models.EnrichedTranscriptItem) (string, error) {
	if items == nil {
		items = []models.EnrichedTranscriptItem{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "", domain.NewInternalError("failed to encode transcript for summarizer", err)
	}
	return SummaryPromptPrefix + string(data), nil
}

func (p *TranscriptPipeline) saveSummary(ctx context.Context, in SaveSummaryInput) (SaveSummaryOutput, error) {
	meeting, applied, err := p.meetings.ConditionalUpdate(ctx, in.MeetingID,
		models.StatusIn(
			models.MeetingStatusActive,
			models.MeetingStatusProcessing,
			models.MeetingStatusCompleted,
		),
		func(m *models.Meeting, _ time.Time) {
			m.Summary = in.Summary
			m.Status = models.MeetingStatusCompleted
		},
	)
	if err != nil {
		return SaveSummaryOutput{}, err
	}
	out := SaveSummaryOutput{Applied: applied}
	if meeting != nil {
		out.Status = meeting.Status
	}
	if !applied {
		slog.WarnContext(ctx, "meeting status does not accept a summary, discarding it", "status", out.Status)
	}
	return out, nil
}
