package exam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"examgen/internal/llm"
	"examgen/internal/model"
	"examgen/internal/store"
)

// fakeLLM answers completion calls through a configurable function.
type fakeLLM struct {
	completeFn func(req llm.CompletionRequest) (string, error)
}

func (f *fakeLLM) Complete(_ context.Context, req llm.CompletionRequest) (string, error) {
	return f.completeFn(req)
}

// fakeBlob records uploads in memory.
type fakeBlob struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  func(key string) error
}

func newFakeBlob() *fakeBlob {
	return &fakeBlob{objects: map[string][]byte{}}
}

func (f *fakeBlob) Put(_ context.Context, key string, body []byte, _ string) error {
	if f.putErr != nil {
		if err := f.putErr(key); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = body
	return nil
}

func (f *fakeBlob) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://blob.test/" + key, nil
}

// fakeJobStore implements JobStore in memory with configurable
// failure injection.
type fakeJobStore struct {
	mu sync.Mutex

	job store.ExamJob

	progressWrites []model.Progress
	minimalWrites  []model.Progress
	artifacts      []model.Artifact
	failedVersions []int

	completedWith *model.Progress
	failedWith    string

	updateProgressErr  func(call int) error
	appendArtifactErr  error
	completeExamJobErr error
	updateCalls        int
}

func (f *fakeJobStore) GetExamJob(_ context.Context, _ uuid.UUID) (store.ExamJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.job, nil
}

func (f *fakeJobStore) UpdateProgress(_ context.Context, _ uuid.UUID, p model.Progress, expectedSeq int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++
	if f.updateProgressErr != nil {
		if err := f.updateProgressErr(f.updateCalls); err != nil {
			return err
		}
	}
	if expectedSeq != f.job.ProgressSeq {
		return store.ErrProgressConflict
	}
	f.job.ProgressSeq++
	f.progressWrites = append(f.progressWrites, p)
	return nil
}

func (f *fakeJobStore) UpdateProgressMinimal(_ context.Context, _ uuid.UUID, p model.Progress) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.job.ProgressSeq++
	f.minimalWrites = append(f.minimalWrites, p)
	return nil
}

func (f *fakeJobStore) AppendArtifact(_ context.Context, _ uuid.UUID, artifact model.Artifact) error {
	if f.appendArtifactErr != nil {
		return f.appendArtifactErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.artifacts = append(f.artifacts, artifact)
	return nil
}

func (f *fakeJobStore) RecordFailedVersion(_ context.Context, _ uuid.UUID, version int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failedVersions = append(f.failedVersions, version)
	return nil
}

func (f *fakeJobStore) CompleteExamJob(_ context.Context, _ uuid.UUID, p model.Progress) error {
	if f.completeExamJobErr != nil {
		return f.completeExamJobErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completedWith = &p
	return nil
}

func (f *fakeJobStore) FailExamJob(_ context.Context, _ uuid.UUID, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failedWith = errMsg
	return nil
}

func questionsJSON(version int) string {
	return fmt.Sprintf(`Here you go:
{"questions": [{"id": 1, "type": "multiple_choice", "topic": "Algebra", "question": "Version %d question?", "options": ["A) 1", "B) 2", "C) 3", "D) 4"], "correctAnswer": "A", "explanation": "Because."}]}`, version)
}

const selfAssessmentJSON = `{"selfAssessment": [{"id": 1, "topic": "Algebra", "question": "Q?", "options": ["A) 1", "B) 2", "C) 3", "D) 4"], "correctAnswer": "A", "feedback": {"A": "Correct!", "B": "No", "C": "No", "D": "No"}}]}`

// answerByPrompt serves self-assessment and per-version question
// payloads, failing the versions listed in failVersions.
func answerByPrompt(failVersions ...int) func(req llm.CompletionRequest) (string, error) {
	return func(req llm.CompletionRequest) (string, error) {
		if strings.Contains(req.Prompt, "self-assessment") {
			return selfAssessmentJSON, nil
		}
		for version := 1; version <= 4; version++ {
			if strings.Contains(req.Prompt, fmt.Sprintf("Version: %d ", version)) {
				for _, fail := range failVersions {
					if version == fail {
						return "something went sideways, no JSON here", nil
					}
				}
				return questionsJSON(version), nil
			}
		}
		return "", errors.New("unexpected prompt")
	}
}

func testJob(t *testing.T, cfg model.ExamConfig, topics []string) store.ExamJob {
	t.Helper()

	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	topicsJSON, err := json.Marshal(topics)
	if err != nil {
		t.Fatalf("marshal topics: %v", err)
	}

	return store.ExamJob{
		ID:             uuid.New(),
		Status:         "PROCESSING",
		TeacherID:      "admin",
		SelectedTopics: topicsJSON,
		ExamConfig:     cfgJSON,
		Artifacts:      json.RawMessage(`[]`),
		FailedVersions: json.RawMessage(`[]`),
		CreatedAt:      time.Now().UTC().Add(-time.Second),
	}
}

func countArtifacts(artifacts []model.Artifact, kind string) map[int]int {
	versions := map[int]int{}
	for _, a := range artifacts {
		if a.Kind == kind {
			versions[a.Version]++
		}
	}
	return versions
}

func TestExecuteExamJobHappyPath(t *testing.T) {
	cfg := model.ExamConfig{
		QuestionCount:         5,
		QuestionTypes:         []string{"multiple_choice"},
		Difficulty:            "medium",
		Versions:              2,
		IncludeSelfAssessment: true,
	}

	js := &fakeJobStore{}
	js.job = testJob(t, cfg, []string{"Algebra"})
	blobs := newFakeBlob()
	executor := NewExecutor(js, blobs, &fakeLLM{completeFn: answerByPrompt()}, "test", "test-model", nil)

	executor.ExecuteExamJob(context.Background(), js.job)

	if js.failedWith != "" {
		t.Fatalf("expected job to complete, failed with %q", js.failedWith)
	}
	if js.completedWith == nil {
		t.Fatal("expected CompleteExamJob to be called")
	}
	if js.completedWith.Percentage != 100 || js.completedWith.CurrentStep != "completed" {
		t.Fatalf("unexpected final progress: %+v", js.completedWith)
	}
	if js.completedWith.CompletedVersions != 2 {
		t.Fatalf("expected 2 completed versions, got %d", js.completedWith.CompletedVersions)
	}

	// 2 versions x (student+teacher) + 1 self-assessment.
	if len(js.artifacts) != 5 {
		t.Fatalf("expected 5 artifacts, got %d: %+v", len(js.artifacts), js.artifacts)
	}
	for _, kind := range []string{model.ArtifactStudent, model.ArtifactTeacher} {
		versions := countArtifacts(js.artifacts, kind)
		if len(versions) != 2 || versions[1] != 1 || versions[2] != 1 {
			t.Fatalf("kind %s: expected one artifact per version 1..2, got %v", kind, versions)
		}
	}
	sa := countArtifacts(js.artifacts, model.ArtifactSelfAssessment)
	if len(sa) != 1 || sa[1] != 1 {
		t.Fatalf("expected one self-assessment artifact at version 1, got %v", sa)
	}

	// Every referenced artifact was uploaded before being recorded.
	for _, a := range js.artifacts {
		if _, ok := blobs.objects[a.S3Key]; !ok {
			t.Fatalf("artifact %s referenced but not uploaded", a.S3Key)
		}
	}

	if len(js.failedVersions) != 0 {
		t.Fatalf("expected no failed versions, got %v", js.failedVersions)
	}
}

func TestExecuteExamJobPartialVersionFailure(t *testing.T) {
	cfg := model.ExamConfig{
		QuestionCount: 5,
		QuestionTypes: []string{"multiple_choice"},
		Difficulty:    "medium",
		Versions:      3,
	}

	js := &fakeJobStore{}
	js.job = testJob(t, cfg, []string{"Algebra"})
	executor := NewExecutor(js, newFakeBlob(), &fakeLLM{completeFn: answerByPrompt(2)}, "test", "test-model", nil)

	executor.ExecuteExamJob(context.Background(), js.job)

	// The job still completes; version 2 is simply missing.
	if js.completedWith == nil {
		t.Fatalf("expected job to complete, failed with %q", js.failedWith)
	}
	if len(js.artifacts) != 4 {
		t.Fatalf("expected 4 artifacts (versions 1 and 3), got %d", len(js.artifacts))
	}
	students := countArtifacts(js.artifacts, model.ArtifactStudent)
	if students[2] != 0 || students[1] != 1 || students[3] != 1 {
		t.Fatalf("unexpected student versions: %v", students)
	}
	if len(js.failedVersions) != 1 || js.failedVersions[0] != 2 {
		t.Fatalf("expected failed versions [2], got %v", js.failedVersions)
	}
	if js.completedWith.CompletedVersions != 2 {
		t.Fatalf("expected 2 completed versions, got %d", js.completedWith.CompletedVersions)
	}

	// The failure shows up in the progress history.
	var sawFailureStep bool
	for _, p := range js.progressWrites {
		if p.CurrentStep == "version_2_failed" {
			sawFailureStep = true
			if !strings.Contains(p.Message, "version 2") {
				t.Fatalf("expected failure message naming version 2, got %q", p.Message)
			}
		}
	}
	if !sawFailureStep {
		t.Fatal("expected a version_2_failed progress update")
	}
}

func TestExecuteExamJobSelfAssessmentFailureSwallowed(t *testing.T) {
	cfg := model.ExamConfig{
		QuestionCount:         5,
		QuestionTypes:         []string{"multiple_choice"},
		Difficulty:            "easy",
		Versions:              1,
		IncludeSelfAssessment: true,
	}

	js := &fakeJobStore{}
	js.job = testJob(t, cfg, []string{"Algebra"})
	fake := &fakeLLM{completeFn: func(req llm.CompletionRequest) (string, error) {
		if strings.Contains(req.Prompt, "self-assessment") {
			return "", errors.New("generator unavailable")
		}
		return questionsJSON(1), nil
	}}
	executor := NewExecutor(js, newFakeBlob(), fake, "test", "test-model", nil)

	executor.ExecuteExamJob(context.Background(), js.job)

	if js.completedWith == nil {
		t.Fatalf("expected job to complete, failed with %q", js.failedWith)
	}
	if len(js.artifacts) != 2 {
		t.Fatalf("expected only student+teacher artifacts, got %d", len(js.artifacts))
	}
	if sa := countArtifacts(js.artifacts, model.ArtifactSelfAssessment); len(sa) != 0 {
		t.Fatalf("expected no self-assessment artifact, got %v", sa)
	}
}

func TestExecuteExamJobBlobFailureSkipsVersion(t *testing.T) {
	cfg := model.ExamConfig{
		QuestionCount: 5,
		QuestionTypes: []string{"multiple_choice"},
		Difficulty:    "hard",
		Versions:      2,
	}

	js := &fakeJobStore{}
	js.job = testJob(t, cfg, []string{"Algebra"})
	blobs := newFakeBlob()
	blobs.putErr = func(key string) error {
		if strings.Contains(key, "v1-") {
			return errors.New("bucket unavailable")
		}
		return nil
	}
	executor := NewExecutor(js, blobs, &fakeLLM{completeFn: answerByPrompt()}, "test", "test-model", nil)

	executor.ExecuteExamJob(context.Background(), js.job)

	if js.completedWith == nil {
		t.Fatalf("expected job to complete, failed with %q", js.failedWith)
	}
	if len(js.failedVersions) != 1 || js.failedVersions[0] != 1 {
		t.Fatalf("expected failed versions [1], got %v", js.failedVersions)
	}
	if len(js.artifacts) != 2 {
		t.Fatalf("expected artifacts for version 2 only, got %+v", js.artifacts)
	}
}

func TestExecuteExamJobProgressWriteDegradesToMinimal(t *testing.T) {
	cfg := model.ExamConfig{
		QuestionCount: 5,
		QuestionTypes: []string{"true_false"},
		Difficulty:    "easy",
		Versions:      1,
	}

	js := &fakeJobStore{}
	js.job = testJob(t, cfg, []string{"Algebra"})
	js.updateProgressErr = func(int) error { return errors.New("jsonb write rejected") }
	executor := NewExecutor(js, newFakeBlob(), &fakeLLM{completeFn: answerByPrompt()}, "test", "test-model", nil)

	executor.ExecuteExamJob(context.Background(), js.job)

	if js.completedWith == nil {
		t.Fatalf("expected job to complete despite progress failures, failed with %q", js.failedWith)
	}
	if len(js.progressWrites) != 0 {
		t.Fatalf("expected no rich writes, got %d", len(js.progressWrites))
	}
	if len(js.minimalWrites) == 0 {
		t.Fatal("expected minimal fallback writes")
	}
	// Minimal records carry no estimator output.
	for _, p := range js.minimalWrites {
		if p.Percentage < 0 || p.Percentage > 100 {
			t.Fatalf("minimal write percentage %d outside [0,100]", p.Percentage)
		}
	}
}

func TestExecuteExamJobProgressConflictRetries(t *testing.T) {
	cfg := model.ExamConfig{
		QuestionCount: 5,
		QuestionTypes: []string{"multiple_choice"},
		Difficulty:    "medium",
		Versions:      1,
	}

	js := &fakeJobStore{}
	js.job = testJob(t, cfg, []string{"Algebra"})
	// Someone else advanced the sequence before the first write.
	js.job.ProgressSeq = 3
	executor := NewExecutor(js, newFakeBlob(), &fakeLLM{completeFn: answerByPrompt()}, "test", "test-model", nil)

	// The executor starts from the job snapshot it was handed, so the
	// first guarded write conflicts, re-reads, and retries.
	stale := js.job
	stale.ProgressSeq = 0
	executor.ExecuteExamJob(context.Background(), stale)

	if js.completedWith == nil {
		t.Fatalf("expected job to complete, failed with %q", js.failedWith)
	}
	if len(js.progressWrites) == 0 {
		t.Fatal("expected rich writes after conflict recovery")
	}
	if len(js.minimalWrites) != 0 {
		t.Fatalf("conflict recovery should not fall back to minimal writes, got %d", len(js.minimalWrites))
	}
}

func TestExecuteExamJobFinalizeFailureMarksFailed(t *testing.T) {
	cfg := model.ExamConfig{
		QuestionCount: 5,
		QuestionTypes: []string{"multiple_choice"},
		Difficulty:    "medium",
		Versions:      1,
	}

	js := &fakeJobStore{}
	js.job = testJob(t, cfg, []string{"Algebra"})
	js.completeExamJobErr = errors.New("store unreachable")
	executor := NewExecutor(js, newFakeBlob(), &fakeLLM{completeFn: answerByPrompt()}, "test", "test-model", nil)

	executor.ExecuteExamJob(context.Background(), js.job)

	if js.failedWith == "" {
		t.Fatal("expected FailExamJob when finalize fails")
	}
	if !strings.Contains(js.failedWith, "finalize") {
		t.Fatalf("unexpected failure message %q", js.failedWith)
	}
}

func TestExecuteExamJobMalformedConfigFails(t *testing.T) {
	js := &fakeJobStore{}
	js.job = testJob(t, model.ExamConfig{QuestionCount: 5, QuestionTypes: []string{"mixed"}, Difficulty: "easy", Versions: 1}, []string{"Algebra"})
	js.job.ExamConfig = json.RawMessage(`"not an object"`)

	executor := NewExecutor(js, newFakeBlob(), &fakeLLM{completeFn: answerByPrompt()}, "test", "test-model", nil)
	executor.ExecuteExamJob(context.Background(), js.job)

	if js.failedWith == "" {
		t.Fatal("expected job to be marked FAILED for malformed config")
	}
	if js.completedWith != nil {
		t.Fatal("job must not complete with malformed config")
	}
}
