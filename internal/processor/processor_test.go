package processor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"forge/internal/config"
	"forge/internal/events"
	"forge/internal/modelmgr"
	"forge/internal/models"
	"forge/internal/queue"
	"forge/internal/registry"
	"forge/internal/testsupport"
)

// fakeExecutor records the argv it was invoked with and writes a stub PNG
// to the --output path so dispatchCLI's read-back succeeds.
type fakeExecutor struct {
	lastArgs []string
}

func (f *fakeExecutor) Run(ctx context.Context, binary string, args []string) ([]byte, []byte, error) {
	f.lastArgs = args
	for i, a := range args {
		if a == "--output" && i+1 < len(args) {
			if err := os.WriteFile(args[i+1], []byte("fake-png"), 0o644); err != nil {
				return nil, nil, err
			}
		}
	}
	return nil, nil, nil
}

func testStore(t *testing.T, cfg *config.Config) *queue.Store {
	t.Helper()
	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestProcessor(t *testing.T, modelConfigs ...config.ModelConfig) (*Processor, *queue.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t,
		testsupport.WithModels(modelConfigs...),
		testsupport.WithPortRange(28000, 28050),
	)
	store := testStore(t, cfg)

	descriptors := models.New(cfg)
	engines := modelmgr.New(cfg, descriptors, registry.New(), nil)
	bus := events.New(16)

	p := New(store, descriptors, engines, bus, t.TempDir(), 10*time.Millisecond, 10*time.Millisecond, time.Hour, nil)
	return p, store
}

func TestResolveParamsPrecedence(t *testing.T) {
	model := config.ModelConfig{
		GenerationParams: config.GenerationParams{
			SampleSteps: 25,
			CFGScale:    7,
		},
	}
	job := &queue.Job{Type: queue.TypeGenerate}

	params := resolveParams(job, model)
	if params.SampleSteps == nil || *params.SampleSteps != 25 {
		t.Fatalf("expected model default sample_steps, got %v", params.SampleSteps)
	}

	explicit := 40
	job.SampleSteps = &explicit
	params = resolveParams(job, model)
	if params.SampleSteps == nil || *params.SampleSteps != 40 {
		t.Fatalf("expected user-supplied sample_steps to win, got %v", params.SampleSteps)
	}
}

func TestResolveParamsNoHardcodedStepsFallback(t *testing.T) {
	job := &queue.Job{Type: queue.TypeGenerate}
	params := resolveParams(job, config.ModelConfig{})
	if params.SampleSteps != nil {
		t.Fatalf("expected no sample_steps when neither job, model, nor quality hint supplies one, got %v", *params.SampleSteps)
	}
}

func TestResolveParamsQualityMapping(t *testing.T) {
	job := &queue.Job{Type: queue.TypeGenerate, Quality: "hd"}
	params := resolveParams(job, config.ModelConfig{})
	if params.SampleSteps == nil || *params.SampleSteps != 30 {
		t.Fatalf("expected quality-mapped sample_steps, got %v", params.SampleSteps)
	}
}

func TestResolveParamsVariationStrengthDefault(t *testing.T) {
	job := &queue.Job{Type: queue.TypeVariation}
	params := resolveParams(job, config.ModelConfig{})
	if params.Strength == nil || *params.Strength != 0.75 {
		t.Fatalf("expected default strength 0.75 for variation job, got %v", params.Strength)
	}

	custom := 0.4
	job.Strength = &custom
	params = resolveParams(job, config.ModelConfig{})
	if params.Strength == nil || *params.Strength != 0.4 {
		t.Fatalf("expected user-supplied strength to win, got %v", params.Strength)
	}
}

func TestResolveParamsGenerateHasNoStrength(t *testing.T) {
	job := &queue.Job{Type: queue.TypeGenerate}
	params := resolveParams(job, config.ModelConfig{})
	if params.Strength != nil {
		t.Fatalf("expected no strength default outside variation jobs, got %v", *params.Strength)
	}
}

func TestProcessJobServerModeGenerate(t *testing.T) {
	var receivedSteps *int
	engine := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body generateRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		receivedSteps = body.Steps
		_ = json.NewEncoder(w).Encode(generateResponse{
			Data: []struct {
				B64JSON       string `json:"b64_json"`
				RevisedPrompt string `json:"revised_prompt,omitempty"`
			}{{B64JSON: "aGVsbG8="}},
		})
	}))
	defer engine.Close()

	model := config.ModelConfig{
		ID:               "m1",
		Command:          "true",
		ExecMode:         "server",
		APIURL:           engine.URL,
		GenerationParams: config.GenerationParams{SampleSteps: 9},
	}
	p, store := newTestProcessor(t, model)

	job, err := store.Enqueue(context.Background(), queue.Job{
		ID:      "job-1",
		Type:    queue.TypeGenerate,
		ModelID: "m1",
		Prompt:  "cat",
		Status:  queue.StatusProcessing,
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if err := p.dispatchJob(context.Background(), job); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if receivedSteps == nil || *receivedSteps != 9 {
		t.Fatalf("expected engine to receive steps=9, got %v", receivedSteps)
	}

	images, err := store.ImagesForJob(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("images for job: %v", err)
	}
	if len(images) != 1 {
		t.Fatalf("expected 1 generated image, got %d", len(images))
	}
	if images[0].MIME != "image/png" {
		t.Fatalf("expected image/png, got %s", images[0].MIME)
	}
}

func TestProcessJobCLIModeUpscale(t *testing.T) {
	steps := 12
	model := config.ModelConfig{
		ID:       "u1",
		Command:  "sd-cli",
		ExecMode: "cli",
		GenerationParams: config.GenerationParams{
			SampleSteps: steps,
		},
	}
	p, store := newTestProcessor(t, model)

	exec := &fakeExecutor{}
	p.Apply(WithExecutor(exec))

	sourcePath := filepath.Join(t.TempDir(), "source.png")
	job, err := store.Enqueue(context.Background(), queue.Job{
		ID:              "job-upscale",
		Type:            queue.TypeUpscale,
		ModelID:         "u1",
		SourceImagePath: sourcePath,
		Status:          queue.StatusProcessing,
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if err := p.dispatchJob(context.Background(), job); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	args := strings.Join(exec.lastArgs, " ")
	if !strings.Contains(args, "--init-img "+sourcePath) {
		t.Fatalf("expected --init-img %s in argv, got %q", sourcePath, args)
	}
	if strings.Contains(args, "--strength") {
		t.Fatalf("expected no --strength flag for upscale jobs, got %q", args)
	}
	if strings.Count(args, "--steps") != 1 {
		t.Fatalf("expected exactly one --steps flag, got %q", args)
	}

	images, err := store.ImagesForJob(context.Background(), "job-upscale")
	if err != nil {
		t.Fatalf("images for job: %v", err)
	}
	if len(images) != 1 || images[0].MIME != "image/png" {
		t.Fatalf("unexpected images %+v", images)
	}
}

func TestProcessJobServerModeUpscaleUsesDistinctEndpoint(t *testing.T) {
	var gotPath string
	engine := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewEncoder(w).Encode(upscaleResponse{Image: "aGVsbG8="})
	}))
	defer engine.Close()

	model := config.ModelConfig{
		ID:       "u2",
		Command:  "true",
		ExecMode: "server",
		APIURL:   engine.URL,
	}
	p, store := newTestProcessor(t, model)

	sourcePath := filepath.Join(t.TempDir(), "source.png")
	if err := os.WriteFile(sourcePath, []byte("fake-png"), 0o644); err != nil {
		t.Fatalf("write source image: %v", err)
	}

	job, err := store.Enqueue(context.Background(), queue.Job{
		ID:              "job-upscale-http",
		Type:            queue.TypeUpscale,
		ModelID:         "u2",
		SourceImagePath: sourcePath,
		Status:          queue.StatusProcessing,
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if err := p.dispatchJob(context.Background(), job); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if gotPath != "/sdapi/v1/extra-single-image" {
		t.Fatalf("expected upscale to hit /sdapi/v1/extra-single-image, got %q", gotPath)
	}
}

func TestEngineEndpoint(t *testing.T) {
	tests := []struct {
		jobType queue.Type
		want    string
	}{
		{queue.TypeGenerate, "http://h/sdapi/v1/txt2img"},
		{queue.TypeEdit, "http://h/sdapi/v1/img2img"},
		{queue.TypeVariation, "http://h/sdapi/v1/img2img"},
		{queue.TypeUpscale, "http://h/sdapi/v1/extra-single-image"},
	}
	for _, tt := range tests {
		if got := engineEndpoint("http://h", tt.jobType); got != tt.want {
			t.Errorf("engineEndpoint(%q) = %q, want %q", tt.jobType, got, tt.want)
		}
	}
}

func TestDecodeImageDimensions(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 64, 48))); err != nil {
		t.Fatalf("encode test png: %v", err)
	}

	width, height := decodeImageDimensions("image/png", buf.Bytes())
	if width != 64 || height != 48 {
		t.Fatalf("dimensions = %dx%d, want 64x48", width, height)
	}

	if w, h := decodeImageDimensions("image/png", []byte("not a png")); w != 0 || h != 0 {
		t.Fatalf("expected 0x0 for undecodable data, got %dx%d", w, h)
	}
	if w, h := decodeImageDimensions("application/octet-stream", buf.Bytes()); w != 0 || h != 0 {
		t.Fatalf("expected 0x0 for non-png mime, got %dx%d", w, h)
	}
}

func TestProcessJobPersistsImageDimensions(t *testing.T) {
	var png64 bytes.Buffer
	if err := png.Encode(&png64, image.NewRGBA(image.Rect(0, 0, 32, 16))); err != nil {
		t.Fatalf("encode test png: %v", err)
	}
	encoded := base64.StdEncoding.EncodeToString(png64.Bytes())

	engine := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(generateResponse{
			Data: []struct {
				B64JSON       string `json:"b64_json"`
				RevisedPrompt string `json:"revised_prompt,omitempty"`
			}{{B64JSON: encoded}},
		})
	}))
	defer engine.Close()

	model := config.ModelConfig{
		ID:       "m-dim",
		Command:  "true",
		ExecMode: "server",
		APIURL:   engine.URL,
	}
	p, store := newTestProcessor(t, model)

	job, err := store.Enqueue(context.Background(), queue.Job{
		ID:      "job-dim",
		Type:    queue.TypeGenerate,
		ModelID: "m-dim",
		Prompt:  "cat",
		Status:  queue.StatusProcessing,
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := p.dispatchJob(context.Background(), job); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	images, err := store.ImagesForJob(context.Background(), "job-dim")
	if err != nil {
		t.Fatalf("images for job: %v", err)
	}
	if len(images) != 1 {
		t.Fatalf("expected 1 image, got %d", len(images))
	}
	if images[0].Width != 32 || images[0].Height != 16 {
		t.Fatalf("dimensions = %dx%d, want 32x16", images[0].Width, images[0].Height)
	}
}

func TestProcessJobUnknownModel(t *testing.T) {
	p, store := newTestProcessor(t)
	job, err := store.Enqueue(context.Background(), queue.Job{
		ID:      "job-2",
		Type:    queue.TypeGenerate,
		ModelID: "nope",
		Prompt:  "x",
		Status:  queue.StatusProcessing,
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	err = p.dispatchJob(context.Background(), job)
	if _, ok := err.(UnknownModel); !ok {
		t.Fatalf("expected UnknownModel, got %v", err)
	}
	if queue.FailureStatus(err) != queue.StatusFailed {
		t.Fatalf("expected StatusFailed for unknown model, got %v", queue.FailureStatus(err))
	}
}

func TestJobCancelledRoutesToCancelledStatus(t *testing.T) {
	err := JobCancelled{JobID: "job-3"}
	if queue.FailureStatus(err) != queue.StatusCancelled {
		t.Fatalf("expected StatusCancelled, got %v", queue.FailureStatus(err))
	}
}

func TestStartAndStopIsIdempotent(t *testing.T) {
	p, _ := newTestProcessor(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := p.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := p.Start(ctx); err != nil {
		t.Fatalf("second start should be a no-op, got: %v", err)
	}
	p.Stop()
	p.Stop()
}
