// SPDX-FileCopyrightText: 2026 Framelift contributors.
//
// SPDX-License-Identifier: Apache-2.0
package pipeline_test

import (
	"context"
	"sync"

	"github.com/go-logr/logr"
	"github.com/mandelsoft/vfs/pkg/memoryfs"
	"github.com/mandelsoft/vfs/pkg/vfs"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/framelift/framelift/pkg/jobs"
	"github.com/framelift/framelift/pkg/pipeline"
	"github.com/framelift/framelift/pkg/pipeline/process"
	"github.com/framelift/framelift/pkg/pipeline/processors"
	"github.com/framelift/framelift/pkg/pipeline/stack"
)

// fakeStore records the job row mutations a pipeline run performs.
type fakeStore struct {
	mu        sync.Mutex
	statuses  []jobs.Status
	progress  []jobs.Progress
	completed *jobs.Result
	failedMsg string
	frameURLs map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{frameURLs: map[string]string{}}
}

func (s *fakeStore) Create(ctx context.Context, job *jobs.Job) error {
	return nil
}

func (s *fakeStore) Get(ctx context.Context, id string) (*jobs.Job, error) {
	return nil, jobs.ErrNotFound
}

func (s *fakeStore) MarkStarted(ctx context.Context, id string) error {
	return nil
}

func (s *fakeStore) UpdateStatus(ctx context.Context, id string, status jobs.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, status)
	return nil
}

func (s *fakeStore) UpdateProgress(ctx context.Context, id string, progress jobs.Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = append(s.progress, progress)
	return nil
}

func (s *fakeStore) MarkCompleted(ctx context.Context, id string, result *jobs.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = result
	return nil
}

func (s *fakeStore) MarkFailed(ctx context.Context, id string, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failedMsg = errMsg
	return nil
}

func (s *fakeStore) UpsertFrameURL(ctx context.Context, jobID, frameID, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frameURLs[frameID] = url
	return nil
}

var _ jobs.Store = &fakeStore{}

// stubProcessor is a minimal processor fake for service level specs.
type stubProcessor struct {
	id       string
	status   jobs.Status
	io       process.IODeclaration
	delta    *process.Data
	failMsg  string
	gotDirs  *process.WorkDirs
	gotVideo string
}

func (p *stubProcessor) ID() string                { return p.id }
func (p *stubProcessor) DisplayName() string       { return p.id }
func (p *stubProcessor) StatusKey() jobs.Status    { return p.status }
func (p *stubProcessor) IO() process.IODeclaration { return p.io }
func (p *stubProcessor) Process(ctx context.Context, pctx *process.Context, data *process.Data, opts process.Options) process.Result {
	p.gotDirs = pctx.WorkDirs
	if data.Video != nil {
		p.gotVideo = data.Video.SourceURL
	}
	if p.failMsg != "" {
		return process.Fail("%s", p.failMsg)
	}
	return process.Succeed(p.delta)
}

var _ = Describe("pipeline service", func() {

	var (
		fs       vfs.FileSystem
		store    *fakeStore
		registry *process.Registry
		svc      *pipeline.Service
		job      *jobs.Job
	)

	score := func(v float64) *float64 { return &v }

	BeforeEach(func() {
		fs = memoryfs.New()
		store = newFakeStore()
		registry = process.NewRegistry(logr.Discard())

		templates := stack.NewTemplateSet()
		templates.Register(stack.New("mini", "Mini", []stack.Step{
			{ProcessorID: "download"},
			{ProcessorID: "extract-frames"},
			{ProcessorID: "complete-job"},
		}))

		svc = &pipeline.Service{
			Store:     store,
			Registry:  registry,
			Templates: templates,
			FS:        fs,
			TempRoot:  "/tmp",
			Log:       logr.Discard(),
		}

		job = &jobs.Job{
			ID:       "job-1",
			Status:   jobs.StatusPending,
			VideoURL: "https://example.com/video.mp4",
		}
	})

	register := func(id string, status jobs.Status, io process.IODeclaration, delta *process.Data) *stubProcessor {
		p := &stubProcessor{id: id, status: status, io: io, delta: delta}
		registry.Register(p)
		return p
	}

	registerHappyPath := func() *stubProcessor {
		download := register("download", jobs.StatusProcessing,
			process.IODeclaration{Requires: nil, Produces: []process.IOType{process.IOVideo}},
			&process.Data{Video: &process.Video{LocalPath: "/tmp/framelift/job-1/video/source.mp4"}})
		register("extract-frames", jobs.StatusExtractingFrames,
			process.IODeclaration{Requires: []process.IOType{process.IOVideo}, Produces: []process.IOType{process.IOFrames, process.IOImages}},
			&process.Data{Frames: []*process.Frame{
				{ID: "frame-1", Timestamp: 0, Score: score(0.9), BestPerSecond: true, IsFinalSelection: true, RemoteURL: "https://cdn.example.com/frame-1.jpg"},
				{ID: "frame-2", Timestamp: 0.5, Score: score(0.4)},
			}})
		registry.Register(processors.NewCompleteJob(store))
		return download
	}

	It("should run a stack end to end and record the result", func() {
		download := registerHappyPath()

		result, err := svc.RunPipeline(context.Background(), job, pipeline.RunOptions{StackID: "mini"})
		Expect(err).ToNot(HaveOccurred())
		Expect(result).ToNot(BeNil())
		Expect(result.FramesAnalyzed).To(Equal(2))
		Expect(result.VariantsDiscovered).To(Equal(1))
		Expect(result.FinalFrames).To(Equal([]string{"https://cdn.example.com/frame-1.jpg"}))

		Expect(store.completed).To(Equal(result))
		Expect(store.failedMsg).To(BeEmpty())
		Expect(download.gotVideo).To(Equal("https://example.com/video.mp4"))
	})

	It("should respect a seeded envelope and keep its source url", func() {
		download := registerHappyPath()

		seed := process.NewData()
		seed.Video = &process.Video{SourceURL: "s3://bucket/uploads/clip.mp4"}
		_, err := svc.RunPipeline(context.Background(), job, pipeline.RunOptions{StackID: "mini", InitialData: seed})
		Expect(err).ToNot(HaveOccurred())
		Expect(download.gotVideo).To(Equal("s3://bucket/uploads/clip.mp4"))
	})

	It("should inject the job's video url into a seed without one", func() {
		download := registerHappyPath()

		seed := process.NewData()
		seed.Metadata["origin"] = "api"
		_, err := svc.RunPipeline(context.Background(), job, pipeline.RunOptions{StackID: "mini", InitialData: seed})
		Expect(err).ToNot(HaveOccurred())
		Expect(download.gotVideo).To(Equal("https://example.com/video.mp4"))
	})

	It("should advance the job status as processors begin", func() {
		registerHappyPath()

		_, err := svc.RunPipeline(context.Background(), job, pipeline.RunOptions{StackID: "mini"})
		Expect(err).ToNot(HaveOccurred())
		Expect(store.statuses).To(Equal([]jobs.Status{jobs.StatusProcessing, jobs.StatusExtractingFrames}))
	})

	It("should create the work directory tree and remove it afterwards", func() {
		download := registerHappyPath()

		_, err := svc.RunPipeline(context.Background(), job, pipeline.RunOptions{StackID: "mini"})
		Expect(err).ToNot(HaveOccurred())

		Expect(download.gotDirs).ToNot(BeNil())
		Expect(download.gotDirs.Root).To(Equal("/tmp/framelift/job-1"))
		Expect(download.gotDirs.All()).To(HaveLen(6))

		ok, err := vfs.Exists(fs, "/tmp/framelift/job-1")
		Expect(err).ToNot(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("should keep the work directory in debug mode", func() {
		registerHappyPath()
		job.Config = &jobs.Config{Debug: true}
		job.Config.ApplyDefaults()

		_, err := svc.RunPipeline(context.Background(), job, pipeline.RunOptions{StackID: "mini"})
		Expect(err).ToNot(HaveOccurred())

		ok, err := vfs.Exists(fs, "/tmp/framelift/job-1")
		Expect(err).ToNot(HaveOccurred())
		Expect(ok).To(BeTrue())
	})

	It("should record the processor error on failure", func() {
		registerHappyPath()
		failing := &stubProcessor{
			id:      "extract-frames",
			status:  jobs.StatusExtractingFrames,
			io:      process.IODeclaration{Requires: []process.IOType{process.IOVideo}, Produces: []process.IOType{process.IOFrames, process.IOImages}},
			failMsg: "boom",
		}
		registry.Register(failing)

		result, err := svc.RunPipeline(context.Background(), job, pipeline.RunOptions{StackID: "mini"})
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(Equal("boom"))
		Expect(result).To(BeNil())
		Expect(store.failedMsg).To(Equal("boom"))
		Expect(store.completed).To(BeNil())

		ok, err := vfs.Exists(fs, "/tmp/framelift/job-1")
		Expect(err).ToNot(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("should fail on an unknown stack", func() {
		registerHappyPath()

		_, err := svc.RunPipeline(context.Background(), job, pipeline.RunOptions{StackID: "ghost"})
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring(`unknown stack "ghost"`))
		Expect(store.failedMsg).To(ContainSubstring("unknown stack"))
	})

	It("should forward progress updates", func() {
		registerHappyPath()

		var updates []process.ProgressUpdate
		_, err := svc.RunPipeline(context.Background(), job, pipeline.RunOptions{
			StackID:    "mini",
			OnProgress: func(u process.ProgressUpdate) { updates = append(updates, u) },
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(updates).ToNot(BeEmpty())
		Expect(updates[len(updates)-1].Percentage).To(Equal(100))
	})
})
