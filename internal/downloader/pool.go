package downloader

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"igrelay/pkg/instagram"
	"igrelay/pkg/logger"
	"igrelay/pkg/ratelimit"
	"igrelay/pkg/storage"
)

// Job is one media item to fetch into the request's staging directory
type Job struct {
	Index int
	Item  instagram.MediaItem
}

// Result is the outcome of a download job
type Result struct {
	Job      Job
	Media    storage.Media
	Error    error
	Duration time.Duration
}

// MediaDownloader streams a media URL to a writer
type MediaDownloader interface {
	DownloadMedia(ctx context.Context, url string, w io.Writer) (int64, error)
}

// WorkerPool downloads the media items of one relay request concurrently
type WorkerPool struct {
	numWorkers  int
	jobQueue    chan Job
	resultQueue chan Result
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	client      MediaDownloader
	dir         *storage.RequestDir
	rateLimiter ratelimit.Limiter
	logger      logger.Logger
}

// NewWorkerPool creates a download pool writing into dir
func NewWorkerPool(
	ctx context.Context,
	numWorkers int,
	client MediaDownloader,
	dir *storage.RequestDir,
	rateLimiter ratelimit.Limiter,
	log logger.Logger,
) *WorkerPool {
	poolCtx, cancel := context.WithCancel(ctx)

	if log == nil {
		log = logger.GetLogger()
	}

	return &WorkerPool{
		numWorkers:  numWorkers,
		jobQueue:    make(chan Job, numWorkers*2),
		resultQueue: make(chan Result, numWorkers),
		ctx:         poolCtx,
		cancel:      cancel,
		client:      client,
		dir:         dir,
		rateLimiter: rateLimiter,
		logger:      log,
	}
}

// Start launches the workers
func (wp *WorkerPool) Start() {
	wp.logger.DebugWithFields("starting download pool", map[string]interface{}{
		"num_workers": wp.numWorkers,
	})

	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop drains remaining jobs and shuts the pool down
func (wp *WorkerPool) Stop() {
	close(wp.jobQueue)
	wp.wg.Wait()
	close(wp.resultQueue)
	wp.cancel()
}

// Submit adds a download job to the queue
func (wp *WorkerPool) Submit(job Job) error {
	select {
	case wp.jobQueue <- job:
		return nil
	case <-wp.ctx.Done():
		return fmt.Errorf("download pool is shutting down")
	}
}

// Results returns the result channel
func (wp *WorkerPool) Results() <-chan Result {
	return wp.resultQueue
}

// worker is the main worker routine
func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for job := range wp.jobQueue {
		select {
		case <-wp.ctx.Done():
			return
		default:
		}

		result := wp.processJob(job, id)

		select {
		case wp.resultQueue <- result:
		case <-wp.ctx.Done():
			return
		}
	}
}

// processJob downloads a single media item into the staging directory
func (wp *WorkerPool) processJob(job Job, workerID int) Result {
	start := time.Now()
	result := Result{Job: job}

	if wp.rateLimiter != nil && !wp.rateLimiter.Allow() {
		wp.rateLimiter.Wait()
	}

	name := fileName(job)
	media, err := wp.dir.Save(name, func(w io.Writer) error {
		_, downloadErr := wp.client.DownloadMedia(wp.ctx, job.Item.URL, w)
		return downloadErr
	})
	result.Duration = time.Since(start)

	if err != nil {
		result.Error = err
		wp.logger.ErrorWithFields("media download failed", map[string]interface{}{
			"worker_id": workerID,
			"media_id":  job.Item.ID,
			"error":     err.Error(),
			"duration":  result.Duration,
		})
		return result
	}

	result.Media = media
	wp.logger.DebugWithFields("media downloaded", map[string]interface{}{
		"worker_id": workerID,
		"media_id":  job.Item.ID,
		"size":      media.Size,
		"duration":  result.Duration,
	})
	return result
}

// fileName builds a deterministic staged file name for a job
func fileName(job Job) string {
	ext := ".jpg"
	if job.Item.Kind == instagram.MediaKindVideo {
		ext = ".mp4"
	}
	return fmt.Sprintf("%03d_%s%s", job.Index, job.Item.ID, ext)
}

// DownloadAll runs every item through the pool and returns staged media in
// input order. Failed items are skipped; the first error is returned alongside
// whatever succeeded so the caller can decide whether a partial send is worth it.
func DownloadAll(
	ctx context.Context,
	items []instagram.MediaItem,
	numWorkers int,
	client MediaDownloader,
	dir *storage.RequestDir,
	rateLimiter ratelimit.Limiter,
	log logger.Logger,
) ([]storage.Media, []instagram.MediaKind, error) {
	if len(items) == 0 {
		return nil, nil, nil
	}
	if numWorkers > len(items) {
		numWorkers = len(items)
	}

	pool := NewWorkerPool(ctx, numWorkers, client, dir, rateLimiter, log)
	pool.Start()

	go func() {
		for i, item := range items {
			if err := pool.Submit(Job{Index: i, Item: item}); err != nil {
				break
			}
		}
		pool.Stop()
	}()

	staged := make([]*storage.Media, len(items))
	var firstErr error
	for result := range pool.Results() {
		if result.Error != nil {
			if firstErr == nil {
				firstErr = result.Error
			}
			continue
		}
		media := result.Media
		staged[result.Job.Index] = &media
	}

	var out []storage.Media
	var kinds []instagram.MediaKind
	for i, m := range staged {
		if m == nil {
			continue
		}
		out = append(out, *m)
		kinds = append(kinds, items[i].Kind)
	}
	return out, kinds, firstErr
}
