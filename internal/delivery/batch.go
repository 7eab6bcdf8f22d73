package delivery

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/gammazero/workerpool"
	"github.com/jwillz7667/CropLens/internal/utils"
	"github.com/mdobak/go-xerrors"
	"github.com/schollz/progressbar/v3"
)

type BatchResult struct {
	Request AnalyzeRequest
	Result  AnalyzeResult
	Err     error
}

// AnalyzeFields runs every request on a pool of workers. Results keep the
// order of reqs; one failing field does not stop the others.
func (s *Service) AnalyzeFields(ctx context.Context, reqs []AnalyzeRequest, workers int, progress io.Writer) []BatchResult {
	if workers <= 0 {
		workers = 4
	}
	results := make([]BatchResult, len(reqs))

	var bar *progressbar.ProgressBar
	if progress != nil {
		bar = progressbar.NewOptions(len(reqs),
			progressbar.OptionSetWriter(progress),
			progressbar.OptionSetDescription("Analyzing fields"),
			progressbar.OptionShowCount(),
		)
	}
	var barMu sync.Mutex

	wp := workerpool.New(workers)
	for i, req := range reqs {
		wp.Submit(func() {
			results[i].Request = req
			if err := ctx.Err(); err != nil {
				results[i].Err = err
			} else {
				results[i].Result, results[i].Err = s.AnalyzeField(ctx, req)
			}
			if results[i].Err != nil {
				utils.GetLogger().ErrorContext(ctx, "field analysis failed",
					slog.String("fieldId", req.FieldID),
					slog.Any("error", xerrors.New(results[i].Err)))
			}
			if bar != nil {
				barMu.Lock()
				bar.Add(1)
				barMu.Unlock()
			}
		})
	}
	wp.StopWait()

	return results
}
