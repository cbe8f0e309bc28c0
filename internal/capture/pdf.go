// Package capture prints rendered pages to PDF with headless Chromium.
package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	appLog "roomcal/internal/log"
)

// DefaultTimeout bounds one print when Options.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// ReadySelector is waited for before printing. The print sheet sets it
// once the table is in the DOM.
const ReadySelector = `[data-ready="true"]`

// Options defines one print job.
type Options struct {
	// URL of the page to print, e.g. "http://127.0.0.1:5001/print?month=2025-05".
	URL string

	Landscape bool

	// Timeout bounds browser start, navigation and printing together.
	Timeout time.Duration

	// NoSandbox disables the Chromium sandbox, needed when running as root
	// inside containers.
	NoSandbox bool
}

func (o Options) validate() error {
	if o.URL == "" {
		return errors.New("capture: URL is required")
	}
	return nil
}

// PrintPDF launches a headless Chromium via chromedp, waits for the page to
// signal readiness and returns the printed PDF.
func PrintPDF(parentCtx context.Context, opts Options) ([]byte, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts, chromedp.DisableGPU)
	if opts.NoSandbox {
		allocOpts = append(allocOpts, chromedp.NoSandbox)
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(parentCtx, allocOpts...)
	defer allocCancel()

	ctx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	start := time.Now()
	var pdf []byte
	tasks := chromedp.Tasks{
		chromedp.Navigate(opts.URL),
		chromedp.WaitVisible(ReadySelector, chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			data, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithLandscape(opts.Landscape).
				WithPreferCSSPageSize(true).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = data
			return nil
		}),
	}
	if err := chromedp.Run(ctx, tasks); err != nil {
		return nil, fmt.Errorf("capture: chromedp run failed: %w", err)
	}
	appLog.Debug("pdf printed", "bytes", len(pdf), "elapsed", time.Since(start).String())
	return pdf, nil
}
