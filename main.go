package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/jupark12/contract-extract/client"
	"github.com/jupark12/contract-extract/config"
	"github.com/jupark12/contract-extract/forms"
	"github.com/jupark12/contract-extract/logger"
	"github.com/jupark12/contract-extract/models"
	"github.com/jupark12/contract-extract/workflow"
	"go.uber.org/zap"
)

const usage = `usage:
  contract-extract extract [-out dir] [-cleanup] file.pdf...
  contract-extract contact -kind lawfirm|candidate -name NAME -email EMAIL -subject SUBJECT [-message TEXT]
  contract-extract consult -first NAME -last NAME -email EMAIL -phone PHONE -date YYYY-MM-DD -time "02:00 PM" [flags]
`

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printError(usage)
		return 1
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		printError("Error: %v\n", err)
		return 1
	}

	log := logger.New(cfg.App.LogFilePath, cfg.IsProduction())
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch args[0] {
	case "extract":
		err = runExtract(ctx, cfg, log, args[1:])
	case "contact":
		err = runContact(ctx, cfg, log, args[1:])
	case "consult":
		err = runConsult(ctx, cfg, log, args[1:])
	default:
		printError(usage)
		return 1
	}

	if err != nil {
		color.Red("Error: %v", err)
		return 1
	}
	return 0
}

func runExtract(ctx context.Context, cfg *config.Config, log *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("extract", flag.ContinueOnError)
	out := fs.String("out", cfg.App.DownloadDir, "directory to save the workbook into")
	cleanup := fs.Bool("cleanup", false, "delete the job's files on the service after downloading")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("at least one PDF file is required")
	}

	api := client.New(cfg.API.BaseURL, client.WithTimeout(cfg.API.HTTPTimeout), client.WithLogger(log))
	wf := workflow.New(api,
		workflow.WithLogger(log),
		workflow.WithIntervals(cfg.API.PollInterval, cfg.API.ProgressInterval),
		workflow.WithSubmittedObserver(func(taskID string) {
			color.Cyan("Submitted %d file(s) as job %s", fs.NArg(), taskID)
		}),
		workflow.WithProgressObserver(func(p float64) {
			fmt.Printf("\rProcessing... %3.0f%%", p)
		}))

	pres, err := wf.Run(ctx, fs.Args())
	fmt.Println()

	var rejection *models.ValidationError
	var failure *models.ProcessingFailure
	switch {
	case errors.As(err, &rejection):
		return rejection
	case errors.As(err, &failure):
		fp := wf.Presenter().PresentFailure(failure.TaskID, failure)
		defer fp.Reset()
		return errors.New(fp.Message())
	case err != nil:
		return err
	}
	defer pres.Reset()

	color.Green("%s", pres.Summary())
	path, err := pres.SaveTo(ctx, *out)
	if err != nil {
		return err
	}
	color.Green("Saved %s", path)

	if *cleanup {
		if err := api.Cleanup(ctx, pres.JobID); err != nil {
			color.Yellow("Cleanup failed: %v", err)
		}
	}
	return nil
}

func newFormStore(cfg *config.Config, log *zap.Logger) (*forms.Store, error) {
	if err := cfg.ValidateForms(); err != nil {
		return nil, err
	}
	return forms.New(cfg.Forms.SupabaseURL, cfg.Forms.AnonKey,
		forms.WithLogger(log),
		forms.WithHTTPClient(&http.Client{Timeout: formTimeout(cfg)})), nil
}

func formTimeout(cfg *config.Config) time.Duration {
	if cfg.API.HTTPTimeout > 0 {
		return cfg.API.HTTPTimeout
	}
	return 30 * time.Second
}

func runContact(ctx context.Context, cfg *config.Config, log *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("contact", flag.ContinueOnError)
	kind := fs.String("kind", "lawfirm", "lawfirm or candidate")
	name := fs.String("name", "", "organization or candidate name")
	email := fs.String("email", "", "email address")
	subject := fs.String("subject", "", "subject")
	message := fs.String("message", "", "message (optional)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := newFormStore(cfg, log)
	if err != nil {
		return err
	}

	switch *kind {
	case "lawfirm":
		err = store.SubmitLawFirmInquiry(ctx, forms.LawFirmInquiry{
			OrganizationName: *name,
			EmailAddress:     *email,
			Subject:          *subject,
			Message:          *message,
		})
		if err == nil {
			color.Green("Message sent successfully! We'll get back to you soon.")
		}
	case "candidate":
		err = store.SubmitCandidateInquiry(ctx, forms.CandidateInquiry{
			CandidateName: *name,
			EmailAddress:  *email,
			Subject:       *subject,
			Message:       *message,
		})
		if err == nil {
			color.Green("Application submitted successfully! We'll review it and get back to you.")
		}
	default:
		return fmt.Errorf("unknown contact kind %q", *kind)
	}
	return err
}

func runConsult(ctx context.Context, cfg *config.Config, log *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("consult", flag.ContinueOnError)
	first := fs.String("first", "", "first name")
	last := fs.String("last", "", "last name")
	email := fs.String("email", "", "email address")
	phone := fs.String("phone", "", "phone number")
	method := fs.String("method", "email", "preferred contact method: email or phone")
	service := fs.String("service", "", "service id")
	consultant := fs.String("consultant", "", "consultant id")
	dateStr := fs.String("date", "", "date YYYY-MM-DD")
	slot := fs.String("time", "", "time slot, e.g. \"02:00 PM\"")
	if err := fs.Parse(args); err != nil {
		return err
	}

	day, err := time.Parse("2006-01-02", *dateStr)
	if err != nil {
		return fmt.Errorf("invalid -date, use YYYY-MM-DD: %w", err)
	}

	store, err := newFormStore(cfg, log)
	if err != nil {
		return err
	}

	err = store.SubmitConsultation(ctx, forms.Consultation{
		FirstName:       *first,
		LastName:        *last,
		Email:           *email,
		Phone:           *phone,
		MethodOfContact: *method,
		ServiceID:       *service,
		ConsultantID:    *consultant,
		ScheduledDate:   forms.FormatScheduledDate(day),
		ScheduledTime:   *slot,
	})
	if err != nil {
		return err
	}
	color.Green("Consultation booked for %s at %s", forms.FormatScheduledDate(day), *slot)
	return nil
}
