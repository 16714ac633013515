package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"leavedesk/internal/domain/auth"
	"leavedesk/internal/domain/leave"
	"leavedesk/internal/platform/cache"
	"leavedesk/internal/requestctx"
	"leavedesk/internal/upstream/leaveapi"
)

const (
	envAPI   = "LEAVE_API_URL"
	envToken = "LEAVE_TOKEN"
)

type options struct {
	apiURL         string
	token          string
	timeout        time.Duration
	contactPattern string
	noColor        bool
}

// App carries the state shared by all commands.
type App struct {
	Now func() time.Time

	opts    options
	service *leave.Service
	session auth.Session
}

func (a *App) now() time.Time {
	if a.Now == nil {
		return time.Now()
	}
	return a.Now()
}

// NewRootCommand builds the leavectl command tree.
func NewRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "leavectl",
		Short:         "Check, request and cancel leave from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if app.opts.noColor {
				color.NoColor = true
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&app.opts.apiURL, "api", os.Getenv(envAPI), "leave API base URL (env "+envAPI+")")
	flags.StringVar(&app.opts.token, "token", "", "bearer token (env "+envToken+")")
	flags.DurationVar(&app.opts.timeout, "timeout", 15*time.Second, "per-request timeout")
	flags.StringVar(&app.opts.contactPattern, "contact-pattern", "", "regular expression contact numbers must match")
	flags.BoolVar(&app.opts.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		newWorkdaysCommand(app),
		newNoticeCommand(app),
		newDashboardCommand(app),
		newHolidaysCommand(app),
		newRequestsCommand(app),
		newSubmitCommand(app),
		newCancelCommand(app),
		newCalendarCommand(app),
	)
	return root
}

// Execute runs leavectl and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewRootCommand(&App{})
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		errColor.Fprintln(stderr, "error: "+describeError(err))
		return 1
	}
	return 0
}

// connect builds the session and the leave service on first use.
func (a *App) connect(cmd *cobra.Command) (*leave.Service, auth.Session, error) {
	if a.service != nil {
		return a.service, a.session, nil
	}
	base := strings.TrimRight(strings.TrimSpace(a.opts.apiURL), "/")
	if base == "" {
		return nil, auth.Session{}, fmt.Errorf("no API URL: pass --api or set %s", envAPI)
	}

	token := strings.TrimSpace(a.opts.token)
	if token == "" {
		token = strings.TrimSpace(os.Getenv(envToken))
	}
	if token == "" {
		var err error
		token, err = promptToken(cmd.ErrOrStderr())
		if err != nil {
			return nil, auth.Session{}, err
		}
	}
	sess, err := auth.NewSession("", token)
	if err != nil {
		return nil, auth.Session{}, err
	}

	validator, err := leave.NewValidator(a.opts.contactPattern)
	if err != nil {
		return nil, auth.Session{}, err
	}
	validator.Now = a.now

	mem := cache.NewMemory()
	dashboards := cache.New[leave.Dashboard](mem, cache.Options{Name: "dashboard", Now: a.now, Fallback: leave.StaleFallbackAllowed, RefreshTimeout: a.opts.timeout})
	holidays := cache.New[[]leave.Holiday](mem, cache.Options{Name: "holidays", TTL: time.Hour, Now: a.now, Fallback: leave.StaleFallbackAllowed, RefreshTimeout: a.opts.timeout})

	svc := leave.NewService(leaveapi.New(base, a.opts.timeout), validator, dashboards, holidays)
	svc.Now = a.now
	a.service, a.session = svc, sess
	return svc, sess, nil
}

// requestContext tags outgoing calls with a fresh request id so failures can
// be matched against server logs.
func requestContext(cmd *cobra.Command) (context.Context, string) {
	id := uuid.NewString()
	return requestctx.WithRequestID(cmd.Context(), id), id
}

func describeError(err error) string {
	var verr *leave.ValidationError
	switch {
	case errors.Is(err, leave.ErrUnauthorized):
		return "your session has expired, sign in again and retry"
	case errors.As(err, &verr):
		return verr.Message
	default:
		return err.Error()
	}
}
