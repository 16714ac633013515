package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"leavedesk/internal/domain/leave"
)

// Test seams for the terminal.
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

var errNoToken = errors.New("no token: pass --token, set LEAVE_TOKEN or run in a terminal")

// promptToken reads a bearer token without echo.
func promptToken(w io.Writer) (string, error) {
	fd := int(os.Stdin.Fd())
	if !isTerminal(fd) {
		return "", errNoToken
	}
	if _, err := fmt.Fprint(w, "Leave API token: "); err != nil {
		return "", err
	}
	raw, err := readPassword(fd)
	fmt.Fprintln(w)
	if err != nil {
		return "", err
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return "", errNoToken
	}
	return token, nil
}

// parseHolidays turns repeated DATE=NAME flags into holidays. The name is
// optional.
func parseHolidays(values []string) ([]leave.Holiday, error) {
	out := make([]leave.Holiday, 0, len(values))
	for _, v := range values {
		datePart, name, _ := strings.Cut(v, "=")
		day, err := parseDateArg("holiday "+v, datePart)
		if err != nil {
			return nil, err
		}
		name = strings.TrimSpace(name)
		if name == "" {
			name = "Holiday"
		}
		out = append(out, leave.Holiday{Date: day, Name: name})
	}
	return out, nil
}

func parseDateArg(name, value string) (leave.Date, error) {
	day, err := leave.ParseDate(strings.TrimSpace(value))
	if err != nil {
		return leave.Date{}, fmt.Errorf("%s: %w", name, err)
	}
	if day.IsZero() {
		return leave.Date{}, fmt.Errorf("%s is required (yyyy-mm-dd)", name)
	}
	return day, nil
}
